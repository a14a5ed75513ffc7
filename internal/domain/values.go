package domain

import (
	"time"

	"github.com/google/uuid"
)

// Value rows, one table per field-type family. Text, integer, decimal and
// date share the same (record, field, value) shape; choice fields go through
// OptionSelection instead.

type TextValue struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DatarecordID uuid.UUID `gorm:"type:uuid;not null;index:idx_text_values_record_field" json:"datarecord_id"`
	DatafieldID  uuid.UUID `gorm:"type:uuid;not null;index:idx_text_values_record_field" json:"datafield_id"`
	Value        *string   `gorm:"column:value" json:"value,omitempty"`
	UpdatedAt    time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TextValue) TableName() string { return "text_values" }

type IntegerValue struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DatarecordID uuid.UUID `gorm:"type:uuid;not null;index:idx_integer_values_record_field" json:"datarecord_id"`
	DatafieldID  uuid.UUID `gorm:"type:uuid;not null;index:idx_integer_values_record_field" json:"datafield_id"`
	Value        *int64    `gorm:"column:value" json:"value,omitempty"`
	UpdatedAt    time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (IntegerValue) TableName() string { return "integer_values" }

type DecimalValue struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DatarecordID uuid.UUID `gorm:"type:uuid;not null;index:idx_decimal_values_record_field" json:"datarecord_id"`
	DatafieldID  uuid.UUID `gorm:"type:uuid;not null;index:idx_decimal_values_record_field" json:"datafield_id"`
	Value        *float64  `gorm:"column:value" json:"value,omitempty"`
	UpdatedAt    time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (DecimalValue) TableName() string { return "decimal_values" }

type DatetimeValue struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DatarecordID uuid.UUID  `gorm:"type:uuid;not null;index:idx_datetime_values_record_field" json:"datarecord_id"`
	DatafieldID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_datetime_values_record_field" json:"datafield_id"`
	Value        *time.Time `gorm:"column:value" json:"value,omitempty"`
	UpdatedAt    time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (DatetimeValue) TableName() string { return "datetime_values" }

// OptionSelection marks one option as currently selected on one record's
// choice field. Single-choice fields have at most one selected row.
type OptionSelection struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DatarecordID uuid.UUID `gorm:"type:uuid;not null;index:idx_option_selections_record_field" json:"datarecord_id"`
	DatafieldID  uuid.UUID `gorm:"type:uuid;not null;index:idx_option_selections_record_field" json:"datafield_id"`
	OptionID     uuid.UUID `gorm:"type:uuid;not null;index" json:"option_id"`
	Selected     bool      `gorm:"column:selected;not null;default:true" json:"selected"`
	UpdatedAt    time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (OptionSelection) TableName() string { return "option_selections" }
