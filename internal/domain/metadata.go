package domain

import (
	"time"

	"github.com/google/uuid"
)

// FieldType is the closed set of value families a datafield can hold. Each
// family has its own value table and its own query shape in the row builder.
type FieldType string

const (
	FieldTypeText         FieldType = "text"
	FieldTypeInteger      FieldType = "integer"
	FieldTypeDecimal      FieldType = "decimal"
	FieldTypeDate         FieldType = "date"
	FieldTypeSingleChoice FieldType = "single_choice"
	FieldTypeMultiChoice  FieldType = "multi_choice"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeInteger, FieldTypeDecimal, FieldTypeDate,
		FieldTypeSingleChoice, FieldTypeMultiChoice:
		return true
	}
	return false
}

// Choice reports whether values live in the option-selection table rather
// than a plain value table.
func (t FieldType) Choice() bool {
	return t == FieldTypeSingleChoice || t == FieldTypeMultiChoice
}

type Datatype struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Datatype) TableName() string { return "datatypes" }

type Datafield struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DatatypeID uuid.UUID `gorm:"type:uuid;not null;index" json:"datatype_id"`
	FieldName  string    `gorm:"column:field_name;not null" json:"field_name"`
	FieldType  FieldType `gorm:"column:field_type;not null" json:"field_type"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Datafield) TableName() string { return "datafields" }

// FieldOption is one selectable label on a choice field. DisplayOrder drives
// the join order when a multi-choice value is flattened into a row cell.
type FieldOption struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DatafieldID  uuid.UUID `gorm:"type:uuid;not null;index" json:"datafield_id"`
	OptionName   string    `gorm:"column:option_name;not null" json:"option_name"`
	DisplayOrder int       `gorm:"column:display_order;not null;default:0" json:"display_order"`
	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (FieldOption) TableName() string { return "field_options" }

type Datarecord struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DatatypeID uuid.UUID `gorm:"type:uuid;not null;index" json:"datatype_id"`
	ExternalID string    `gorm:"column:external_id" json:"external_id,omitempty"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Datarecord) TableName() string { return "datarecords" }
