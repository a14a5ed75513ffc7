package meta

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

// SelectedOption is one selected label on a record's choice field, carrying
// the option set's display order so multi-valued cells join deterministically.
type SelectedOption struct {
	DatafieldID  uuid.UUID
	OptionName   string
	DisplayOrder int
}

type DatarecordRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Datarecord, error)
	TextValues(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]*types.TextValue, error)
	IntegerValues(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]*types.IntegerValue, error)
	DecimalValues(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]*types.DecimalValue, error)
	DatetimeValues(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]*types.DatetimeValue, error)
	// SelectedOptions joins selections through the option table, ordered by
	// field then by the option set's display order.
	SelectedOptions(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]SelectedOption, error)
}

type datarecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatarecordRepo(db *gorm.DB, baseLog *logger.Logger) DatarecordRepo {
	return &datarecordRepo{
		db:  db,
		log: baseLog.With("repo", "DatarecordRepo"),
	}
}

func (r *datarecordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Datarecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var rec types.Datarecord
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == uuid.Nil {
		return nil, nil
	}
	return &rec, nil
}

func (r *datarecordRepo) TextValues(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]*types.TextValue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TextValue
	if recordID == uuid.Nil || len(fieldIDs) == 0 {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("datarecord_id = ? AND datafield_id IN ?", recordID, fieldIDs).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *datarecordRepo) IntegerValues(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]*types.IntegerValue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.IntegerValue
	if recordID == uuid.Nil || len(fieldIDs) == 0 {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("datarecord_id = ? AND datafield_id IN ?", recordID, fieldIDs).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *datarecordRepo) DecimalValues(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]*types.DecimalValue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DecimalValue
	if recordID == uuid.Nil || len(fieldIDs) == 0 {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("datarecord_id = ? AND datafield_id IN ?", recordID, fieldIDs).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *datarecordRepo) DatetimeValues(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]*types.DatetimeValue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DatetimeValue
	if recordID == uuid.Nil || len(fieldIDs) == 0 {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("datarecord_id = ? AND datafield_id IN ?", recordID, fieldIDs).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *datarecordRepo) SelectedOptions(dbc dbctx.Context, recordID uuid.UUID, fieldIDs []uuid.UUID) ([]SelectedOption, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []SelectedOption
	if recordID == uuid.Nil || len(fieldIDs) == 0 {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Table("option_selections").
		Select("option_selections.datafield_id AS datafield_id, field_options.option_name AS option_name, field_options.display_order AS display_order").
		Joins("JOIN field_options ON field_options.id = option_selections.option_id").
		Where("option_selections.datarecord_id = ? AND option_selections.datafield_id IN ? AND option_selections.selected = ?",
			recordID, fieldIDs, true,
		).
		Order("option_selections.datafield_id ASC, field_options.display_order ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
