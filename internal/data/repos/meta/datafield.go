package meta

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

type DatafieldRepo interface {
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Datafield, error)
}

type datafieldRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatafieldRepo(db *gorm.DB, baseLog *logger.Logger) DatafieldRepo {
	return &datafieldRepo{
		db:  db,
		log: baseLog.With("repo", "DatafieldRepo"),
	}
}

func (r *datafieldRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Datafield, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Datafield
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
