package export

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

type WriteClaimRepo interface {
	// InsertIfAbsent performs the conditional insert the whole completion
	// protocol hangs on: ON CONFLICT DO NOTHING against the claim table's
	// unique indexes. Returns true when this call inserted the row.
	InsertIfAbsent(dbc dbctx.Context, claim *types.WriteClaim) (bool, error)
	// ListPending returns the job's un-finalized claims ordered by ascending
	// id. The ticket hash and the merge sequence both depend on this order.
	ListPending(dbc dbctx.Context, jobID uuid.UUID) ([]*types.WriteClaim, error)
	DeleteByID(dbc dbctx.Context, id int64) error
	// DeleteTicket removes the job's finalize-ticket row once the merge list
	// is exhausted. At most one such row can exist per job.
	DeleteTicket(dbc dbctx.Context, jobID uuid.UUID) error
	CountForJob(dbc dbctx.Context, jobID uuid.UUID) (int64, error)
}

type writeClaimRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWriteClaimRepo(db *gorm.DB, baseLog *logger.Logger) WriteClaimRepo {
	return &writeClaimRepo{
		db:  db,
		log: baseLog.With("repo", "WriteClaimRepo"),
	}
}

func (r *writeClaimRepo) InsertIfAbsent(dbc dbctx.Context, claim *types.WriteClaim) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if claim == nil {
		return false, errors.New("nil write claim")
	}
	if claim.JobID == uuid.Nil || claim.RandomKey == "" {
		return false, errors.New("write claim requires job id and random key")
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(claim)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *writeClaimRepo) ListPending(dbc dbctx.Context, jobID uuid.UUID) ([]*types.WriteClaim, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.WriteClaim
	if jobID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("job_id = ? AND finalize = ?", jobID, false).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *writeClaimRepo) DeleteByID(dbc dbctx.Context, id int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Delete(&types.WriteClaim{}, "id = ?", id).Error
}

func (r *writeClaimRepo) DeleteTicket(dbc dbctx.Context, jobID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Delete(&types.WriteClaim{}, "job_id = ? AND finalize = ?", jobID, true).Error
}

func (r *writeClaimRepo) CountForJob(dbc dbctx.Context, jobID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return 0, nil
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.WriteClaim{}).
		Where("job_id = ?", jobID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
