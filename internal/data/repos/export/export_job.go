package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

type ExportJobRepo interface {
	Create(dbc dbctx.Context, job *types.ExportJob) (*types.ExportJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ExportJob, error)
	// HasIncomplete reports whether the owner already has an in-flight job of
	// the given type for the datatype.
	HasIncomplete(dbc dbctx.Context, ownerUserID, datatypeID uuid.UUID, jobType string) (bool, error)
	// IncrementProgress bumps the shared counter by exactly one and returns
	// the post-increment current alongside total. It is a single UPDATE with
	// RETURNING, so concurrent writers serialize on the row and no update is
	// ever lost.
	IncrementProgress(dbc dbctx.Context, id uuid.UUID) (current int64, total int64, err error)
	// MarkCompleted stamps completed_at once; later calls are no-ops. Returns
	// whether this call did the stamping.
	MarkCompleted(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

type exportJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExportJobRepo(db *gorm.DB, baseLog *logger.Logger) ExportJobRepo {
	return &exportJobRepo{
		db:  db,
		log: baseLog.With("repo", "ExportJobRepo"),
	}
}

func (r *exportJobRepo) Create(dbc dbctx.Context, job *types.ExportJob) (*types.ExportJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil, errors.New("nil export job")
	}
	if err := transaction.WithContext(dbc.Ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *exportJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ExportJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ExportJob
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *exportJobRepo) HasIncomplete(dbc dbctx.Context, ownerUserID, datatypeID uuid.UUID, jobType string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || datatypeID == uuid.Nil || jobType == "" {
		return false, nil
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.ExportJob{}).
		Where("owner_user_id = ? AND datatype_id = ? AND job_type = ? AND completed_at IS NULL",
			ownerUserID, datatypeID, jobType,
		).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *exportJobRepo) IncrementProgress(dbc dbctx.Context, id uuid.UUID) (int64, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return 0, 0, errors.New("nil job id")
	}
	var row struct {
		Current int64
		Total   int64
	}
	res := transaction.WithContext(dbc.Ctx).
		Raw(`UPDATE export_jobs
		     SET current = current + 1, updated_at = NOW()
		     WHERE id = ?
		     RETURNING current, total`, id).
		Scan(&row)
	if res.Error != nil {
		return 0, 0, res.Error
	}
	// A zeroed scan result would read as current >= total to the caller and
	// start finalization for a job that does not exist.
	if res.RowsAffected == 0 {
		return 0, 0, fmt.Errorf("export job %s not found", id)
	}
	return row.Current, row.Total, nil
}

func (r *exportJobRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	now := time.Now()
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.ExportJob{}).
		Where("id = ? AND completed_at IS NULL", id).
		Updates(map[string]interface{}{
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
