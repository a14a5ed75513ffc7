package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/opendatarepo/odr-backend/internal/clients/redis"
	exportrepos "github.com/opendatarepo/odr-backend/internal/data/repos/export"
	"github.com/opendatarepo/odr-backend/internal/data/repos/meta"
	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/export"
	"github.com/opendatarepo/odr-backend/internal/platform/apierr"
	"github.com/opendatarepo/odr-backend/internal/platform/ctxutil"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

type StartExportInput struct {
	DatatypeID         uuid.UUID   `json:"datatype_id"`
	FieldIDs           []uuid.UUID `json:"field_ids"`
	Delimiter          string      `json:"delimiter"`
	SecondaryDelimiter string      `json:"secondary_delimiter,omitempty"`
	RecordListToken    string      `json:"record_list_token"`
	Description        string      `json:"description,omitempty"`
}

type ExportService interface {
	// StartExport validates the request, consumes the stashed record list,
	// creates the job row with total pre-set, and fans one build task per
	// record onto the start tube. Validation failures surface before any task
	// is enqueued; a validated job always reaches the queue fully fanned out.
	StartExport(dbc dbctx.Context, in StartExportInput) (*types.ExportJob, error)
	GetJobForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.ExportJob, error)
	// ResolveDownload returns the on-disk path and attachment filename for a
	// finished job's export file.
	ResolveDownload(dbc dbctx.Context, jobID uuid.UUID) (path string, filename string, err error)
	StashRecordList(ctx context.Context, recordIDs []uuid.UUID) (string, error)
}

type exportService struct {
	db     *gorm.DB
	log    *logger.Logger
	jobs   exportrepos.ExportJobRepo
	fields meta.DatafieldRepo
	queue  redis.Queue
	lists  redis.RecordListCache

	apiKey        string
	exportDir     string
	fanoutDelay   time.Duration
	recordListTTL time.Duration
}

func NewExportService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs exportrepos.ExportJobRepo,
	fields meta.DatafieldRepo,
	queue redis.Queue,
	lists redis.RecordListCache,
	apiKey string,
	exportDir string,
) ExportService {
	return &exportService{
		db:            db,
		log:           baseLog.With("service", "ExportService"),
		jobs:          jobs,
		fields:        fields,
		queue:         queue,
		lists:         lists,
		apiKey:        apiKey,
		exportDir:     exportDir,
		fanoutDelay:   time.Second,
		recordListTTL: 15 * time.Minute,
	}
}

func (s *exportService) StartExport(dbc dbctx.Context, in StartExportInput) (*types.ExportJob, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing request user")
	}
	owner := rd.UserID

	delimiter, err := export.ParseDelimiter(in.Delimiter)
	if err != nil {
		return nil, err
	}
	secondary, err := export.ParseSecondaryDelimiter(in.SecondaryDelimiter)
	if err != nil {
		return nil, err
	}
	if in.DatatypeID == uuid.Nil {
		return nil, apierr.InvalidField(fmt.Errorf("missing datatype_id"))
	}
	if len(in.FieldIDs) == 0 {
		return nil, apierr.InvalidField(fmt.Errorf("no fields selected"))
	}

	fields, err := s.fields.GetByIDs(dbc, in.FieldIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Datafield, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}
	for _, id := range in.FieldIDs {
		f, ok := byID[id]
		if !ok {
			return nil, apierr.InvalidField(fmt.Errorf("datafield %s not found", id))
		}
		if f.DatatypeID != in.DatatypeID {
			return nil, apierr.InvalidField(fmt.Errorf("datafield %s belongs to another datatype", id))
		}
		if f.FieldType == types.FieldTypeMultiChoice && secondary == "" {
			return nil, apierr.MissingSecondaryDelimiter(
				fmt.Errorf("field %s is multi-choice and no secondary delimiter was given", id),
			)
		}
	}

	dup, err := s.jobs.HasIncomplete(dbc, owner, in.DatatypeID, types.JobTypeCSVExport)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, apierr.DuplicateJob(
			fmt.Errorf("an export for datatype %s is already running", in.DatatypeID),
		)
	}

	stashed, err := s.lists.TakeRecordList(dbc.Ctx, in.RecordListToken)
	if err != nil {
		return nil, err
	}
	if len(stashed) == 0 {
		return nil, apierr.RecordListMissing(
			fmt.Errorf("record list token %q is unknown, expired, or empty", in.RecordListToken),
		)
	}
	// A duplicate id in the stash would inflate total while the per-record
	// claim lets only one write count, stranding the job short of completion.
	seen := make(map[uuid.UUID]struct{}, len(stashed))
	recordIDs := make([]uuid.UUID, 0, len(stashed))
	for _, id := range stashed {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		recordIDs = append(recordIDs, id)
	}

	params, err := json.Marshal(map[string]any{
		"datatype_id":         in.DatatypeID,
		"field_ids":           in.FieldIDs,
		"delimiter":           delimiter,
		"secondary_delimiter": secondary,
	})
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.Create(dbc, &types.ExportJob{
		OwnerUserID: owner,
		JobType:     types.JobTypeCSVExport,
		DatatypeID:  in.DatatypeID,
		Total:       int64(len(recordIDs)),
		Current:     0,
		Description: in.Description,
		Data:        datatypes.JSON(params),
	})
	if err != nil {
		return nil, err
	}

	for _, recordID := range recordIDs {
		task := types.BuildTask{
			JobID:              job.ID,
			OwnerUserID:        owner,
			DatatypeID:         in.DatatypeID,
			RecordID:           recordID,
			FieldIDs:           in.FieldIDs,
			Delimiter:          delimiter,
			SecondaryDelimiter: secondary,
			APIKey:             s.apiKey,
		}
		if err := s.queue.Put(dbc.Ctx, types.TubeCSVExportStart, task, s.fanoutDelay); err != nil {
			return nil, fmt.Errorf("enqueue build task: %w", err)
		}
	}
	s.log.Info("Export started",
		"job_id", job.ID,
		"datatype_id", in.DatatypeID,
		"records", len(recordIDs),
		"fields", len(in.FieldIDs),
	)
	return job, nil
}

func (s *exportService) GetJobForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.ExportJob, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing request user")
	}
	job, err := s.jobs.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.OwnerUserID != rd.UserID {
		return nil, nil
	}
	return job, nil
}

func (s *exportService) ResolveDownload(dbc dbctx.Context, jobID uuid.UUID) (string, string, error) {
	job, err := s.GetJobForRequestUser(dbc, jobID)
	if err != nil {
		return "", "", err
	}
	if job == nil || !job.Completed() {
		return "", "", apierr.FileNotFound(fmt.Errorf("export %s is not ready", jobID))
	}
	filename := export.FinalFilename(job.OwnerUserID, job.ID)
	path := export.FinalFilePath(s.exportDir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", "", apierr.FileNotFound(fmt.Errorf("export file for job %s not found", jobID))
		}
		return "", "", err
	}
	return path, filename, nil
}

func (s *exportService) StashRecordList(ctx context.Context, recordIDs []uuid.UUID) (string, error) {
	if len(recordIDs) == 0 {
		return "", apierr.RecordListMissing(fmt.Errorf("empty record list"))
	}
	return s.lists.PutRecordList(ctx, recordIDs, s.recordListTTL)
}
