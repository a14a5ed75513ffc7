package csv_export_write

import (
	"time"

	"gorm.io/gorm"

	"github.com/opendatarepo/odr-backend/internal/clients/redis"
	exportrepos "github.com/opendatarepo/odr-backend/internal/data/repos/export"
	"github.com/opendatarepo/odr-backend/internal/data/repos/meta"
	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	jobs       exportrepos.ExportJobRepo
	claims     exportrepos.WriteClaimRepo
	fields     meta.DatafieldRepo
	queue      redis.Queue
	apiKey     string
	exportDir  string
	chainDelay time.Duration
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs exportrepos.ExportJobRepo,
	claims exportrepos.WriteClaimRepo,
	fields meta.DatafieldRepo,
	queue redis.Queue,
	apiKey string,
	exportDir string,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("tube", types.TubeCSVExportWorker),
		jobs:       jobs,
		claims:     claims,
		fields:     fields,
		queue:      queue,
		apiKey:     apiKey,
		exportDir:  exportDir,
		chainDelay: 500 * time.Millisecond,
	}
}

func (p *Pipeline) Tube() string { return types.TubeCSVExportWorker }
