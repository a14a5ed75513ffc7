package csv_export_build

import (
	"gorm.io/gorm"

	"github.com/opendatarepo/odr-backend/internal/clients/redis"
	"github.com/opendatarepo/odr-backend/internal/data/repos/meta"
	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

type Pipeline struct {
	db      *gorm.DB
	log     *logger.Logger
	fields  meta.DatafieldRepo
	records meta.DatarecordRepo
	queue   redis.Queue
	apiKey  string
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	fields meta.DatafieldRepo,
	records meta.DatarecordRepo,
	queue redis.Queue,
	apiKey string,
) *Pipeline {
	return &Pipeline{
		db:      db,
		log:     baseLog.With("tube", types.TubeCSVExportStart),
		fields:  fields,
		records: records,
		queue:   queue,
		apiKey:  apiKey,
	}
}

func (p *Pipeline) Tube() string { return types.TubeCSVExportStart }
