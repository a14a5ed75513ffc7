package csv_export_finalize

import (
	"time"

	"gorm.io/gorm"

	"github.com/opendatarepo/odr-backend/internal/clients/redis"
	exportrepos "github.com/opendatarepo/odr-backend/internal/data/repos/export"
	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	claims     exportrepos.WriteClaimRepo
	queue      redis.Queue
	apiKey     string
	exportDir  string
	chainDelay time.Duration
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	claims exportrepos.WriteClaimRepo,
	queue redis.Queue,
	apiKey string,
	exportDir string,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("tube", types.TubeCSVExportFinalize),
		claims:     claims,
		queue:      queue,
		apiKey:     apiKey,
		exportDir:  exportDir,
		chainDelay: 500 * time.Millisecond,
	}
}

func (p *Pipeline) Tube() string { return types.TubeCSVExportFinalize }
