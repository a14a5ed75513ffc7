package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/opendatarepo/odr-backend/internal/http/handlers"
	httpMW "github.com/opendatarepo/odr-backend/internal/http/middleware"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	ExportHandler *httpH.ExportHandler
	StageHandler  *httpH.StageHandler
	HealthHandler *httpH.HealthHandler

	WorkerAPIKey string
	ServiceName  string
	OtelEnabled  bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.OtelEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	api.Use(httpMW.AttachRequestData())
	{
		if cfg.ExportHandler != nil {
			api.POST("/exports", cfg.ExportHandler.Start)
			api.GET("/exports/:id", cfg.ExportHandler.Get)
			api.GET("/exports/:id/download", cfg.ExportHandler.Download)
			api.POST("/exports/record-list", cfg.ExportHandler.StashRecordList)
		}
	}

	internal := r.Group("/internal")
	internal.Use(httpMW.RequireWorkerKey(cfg.WorkerAPIKey))
	{
		if cfg.StageHandler != nil {
			internal.POST("/csv_export/construct", cfg.StageHandler.Construct)
			internal.POST("/csv_export/worker", cfg.StageHandler.Worker)
			internal.POST("/csv_export/finalize", cfg.StageHandler.Finalize)
		}
	}

	return r
}
