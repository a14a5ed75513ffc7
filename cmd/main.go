package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/opendatarepo/odr-backend/internal/clients/redis"
	"github.com/opendatarepo/odr-backend/internal/data/db"
	exportrepos "github.com/opendatarepo/odr-backend/internal/data/repos/export"
	"github.com/opendatarepo/odr-backend/internal/data/repos/meta"
	httpserver "github.com/opendatarepo/odr-backend/internal/http"
	httpH "github.com/opendatarepo/odr-backend/internal/http/handlers"
	"github.com/opendatarepo/odr-backend/internal/jobs/pipeline/csv_export_build"
	"github.com/opendatarepo/odr-backend/internal/jobs/pipeline/csv_export_finalize"
	"github.com/opendatarepo/odr-backend/internal/jobs/pipeline/csv_export_write"
	jobrt "github.com/opendatarepo/odr-backend/internal/jobs/runtime"
	"github.com/opendatarepo/odr-backend/internal/jobs/worker"
	"github.com/opendatarepo/odr-backend/internal/observability"
	"github.com/opendatarepo/odr-backend/internal/platform/envutil"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
	"github.com/opendatarepo/odr-backend/internal/services"
)

const serviceName = "odr-export"

func main() {
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	apiKey := envutil.Str("WORKER_API_KEY", "")
	if apiKey == "" {
		log.Fatal("WORKER_API_KEY is required")
	}
	exportDir := envutil.Str("EXPORT_DIR", "/var/odr/exports")
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		log.Fatal("Export dir unavailable", "dir", exportDir, "error", err)
	}

	ctx := context.Background()
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: envutil.Str("ENVIRONMENT", "development"),
		Version:     envutil.Str("SERVICE_VERSION", "dev"),
	})
	if shutdownOtel != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(sctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	thePG := postgresService.DB()
	if err := db.AutoMigrateAll(thePG); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}

	// Redis
	redisClient, err := redis.New(log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}
	defer redisClient.Close()

	// Repos
	jobRepo := exportrepos.NewExportJobRepo(thePG, log)
	claimRepo := exportrepos.NewWriteClaimRepo(thePG, log)
	fieldRepo := meta.NewDatafieldRepo(thePG, log)
	recordRepo := meta.NewDatarecordRepo(thePG, log)

	// Services
	exportService := services.NewExportService(
		thePG, log, jobRepo, fieldRepo, redisClient, redisClient, apiKey, exportDir,
	)

	// Pipelines
	registry := jobrt.NewRegistry()
	pipelines := []jobrt.Handler{
		csv_export_build.New(thePG, log, fieldRepo, recordRepo, redisClient, apiKey),
		csv_export_write.New(thePG, log, jobRepo, claimRepo, fieldRepo, redisClient, apiKey, exportDir),
		csv_export_finalize.New(thePG, log, claimRepo, redisClient, apiKey, exportDir),
	}
	for _, p := range pipelines {
		if err := registry.Register(p); err != nil {
			log.Fatal("Pipeline registration failed", "tube", p.Tube(), "error", err)
		}
	}

	// Worker pool
	worker.NewWorker(log, redisClient, registry).Start(ctx)

	// HTTP
	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:           log,
		ExportHandler: httpH.NewExportHandler(log, exportService),
		StageHandler:  httpH.NewStageHandler(log, registry),
		HealthHandler: httpH.NewHealthHandler(),
		WorkerAPIKey:  apiKey,
		ServiceName:   serviceName,
		OtelEnabled:   observability.Enabled(),
	})

	port := envutil.Str("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := server.Run(":" + port); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}
