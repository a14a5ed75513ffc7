package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opendatarepo/odr-backend/internal/clients/redis"
	"github.com/opendatarepo/odr-backend/internal/jobs/runtime"
	"github.com/opendatarepo/odr-backend/internal/platform/envutil"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

// Worker runs a consumer pool per registered tube. Each consumer reserves
// one message at a time and runs its handler to completion; there is no
// shared memory between invocations.
type Worker struct {
	log      *logger.Logger
	queue    redis.Queue
	registry *runtime.Registry
}

func NewWorker(baseLog *logger.Logger, queue redis.Queue, registry *runtime.Registry) *Worker {
	return &Worker{
		log:      baseLog.With("component", "ExportWorker"),
		queue:    queue,
		registry: registry,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, tube := range w.registry.Tubes() {
		w.log.Info("Starting tube consumers", "tube", tube, "concurrency", concurrency)
		for i := 0; i < concurrency; i++ {
			consumerID := i + 1
			tube := tube
			g.Go(func() error {
				w.runLoop(gctx, tube, consumerID)
				return nil
			})
		}
	}
	go func() { _ = g.Wait() }()
}

func (w *Worker) runLoop(ctx context.Context, tube string, consumerID int) {
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Consumer loop stopped", "tube", tube, "consumer_id", consumerID)
			return
		default:
		}

		raw, err := w.queue.Reserve(ctx, tube, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Warn("Reserve failed", "tube", tube, "consumer_id", consumerID, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if raw == nil {
			continue
		}

		h, ok := w.registry.Get(tube)
		if !ok {
			w.log.Warn("No handler registered for tube", "tube", tube, "consumer_id", consumerID)
			continue
		}

		jc := runtime.NewContext(ctx, tube, raw)
		w.dispatch(jc, h, tube, consumerID)
	}
}

func (w *Worker) dispatch(jc *runtime.Context, h runtime.Handler, tube string, consumerID int) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Task handler panic",
				"tube", tube,
				"consumer_id", consumerID,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if err := h.Run(jc); err != nil {
		// Failed tasks are logged, not retried here; redelivery is the
		// broker deployment's policy.
		w.log.Error("Task failed", "tube", tube, "consumer_id", consumerID, "error", err)
	}
}
