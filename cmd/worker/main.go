package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fkoehler/taxagent/internal/bootstrap"
	"github.com/fkoehler/taxagent/internal/config"
	"github.com/fkoehler/taxagent/internal/observability/logging"
	"github.com/fkoehler/taxagent/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:        ":" + cfg.WorkerMetricsPort,
		Handler:     metricsMux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSBatchSubject)
	err = app.Queue.SubscribeBatchStored(ctx, func(handlerCtx context.Context, batchID string) error {
		dispatchCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		if batch, lookupErr := app.Batches.GetByID(dispatchCtx, batchID); lookupErr == nil {
			workerMetrics.ObserveQueueLag("worker", time.Since(batch.CreatedAt))
		}

		workerMetrics.StartDispatch()
		start := time.Now()
		dispatchErr := app.DispatchUC.DispatchByID(dispatchCtx, batchID)
		workerMetrics.FinishDispatch("worker", time.Since(start), dispatchErr)
		return dispatchErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
