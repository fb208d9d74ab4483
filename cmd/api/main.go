package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/fkoehler/taxagent/internal/adapters/http"
	"github.com/fkoehler/taxagent/internal/bootstrap"
	"github.com/fkoehler/taxagent/internal/config"
	"github.com/fkoehler/taxagent/internal/observability/logging"
	"github.com/fkoehler/taxagent/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.IngestUC,
		app.DedupUC,
		app.ReviewUC,
		app.ExportUC,
		app.Accounts,
		app.Documents,
		app.Batches,
		app.Mandants,
		app.Queue,
		app.Tokens,
		httpadapter.RouterOptions{
			CallbackSecret:  cfg.CallbackSecret,
			Metrics:         metrics.NewHTTPServerMetrics("api"),
			RateLimitRPS:    cfg.APIRateLimitRPS,
			RateLimitBurst:  cfg.APIRateLimitBurst,
			MaxConcurrent:   cfg.APIMaxConcurrent,
			AcquireDeadline: cfg.AcquireDeadline(),
		},
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
