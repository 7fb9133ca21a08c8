package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docflow/internal/bootstrap"
	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/observability/logging"
)

const serviceName = "docflow-worker"

func main() {
	cfg := config.Load()
	cfg.EventsBackend = config.EventsNATS
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	if cfg.StoreBackend == config.StoreMemory {
		logger.Warn("worker_store_not_shared", "store_backend", cfg.StoreBackend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "event", domain.EventDocumentUploaded, "metrics_addr", metricsServer.Addr)
	err = app.Bus.Subscribe(ctx, domain.EventDocumentUploaded, func(handlerCtx context.Context, event domain.Event) error {
		if !event.OccurredAt.IsZero() {
			app.Metrics.ObserveQueueLag(time.Since(event.OccurredAt))
		}
		analyzeCtx, cancel := context.WithTimeout(handlerCtx, cfg.BatchDocumentTimeout)
		defer cancel()
		_, err := app.AnalyzeUC.AnalyzeDocument(analyzeCtx, event.DocumentID)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}
