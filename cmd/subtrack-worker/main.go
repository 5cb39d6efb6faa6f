package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"subtrack/internal/cli"
	applog "subtrack/internal/log"
	"subtrack/internal/services"
	"subtrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(applog.ComponentWorker)

	logger.Info("Starting subtrack-worker")

	store, err := cli.OpenStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Cleanup()

	amqpClient := cli.NewAMQPClient(context.Background(), cfg, logger)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	var (
		syncWorker *worker.SyncWorker
		processor  *services.SyncProcessor
	)
	if cfg.SheetsEnabled() {
		exporter, err := cli.NewSheetExporter(context.Background(), cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", applog.FieldError, err)
			os.Exit(1)
		}
		syncWorker = worker.NewSyncWorker(store.Store, exporter, logger)
		processor = services.NewSyncProcessor(store.Store, exporter, services.SyncProcessorConfig{
			PollInterval: cfg.SyncInterval,
			BatchSize:    cfg.SyncBatchSize,
			MaxRetries:   services.DefaultSyncProcessorConfig().MaxRetries,
		}, logger)
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	if syncWorker == nil && amqpClient == nil {
		logger.Error("Nothing to do: configure AMQP_URL or GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if processor != nil && processor.IsRunning() {
			if err := processor.Stop(ctx); err != nil {
				logger.Warn("Sync processor stop error", applog.FieldError, err)
			}
		}
	})

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start sync processor", applog.FieldError, err)
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if amqpClient != nil {
		if syncWorker != nil {
			g.Go(func() error {
				return amqpClient.ConsumeSubscriptionEvents(gctx, syncWorker.HandleEvent)
			})
		} else {
			logger.Info("Skipping subscription events - no exporter available")
		}

		alerts := syncWorker
		if alerts == nil {
			alerts = worker.NewSyncWorker(store.Store, nil, logger)
		}
		g.Go(func() error {
			return amqpClient.ConsumeRenewalAlerts(gctx, alerts.HandleRenewalAlert)
		})
	} else {
		logger.Info("AMQP disabled - relying on periodic sync only")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
