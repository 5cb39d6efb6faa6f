package main

import (
	"context"
	"os"
	"time"

	"subtrack/internal/cli"
	applog "subtrack/internal/log"
	"subtrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(applog.ComponentRenewal)

	logger.Info("Starting renewal-worker")

	store, err := cli.OpenStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Cleanup()

	// Rolled-forward dates and alerts go out over AMQP so the sync worker
	// mirrors them; without a broker only the store is updated.
	var (
		events services.EventPublisher
		alerts services.AlertPublisher
	)
	amqpClient := cli.NewAMQPClient(context.Background(), cfg, logger)
	if amqpClient != nil {
		defer amqpClient.Close()
		events, alerts = amqpClient, amqpClient
	}

	subscriptions := services.NewSubscriptionService(store.Store, events, logger)
	processor := services.NewRenewalProcessor(store.Store, subscriptions, alerts, cfg.AlertDaysBefore, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Renewal processor configured",
		"interval", cfg.RenewalInterval,
		"alert_days_before", cfg.AlertDaysBefore,
		"backend", cfg.DataBackend)

	run := func(now time.Time) {
		report, err := processor.Process(ctx, now)
		if err != nil {
			logger.Error("Renewal pass failed", applog.FieldError, err)
			return
		}
		logger.Info("Renewal pass complete",
			"checked", report.Checked,
			"advanced", report.Advanced,
			"alerted", report.Alerted,
			"skipped", report.Skipped,
			"failed", report.Failed,
			"next_check", now.Add(cfg.RenewalInterval).Format("15:04:05"))
	}

	run(time.Now())

	ticker := time.NewTicker(cfg.RenewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Renewal-worker stopped")
			return
		case now := <-ticker.C:
			run(now)
		}
	}
}
