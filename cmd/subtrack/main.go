package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"subtrack/internal/cache"
	"subtrack/internal/cli"
	apphttp "subtrack/internal/http"
	applog "subtrack/internal/log"
	"subtrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	store, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	rateCaches := cache.NewManager(logger)
	rateSvc, closeRates := cli.NewRatesService(ctx, cfg, rateCaches, logger)
	rateCaches.StartCleanup(time.Hour)

	var publisher services.EventPublisher
	amqpClient := cli.NewAMQPClient(ctx, cfg, logger)
	if amqpClient != nil {
		publisher = amqpClient
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Users:         services.NewUserService(store.Store),
		Subscriptions: services.NewSubscriptionService(store.Store, publisher, logger),
		Catalog:       services.NewCatalogService(store.Store),
		Analytics: services.NewAnalyticsService(store.Store, store.Store, rateSvc, services.AnalyticsConfig{
			RatesBase:       cfg.RatesBase,
			DefaultCurrency: cfg.DefaultDisplayCurrency,
		}, logger),
		Rates:           rateSvc,
		Store:           store.Store,
		RatesBase:       cfg.RatesBase,
		DefaultCurrency: cfg.DefaultDisplayCurrency,
		RequestsPerMin:  cfg.RateLimitPerMinute,
		TrustedProxies:  cfg.TrustedProxies,
		Logger:          logger,
	})

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		rateCaches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if err := closeRates(); err != nil {
			logger.Warn("Redis close error", applog.FieldError, err)
		}
		if err := store.Cleanup(); err != nil {
			logger.Warn("Store close error", applog.FieldError, err)
		}
	})

	logger.Info("Starting subtrack server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", cfg.AMQPEnabled(),
		"redis", cfg.RedisEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
