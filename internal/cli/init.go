// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/subtrack, cmd/subtrack-worker, cmd/renewal-worker and cmd/subtrackctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"subtrack/internal/amqp"
	"subtrack/internal/backend"
	"subtrack/internal/cache"
	"subtrack/internal/config"
	applog "subtrack/internal/log"
	"subtrack/internal/rates"
	gsheet "subtrack/internal/sheets/google"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(level, format string) *applog.Logger {
	cfg := applog.DefaultConfig()
	if lvl, err := applog.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	if format != "" {
		cfg.Format = strings.ToLower(format)
	}
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenStore creates the configured storage backend.
func OpenStore(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*backend.BackendResult, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
}

// NewRatesService wires the HTTP rate provider with a Redis snapshot store
// when REDIS_ADDR is set, else an in-process LRU registered with manager.
// The returned cleanup closes the Redis client.
func NewRatesService(ctx context.Context, cfg *config.Config, manager *cache.Manager, logger *applog.Logger) (*rates.Service, func() error) {
	var provider rates.Provider
	if cfg.RatesAPIURL != "" {
		provider = rates.NewHTTPProvider(cfg.RatesAPIURL, 10*time.Second)
	}

	// stale snapshots are kept well past the TTL as the fallback
	retention := 7 * 24 * time.Hour
	cleanup := func() error { return nil }

	var store rates.Store
	if cfg.RedisEnabled() {
		client := rates.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WarnContext(ctx, "Redis unreachable, rate snapshots may not be shared until it recovers",
				"addr", cfg.RedisAddr, applog.FieldError, err)
		}
		store = rates.NewRedisStore(client, retention)
		cleanup = client.Close
		logger.InfoContext(ctx, "Using Redis rate cache", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	} else {
		mem := rates.NewMemoryStore(32, retention)
		if manager != nil {
			manager.Register(mem.Cleaner())
		}
		store = mem
	}

	return rates.NewService(provider, store, cfg.RatesCacheTTL, logger), cleanup
}

// NewAMQPClient connects to the broker, or returns nil when AMQP is not
// configured. Connection failures are logged and also yield nil: events
// are optional for the API.
func NewAMQPClient(ctx context.Context, cfg *config.Config, logger *applog.Logger) *amqp.Client {
	if !cfg.AMQPEnabled() {
		logger.InfoContext(ctx, "AMQP not configured, events disabled")
		return nil
	}
	client, err := amqp.NewClient(amqp.Config{
		URL:         cfg.AMQPURL,
		Exchange:    cfg.AMQPExchange,
		Queue:       cfg.AMQPQueue,
		AlertsQueue: cfg.AMQPAlertsQueue,
	}, logger)
	if err != nil {
		logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		return nil
	}
	logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"alerts_queue", cfg.AMQPAlertsQueue)
	return client
}

// NewSheetExporter creates the Google Sheets exporter.
func NewSheetExporter(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*gsheet.Exporter, error) {
	if !cfg.SheetsEnabled() {
		return nil, fmt.Errorf("GOOGLE_SPREADSHEET_ID is not set")
	}
	return gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
