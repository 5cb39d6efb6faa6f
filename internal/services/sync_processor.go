package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"subtrack/internal/core"
	applog "subtrack/internal/log"
	"subtrack/internal/ports"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending rows (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of rows to export per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of failed exports before a row is marked as failed (default: 3)
	MaxRetries int
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
	}
}

// SyncProcessor polls the store for subscriptions whose latest version has
// not reached the spreadsheet and exports them. It catches up on anything
// the event consumer missed.
type SyncProcessor struct {
	tracker  ports.SyncTracker
	exporter ports.SheetExporter
	config   SyncProcessorConfig
	logger   *applog.Logger

	// failed export attempts per subscription since start
	attempts map[string]int

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(tracker ports.SyncTracker, exporter ports.SheetExporter, config SyncProcessorConfig, logger *applog.Logger) *SyncProcessor {
	defaults := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &SyncProcessor{
		tracker:  tracker,
		exporter: exporter,
		config:   config,
		logger:   logger.WithComponent(applog.ComponentSheets),
		attempts: make(map[string]int),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	if p.tracker == nil || p.exporter == nil {
		p.mu.Unlock()
		return fmt.Errorf("sync processor not properly initialized")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Give rows that failed before the last restart another chance
	if n, err := p.tracker.ResetSyncErrors(ctx); err != nil {
		p.logger.WarnContext(ctx, "Failed to reset sync errors", applog.FieldError, err)
	} else if n > 0 {
		p.logger.InfoContext(ctx, "Re-queued failed sync rows", applog.FieldCount, n)
	}

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch exports one batch of pending rows and returns how many succeeded.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) int {
	subs, err := p.tracker.ListPendingSync(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list pending sync rows", applog.FieldError, err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}

	p.logger.DebugContext(ctx, "Processing sync batch", applog.FieldCount, len(subs))

	synced := 0
	for _, sub := range subs {
		if p.stopping(ctx) {
			return synced
		}

		ref, err := p.exporter.Upsert(ctx, sub)
		if err != nil {
			p.handleFailure(ctx, sub, err)
			continue
		}

		delete(p.attempts, sub.ID)
		if err := p.tracker.MarkSynced(ctx, sub.ID, sub.Version); err != nil {
			// the row is in the sheet; it will be exported again next poll
			p.logger.WarnContext(ctx, "Failed to mark subscription as synced",
				applog.FieldSubscriptionID, sub.ID, applog.FieldError, err)
			continue
		}
		synced++

		p.logger.InfoContext(ctx, "Synced subscription to Google Sheets",
			applog.FieldSubscriptionID, sub.ID,
			"version", sub.Version,
			"sheets_ref", ref)
	}
	return synced
}

func (p *SyncProcessor) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	p.mu.Lock()
	stopCh := p.stopCh
	p.mu.Unlock()
	if stopCh == nil {
		return false
	}
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

func (p *SyncProcessor) handleFailure(ctx context.Context, sub core.Subscription, exportErr error) {
	p.attempts[sub.ID]++
	attempt := p.attempts[sub.ID]

	p.logger.WarnContext(ctx, "Sync export failed",
		applog.FieldSubscriptionID, sub.ID,
		"attempt", attempt,
		applog.FieldError, exportErr)

	if attempt < p.config.MaxRetries {
		return
	}

	delete(p.attempts, sub.ID)
	if err := p.tracker.MarkSyncError(ctx, sub.ID); err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark sync error",
			applog.FieldSubscriptionID, sub.ID, applog.FieldError, err)
		return
	}
	p.logger.ErrorContext(ctx, "Sync failed permanently after max retries",
		applog.FieldSubscriptionID, sub.ID,
		"attempts", attempt)
}
