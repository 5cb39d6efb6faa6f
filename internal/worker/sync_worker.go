package worker

import (
	"context"
	"errors"
	"fmt"

	"subtrack/internal/amqp"
	applog "subtrack/internal/log"
	"subtrack/internal/ports"
)

// SyncWorker mirrors subscription events into the spreadsheet.
type SyncWorker struct {
	tracker  ports.SyncTracker
	exporter ports.SheetExporter
	logger   *applog.Logger
}

func NewSyncWorker(tracker ports.SyncTracker, exporter ports.SheetExporter, logger *applog.Logger) *SyncWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &SyncWorker{
		tracker:  tracker,
		exporter: exporter,
		logger:   logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleEvent processes a single subscription event from AMQP. Created and
// updated events export the current stored row, not the event payload, so
// events arriving out of order still leave the newest version in the sheet.
// Events at or below the last synced version are skipped.
func (w *SyncWorker) HandleEvent(ctx context.Context, msg *amqp.SubscriptionEvent) error {
	w.logger.InfoContext(ctx, "Processing subscription event",
		applog.FieldSubscriptionID, msg.ID,
		applog.FieldEvent, string(msg.Type),
		"version", msg.Version)

	switch msg.Type {
	case amqp.EventCreated, amqp.EventUpdated:
		synced, err := w.tracker.SyncedVersion(ctx, msg.ID)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("read synced version of %s: %w", msg.ID, err)
		}
		if err == nil && msg.Version <= synced {
			w.logger.DebugContext(ctx, "Event already synced, skipping",
				applog.FieldSubscriptionID, msg.ID,
				"version", msg.Version,
				"synced_version", synced)
			return nil
		}
		return w.export(ctx, msg.ID)
	case amqp.EventDeleted:
		if err := w.exporter.Remove(ctx, msg.ID); err != nil {
			return fmt.Errorf("remove row for %s: %w", msg.ID, err)
		}
		w.logger.InfoContext(ctx, "Removed subscription row", applog.FieldSubscriptionID, msg.ID)
		return nil
	default:
		return fmt.Errorf("unknown event type %q", msg.Type)
	}
}

func (w *SyncWorker) export(ctx context.Context, id string) error {
	current, err := w.tracker.FindSubscription(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		// deleted since; the delete event clears the row
		w.logger.DebugContext(ctx, "Subscription gone, skipping export", applog.FieldSubscriptionID, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", id, err)
	}

	ref, err := w.exporter.Upsert(ctx, current)
	if err != nil {
		// the row stays pending for the sync processor
		return fmt.Errorf("export %s: %w", id, err)
	}

	if err := w.tracker.MarkSynced(ctx, id, current.Version); err != nil {
		// the row is in the sheet; the poller will re-export at worst
		w.logger.ErrorContext(ctx, "Failed to mark as synced", applog.FieldSubscriptionID, id, applog.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Exported subscription",
		applog.FieldSubscriptionID, id,
		"version", current.Version,
		"sheets_ref", ref)
	return nil
}

// HandleRenewalAlert logs a renewal reminder. It is the delivery end of the
// alerts queue.
func (w *SyncWorker) HandleRenewalAlert(ctx context.Context, alert *amqp.RenewalAlert) error {
	w.logger.InfoContext(ctx, "Upcoming renewal",
		applog.FieldSubscriptionID, alert.SubscriptionID,
		applog.FieldUserID, alert.UserID,
		applog.FieldSubscription, alert.Name,
		applog.FieldAmountCents, alert.AmountCents,
		applog.FieldCurrency, alert.Currency,
		"due_date", alert.DueDate,
		"days_until", alert.DaysUntil)
	return nil
}
