package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subtrack/internal/amqp"
	"subtrack/internal/core"
	applog "subtrack/internal/log"
	"subtrack/internal/ports"
)

// maxAlertDays is the widest alert window a subscription may ask for.
const maxAlertDays = 60

// AlertPublisher sends renewal reminders.
type AlertPublisher interface {
	PublishRenewalAlert(ctx context.Context, alert *amqp.RenewalAlert) error
}

// RenewalStore is what the renewal processor reads from.
type RenewalStore interface {
	ListRenewals(ctx context.Context, before time.Time) ([]core.Subscription, error)
	ports.AlertLog
}

// RenewalReport summarizes one processing pass.
type RenewalReport struct {
	Checked  int
	Advanced int
	Alerted  int
	Skipped  int
	Failed   int
}

// RenewalProcessor rolls past-due billing dates forward and sends one alert
// per subscription and due date when a charge enters its alert window.
type RenewalProcessor struct {
	store            RenewalStore
	subscriptions    *SubscriptionService
	alerts           AlertPublisher
	defaultAlertDays int
	logger           *applog.Logger
}

// NewRenewalProcessor wires the processor. alerts may be nil, in which case
// only billing dates are advanced.
func NewRenewalProcessor(store RenewalStore, subscriptions *SubscriptionService, alerts AlertPublisher, defaultAlertDays int, logger *applog.Logger) *RenewalProcessor {
	if logger == nil {
		logger = applog.Discard()
	}
	if defaultAlertDays < 0 {
		defaultAlertDays = 0
	}
	if defaultAlertDays > maxAlertDays {
		defaultAlertDays = maxAlertDays
	}
	return &RenewalProcessor{
		store:            store,
		subscriptions:    subscriptions,
		alerts:           alerts,
		defaultAlertDays: defaultAlertDays,
		logger:           logger.WithComponent(applog.ComponentRenewal),
	}
}

// Process runs one pass as of now.
func (p *RenewalProcessor) Process(ctx context.Context, now time.Time) (RenewalReport, error) {
	if p.store == nil || p.subscriptions == nil {
		return RenewalReport{}, fmt.Errorf("processor not properly initialized")
	}

	today := core.DateOf(now)
	cutoff := today.AddDate(0, 0, maxAlertDays)

	subs, err := p.store.ListRenewals(ctx, cutoff)
	if err != nil {
		return RenewalReport{}, fmt.Errorf("list renewals: %w", err)
	}

	p.logger.InfoContext(ctx, "Processing renewals",
		applog.FieldCount, len(subs),
		"processing_date", today.String())

	var report RenewalReport
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		if sub.NextBillingDate.Before(today.Time) {
			advanced, err := p.advance(ctx, sub, today)
			switch {
			case errors.Is(err, ports.ErrConflict):
				// edited since listing; the next pass sees the new state
				p.logger.InfoContext(ctx, "Subscription changed during renewal, skipping",
					applog.FieldSubscriptionID, sub.ID)
				report.Skipped++
				continue
			case err != nil:
				report.Failed++
				continue
			}
			sub = advanced
			report.Advanced++
		}

		sent, err := p.alert(ctx, sub, now)
		if err != nil {
			report.Failed++
			p.logger.ErrorContext(ctx, "Failed to send renewal alert",
				applog.FieldSubscriptionID, sub.ID,
				applog.FieldError, err)
			continue
		}
		if sent {
			report.Alerted++
		}
	}

	p.logger.InfoContext(ctx, "Renewal processing complete",
		"checked", report.Checked,
		"advanced", report.Advanced,
		"alerted", report.Alerted,
		"skipped", report.Skipped,
		"failed", report.Failed)

	return report, nil
}

func (p *RenewalProcessor) advance(ctx context.Context, sub core.Subscription, today core.Date) (core.Subscription, error) {
	next, skipped, err := AdvancePast(sub, today)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to compute next billing date",
			applog.FieldSubscriptionID, sub.ID,
			applog.FieldError, err)
		return sub, err
	}

	updated, err := p.subscriptions.Reschedule(ctx, sub, next)
	if errors.Is(err, ports.ErrConflict) {
		return sub, err
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to reschedule subscription",
			applog.FieldSubscriptionID, sub.ID,
			applog.FieldError, err)
		return sub, err
	}

	p.logger.InfoContext(ctx, "Advanced billing date",
		applog.FieldSubscriptionID, sub.ID,
		applog.FieldOperation, applog.OpRenew,
		"from", sub.NextBillingDate.String(),
		"to", next.String(),
		"cycles", skipped)
	return updated, nil
}

func (p *RenewalProcessor) alertDays(sub core.Subscription) int {
	if sub.AlertDaysBefore > 0 {
		return sub.AlertDaysBefore
	}
	return p.defaultAlertDays
}

// alert publishes at most once per subscription and due date. The log entry
// is written before publishing, so a failed publish is not retried.
func (p *RenewalProcessor) alert(ctx context.Context, sub core.Subscription, now time.Time) (bool, error) {
	if p.alerts == nil {
		return false, nil
	}

	today := core.DateOf(now)
	daysUntil := int(sub.NextBillingDate.Sub(today.Time).Hours() / 24)
	if daysUntil < 0 || daysUntil > p.alertDays(sub) {
		return false, nil
	}

	fresh, err := p.store.RecordAlert(ctx, sub.ID, sub.NextBillingDate)
	if err != nil {
		return false, fmt.Errorf("record alert: %w", err)
	}
	if !fresh {
		return false, nil
	}

	alert := &amqp.RenewalAlert{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Name:           sub.Name,
		AmountCents:    sub.Amount.Cents,
		Currency:       sub.Currency,
		DueDate:        sub.NextBillingDate.String(),
		DaysUntil:      daysUntil,
		Timestamp:      now.UTC(),
	}
	if err := p.alerts.PublishRenewalAlert(ctx, alert); err != nil {
		return false, fmt.Errorf("publish alert: %w", err)
	}

	p.logger.InfoContext(ctx, "Renewal alert sent",
		applog.FieldSubscriptionID, sub.ID,
		applog.FieldUserID, sub.UserID,
		applog.FieldOperation, applog.OpAlert,
		"due_date", alert.DueDate,
		"days_until", daysUntil)
	return true, nil
}
