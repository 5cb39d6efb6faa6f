package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"subtrack/internal/amqp"
	"subtrack/internal/core"
	applog "subtrack/internal/log"
	"subtrack/internal/ports"
)

// EventPublisher sends subscription change notifications.
type EventPublisher interface {
	PublishSubscriptionEvent(ctx context.Context, evt *amqp.SubscriptionEvent) error
}

// SubscriptionStore is the slice of ports.Store the subscription service needs.
type SubscriptionStore interface {
	ports.UserRepository
	ports.SubscriptionRepository
	ports.FolderRepository
	ports.TagRepository
	ports.PaymentMethodRepository
}

// SubscriptionService validates and persists subscriptions, then publishes a
// change event. The store is the source of truth; publish failures are logged
// and never fail the write.
type SubscriptionService struct {
	store     SubscriptionStore
	publisher EventPublisher
	logger    *applog.Logger
	now       func() time.Time
}

// NewSubscriptionService wires the service. publisher may be nil.
func NewSubscriptionService(store SubscriptionStore, publisher EventPublisher, logger *applog.Logger) *SubscriptionService {
	if logger == nil {
		logger = applog.Discard()
	}
	return &SubscriptionService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentSubscription),
		now:       time.Now,
	}
}

// Create assigns an id and version 1, fills defaults, validates and saves.
func (s *SubscriptionService) Create(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	if _, err := s.store.GetUser(ctx, sub.UserID); err != nil {
		return core.Subscription{}, fmt.Errorf("load user: %w", err)
	}

	now := s.now().UTC()
	sub.ID = uuid.NewString()
	sub.Version = 1
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.normalize(&sub, core.DateOf(now))

	if err := s.validate(ctx, sub); err != nil {
		return core.Subscription{}, err
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return core.Subscription{}, fmt.Errorf("save subscription: %w", err)
	}

	s.logger.InfoContext(ctx, "Subscription created",
		applog.FieldSubscriptionID, sub.ID,
		applog.FieldUserID, sub.UserID,
		applog.FieldAmountCents, sub.Amount.Cents,
		applog.FieldCurrency, sub.Currency,
		applog.FieldCycle, sub.Cycle)

	s.publish(ctx, amqp.EventCreated, sub)
	return sub, nil
}

// Update replaces a subscription owned by sub.UserID and bumps its version.
func (s *SubscriptionService) Update(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	existing, err := s.store.GetSubscription(ctx, sub.UserID, sub.ID)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("load subscription: %w", err)
	}

	now := s.now().UTC()
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = now
	sub.Version = existing.Version + 1
	if sub.StartDate.IsEmpty() {
		sub.StartDate = existing.StartDate
	}
	if sub.NextBillingDate.IsEmpty() && sub.Cycle == existing.Cycle {
		sub.NextBillingDate = existing.NextBillingDate
	}
	s.normalize(&sub, core.DateOf(now))

	if err := s.validate(ctx, sub); err != nil {
		return core.Subscription{}, err
	}
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return core.Subscription{}, fmt.Errorf("update subscription: %w", err)
	}

	s.logger.InfoContext(ctx, "Subscription updated",
		applog.FieldSubscriptionID, sub.ID,
		applog.FieldUserID, sub.UserID,
		"version", sub.Version)

	s.publish(ctx, amqp.EventUpdated, sub)
	return sub, nil
}

// Reschedule moves the next billing date of sub without other changes. It
// reloads the subscription and returns ports.ErrConflict when it changed
// after sub was read.
func (s *SubscriptionService) Reschedule(ctx context.Context, sub core.Subscription, next core.Date) (core.Subscription, error) {
	current, err := s.store.GetSubscription(ctx, sub.UserID, sub.ID)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("reload subscription %s: %w", sub.ID, err)
	}
	if current.Version != sub.Version {
		return core.Subscription{}, fmt.Errorf("reschedule subscription %s: version %d is now %d: %w",
			sub.ID, sub.Version, current.Version, ports.ErrConflict)
	}

	sub = current
	sub.NextBillingDate = next
	sub.Version++
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return core.Subscription{}, fmt.Errorf("reschedule subscription %s: %w", sub.ID, err)
	}
	s.publish(ctx, amqp.EventUpdated, sub)
	return sub, nil
}

// Delete removes a subscription owned by userID.
func (s *SubscriptionService) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.store.GetSubscription(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	if err := s.store.DeleteSubscription(ctx, userID, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	s.logger.InfoContext(ctx, "Subscription deleted",
		applog.FieldSubscriptionID, id,
		applog.FieldUserID, userID)

	existing.Version++
	s.publish(ctx, amqp.EventDeleted, existing)
	return nil
}

// Get returns one subscription owned by userID.
func (s *SubscriptionService) Get(ctx context.Context, userID, id string) (core.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, userID, id)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// List returns userID's subscriptions matching f.
func (s *SubscriptionService) List(ctx context.Context, userID string, f ports.SubscriptionFilter) ([]core.Subscription, error) {
	subs, err := s.store.ListSubscriptions(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SubscriptionService) normalize(sub *core.Subscription, today core.Date) {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Category = strings.TrimSpace(sub.Category)
	sub.Currency = core.NormalizeCurrency(sub.Currency)
	if sub.Currency == "" {
		sub.Currency = core.DefaultCurrency
	}
	if sub.Status == "" {
		sub.Status = core.StatusActive
	}
	if sub.StartDate.IsEmpty() {
		sub.StartDate = today
	}
	if sub.NextBillingDate.IsEmpty() && sub.Cycle.IsValid() {
		first := *sub
		first.NextBillingDate = sub.StartDate
		if next, _, err := AdvancePast(first, today); err == nil {
			sub.NextBillingDate = next
		}
	}
	sub.TagIDs = dedupe(sub.TagIDs)
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// validate checks the record itself and that referenced catalog entries
// belong to the same user.
func (s *SubscriptionService) validate(ctx context.Context, sub core.Subscription) error {
	if err := sub.Validate(); err != nil {
		return invalid(err)
	}

	if sub.FolderID != "" {
		folders, err := s.store.ListFolders(ctx, sub.UserID)
		if err != nil {
			return fmt.Errorf("list folders: %w", err)
		}
		if !hasID(folders, sub.FolderID, func(f core.Folder) string { return f.ID }) {
			return invalidf("unknown folder %q", sub.FolderID)
		}
	}

	if sub.PaymentMethodID != "" {
		methods, err := s.store.ListPaymentMethods(ctx, sub.UserID)
		if err != nil {
			return fmt.Errorf("list payment methods: %w", err)
		}
		if !hasID(methods, sub.PaymentMethodID, func(p core.PaymentMethod) string { return p.ID }) {
			return invalidf("unknown payment method %q", sub.PaymentMethodID)
		}
	}

	if len(sub.TagIDs) > 0 {
		tags, err := s.store.ListTags(ctx, sub.UserID)
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}
		for _, id := range sub.TagIDs {
			if !hasID(tags, id, func(t core.Tag) string { return t.ID }) {
				return invalidf("unknown tag %q", id)
			}
		}
	}
	return nil
}

func hasID[T any](items []T, id string, key func(T) string) bool {
	for _, it := range items {
		if key(it) == id {
			return true
		}
	}
	return false
}

func (s *SubscriptionService) publish(ctx context.Context, typ amqp.EventType, sub core.Subscription) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher, skipping event",
			applog.FieldSubscriptionID, sub.ID, applog.FieldEvent, typ)
		return
	}

	evt := amqp.NewSubscriptionEvent(typ, sub.ID, sub.UserID, sub.Version)
	if err := s.publisher.PublishSubscriptionEvent(ctx, evt); err != nil {
		// the write already succeeded
		s.logger.ErrorContext(ctx, "Failed to publish subscription event",
			applog.FieldSubscriptionID, sub.ID,
			applog.FieldEvent, typ,
			applog.FieldError, err)
	}
}
