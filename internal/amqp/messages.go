package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a subscription lifecycle change.
type EventType string

const (
	EventCreated EventType = "subscription.created"
	EventUpdated EventType = "subscription.updated"
	EventDeleted EventType = "subscription.deleted"
)

// SubscriptionEvent is a lightweight change notification. Consumers fetch
// the current record from storage; Version lets them drop stale events.
type SubscriptionEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      EventType `json:"type"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSubscriptionEvent stamps an event with the current time.
func NewSubscriptionEvent(typ EventType, id, userID string, version int64) *SubscriptionEvent {
	return &SubscriptionEvent{
		ID:        id,
		UserID:    userID,
		Type:      typ,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

// Validate rejects events a consumer cannot act on.
func (e *SubscriptionEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("subscription event: missing id")
	}
	switch e.Type {
	case EventCreated, EventUpdated, EventDeleted:
		return nil
	default:
		return fmt.Errorf("subscription event: unknown type %q", e.Type)
	}
}

// RenewalAlert tells a user a charge is coming up.
type RenewalAlert struct {
	SubscriptionID string    `json:"subscription_id"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	DueDate        string    `json:"due_date"`
	DaysUntil      int       `json:"days_until"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate rejects alerts without a subscription or due date.
func (a *RenewalAlert) Validate() error {
	if a.SubscriptionID == "" {
		return fmt.Errorf("renewal alert: missing subscription id")
	}
	if _, err := time.Parse("2006-01-02", a.DueDate); err != nil {
		return fmt.Errorf("renewal alert: bad due date %q", a.DueDate)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func ToJSON(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

type validator interface {
	Validate() error
}

// FromJSON decodes and validates a message.
func FromJSON[T any, PT interface {
	*T
	validator
}](data []byte) (*T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := PT(&msg).Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
