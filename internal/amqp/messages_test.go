package amqp

import (
	"testing"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errAMQPClosed() error { return amqp091.ErrClosed }

func TestNewSubscriptionEvent(t *testing.T) {
	msg := NewSubscriptionEvent(EventUpdated, "sub-9", "user-3", 4)

	assert.Equal(t, "sub-9", msg.ID)
	assert.Equal(t, "user-3", msg.UserID)
	assert.Equal(t, EventUpdated, msg.Type)
	assert.Equal(t, int64(4), msg.Version)
	assert.False(t, msg.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)
}

func TestSubscriptionEvent_JSON(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &SubscriptionEvent{ID: "sub-1", UserID: "u", Type: EventDeleted, Version: 2, Timestamp: ts}

	raw, err := ToJSON(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"subscription.deleted"`)

	parsed, err := FromJSON[SubscriptionEvent](raw)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, parsed.ID)
	assert.Equal(t, msg.Version, parsed.Version)
	assert.True(t, parsed.Timestamp.Equal(ts))
}

func TestSubscriptionEvent_Invalid(t *testing.T) {
	tests := map[string]string{
		"malformed":    `{"id": 5}`,
		"missing id":   `{"type":"subscription.created","version":1}`,
		"unknown type": `{"id":"a","type":"subscription.renamed"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromJSON[SubscriptionEvent]([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestRenewalAlert_JSON(t *testing.T) {
	alert := &RenewalAlert{
		SubscriptionID: "sub-1",
		UserID:         "user-1",
		Name:           "Netflix",
		AmountCents:    1599,
		Currency:       "USD",
		DueDate:        "2025-07-01",
		DaysUntil:      3,
	}
	raw, err := ToJSON(alert)
	require.NoError(t, err)

	parsed, err := FromJSON[RenewalAlert](raw)
	require.NoError(t, err)
	assert.Equal(t, *alert, *parsed)
}

func TestRenewalAlert_Invalid(t *testing.T) {
	_, err := FromJSON[RenewalAlert]([]byte(`{"subscription_id":"a","due_date":"July 1"}`))
	assert.Error(t, err)

	_, err = FromJSON[RenewalAlert]([]byte(`{"due_date":"2025-07-01"}`))
	assert.Error(t, err)
}
