package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"subtrack/internal/amqp"
	"subtrack/internal/core"
	"subtrack/internal/storage/memory"
)

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) Upsert(ctx context.Context, s core.Subscription) (string, error) {
	args := m.Called(ctx, s)
	return args.String(0), args.Error(1)
}

func (m *mockExporter) Remove(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func seedStore(t *testing.T, version int64) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateUser(ctx, core.User{ID: "u1", Email: "u1@example.com", Name: "U1"}))
	require.NoError(t, store.CreateSubscription(ctx, core.Subscription{
		ID: "s1", UserID: "u1", Name: "Netflix", Amount: core.Money{Cents: 1599}, Currency: "USD",
		Cycle: core.Monthly, Status: core.StatusActive,
		StartDate: core.NewDate(2025, 1, 10), NextBillingDate: core.NewDate(2025, 7, 10),
		Version: version,
	}))
	return store
}

func TestSyncWorker_HandleEvent(t *testing.T) {
	tests := []struct {
		name        string
		event       amqp.SubscriptionEvent
		synced      int64
		setup       func(*mockExporter)
		wantErr     bool
		wantPending int
	}{
		{
			name:  "created exports current row",
			event: amqp.SubscriptionEvent{ID: "s1", Type: amqp.EventCreated, Version: 1},
			setup: func(m *mockExporter) {
				m.On("Upsert", mock.Anything, mock.MatchedBy(func(s core.Subscription) bool {
					return s.ID == "s1" && s.Version == 3
				})).Return("Subscriptions!A2:L2", nil).Once()
			},
			wantPending: 0,
		},
		{
			name:  "stale updated event still exports newest version",
			event: amqp.SubscriptionEvent{ID: "s1", Type: amqp.EventUpdated, Version: 2},
			setup: func(m *mockExporter) {
				m.On("Upsert", mock.Anything, mock.MatchedBy(func(s core.Subscription) bool {
					return s.Version == 3
				})).Return("Subscriptions!A2:L2", nil).Once()
			},
			wantPending: 0,
		},
		{
			name:        "event covered by a synced version is skipped",
			event:       amqp.SubscriptionEvent{ID: "s1", Type: amqp.EventUpdated, Version: 2},
			synced:      3,
			setup:       func(m *mockExporter) {},
			wantPending: 0,
		},
		{
			name:   "event newer than the synced version exports",
			event:  amqp.SubscriptionEvent{ID: "s1", Type: amqp.EventUpdated, Version: 3},
			synced: 2,
			setup: func(m *mockExporter) {
				m.On("Upsert", mock.Anything, mock.Anything).Return("Subscriptions!A2:L2", nil).Once()
			},
			wantPending: 0,
		},
		{
			name:        "missing subscription is skipped",
			event:       amqp.SubscriptionEvent{ID: "gone", Type: amqp.EventUpdated, Version: 4},
			setup:       func(m *mockExporter) {},
			wantPending: 1,
		},
		{
			name:  "export failure leaves row pending",
			event: amqp.SubscriptionEvent{ID: "s1", Type: amqp.EventUpdated, Version: 3},
			setup: func(m *mockExporter) {
				m.On("Upsert", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded")).Once()
			},
			wantErr:     true,
			wantPending: 1,
		},
		{
			name:  "deleted clears the row",
			event: amqp.SubscriptionEvent{ID: "s1", Type: amqp.EventDeleted, Version: 4},
			setup: func(m *mockExporter) {
				m.On("Remove", mock.Anything, "s1").Return(nil).Once()
			},
			wantPending: 1,
		},
		{
			name:  "delete failure is returned",
			event: amqp.SubscriptionEvent{ID: "s1", Type: amqp.EventDeleted, Version: 4},
			setup: func(m *mockExporter) {
				m.On("Remove", mock.Anything, "s1").Return(errors.New("boom")).Once()
			},
			wantErr:     true,
			wantPending: 1,
		},
		{
			name:        "unknown type",
			event:       amqp.SubscriptionEvent{ID: "s1", Type: "subscription.archived"},
			setup:       func(m *mockExporter) {},
			wantErr:     true,
			wantPending: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := seedStore(t, 3)
			if tt.synced > 0 {
				require.NoError(t, store.MarkSynced(ctx, "s1", tt.synced))
			}
			exporter := &mockExporter{}
			tt.setup(exporter)

			w := NewSyncWorker(store, exporter, nil)
			err := w.HandleEvent(ctx, &tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			pending, err := store.ListPendingSync(ctx, 10)
			require.NoError(t, err)
			assert.Len(t, pending, tt.wantPending)
			exporter.AssertExpectations(t)
		})
	}
}

func TestSyncWorker_HandleRenewalAlert(t *testing.T) {
	w := NewSyncWorker(nil, nil, nil)
	err := w.HandleRenewalAlert(context.Background(), &amqp.RenewalAlert{
		SubscriptionID: "s1", UserID: "u1", Name: "Netflix", AmountCents: 1599,
		Currency: "USD", DueDate: "2025-07-10", DaysUntil: 3,
	})
	assert.NoError(t, err)
}
