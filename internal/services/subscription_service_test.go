package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"subtrack/internal/amqp"
	"subtrack/internal/core"
	"subtrack/internal/ports"
	"subtrack/internal/storage/memory"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishSubscriptionEvent(ctx context.Context, evt *amqp.SubscriptionEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *mockPublisher) PublishRenewalAlert(ctx context.Context, alert *amqp.RenewalAlert) error {
	return m.Called(ctx, alert).Error(0)
}

func eventOf(typ amqp.EventType, version int64) any {
	return mock.MatchedBy(func(e *amqp.SubscriptionEvent) bool {
		return e.Type == typ && e.Version == version
	})
}

func newStoreWithUser(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.CreateUser(context.Background(), core.User{ID: "u1", Email: "a@b.c"}))
	return store
}

func newSubscriptionService(store SubscriptionStore, pub EventPublisher) *SubscriptionService {
	svc := NewSubscriptionService(store, pub, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func netflix() core.Subscription {
	return core.Subscription{
		UserID:          "u1",
		Name:            "  Netflix ",
		Amount:          core.Money{Cents: 1599},
		Currency:        "usd",
		Cycle:           core.Monthly,
		StartDate:       core.NewDate(2025, 1, 10),
		NextBillingDate: core.NewDate(2025, 7, 10),
	}
}

func TestSubscriptionService_Create(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUser(t)
	pub := &mockPublisher{}
	pub.On("PublishSubscriptionEvent", mock.Anything, eventOf(amqp.EventCreated, 1)).Return(nil).Once()

	svc := newSubscriptionService(store, pub)
	got, err := svc.Create(ctx, netflix())
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Netflix", got.Name)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, core.StatusActive, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, fixedNow, got.CreatedAt)

	stored, err := store.GetSubscription(ctx, "u1", got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Name, stored.Name)
	pub.AssertExpectations(t)
}

func TestSubscriptionService_CreateDefaultsBillingDate(t *testing.T) {
	svc := newSubscriptionService(newStoreWithUser(t), nil)

	sub := netflix()
	sub.NextBillingDate = core.Date{}
	got, err := svc.Create(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2025, 7, 10), got.NextBillingDate, "first charge on or after today")

	sub = netflix()
	sub.StartDate = core.Date{}
	sub.NextBillingDate = core.Date{}
	got, err = svc.Create(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, core.DateOf(fixedNow), got.StartDate)
	assert.Equal(t, core.DateOf(fixedNow), got.NextBillingDate)
}

func TestSubscriptionService_CreateValidation(t *testing.T) {
	tests := map[string]func(*core.Subscription){
		"empty name":       func(s *core.Subscription) { s.Name = "  " },
		"negative amount":  func(s *core.Subscription) { s.Amount.Cents = -1 },
		"bad currency":     func(s *core.Subscription) { s.Currency = "dollars" },
		"bad cycle":        func(s *core.Subscription) { s.Cycle = "daily" },
		"bad status":       func(s *core.Subscription) { s.Status = "gone" },
		"unknown folder":   func(s *core.Subscription) { s.FolderID = "nope" },
		"unknown tag":      func(s *core.Subscription) { s.TagIDs = []string{"nope"} },
		"unknown payment":  func(s *core.Subscription) { s.PaymentMethodID = "nope" },
		"billing < start":  func(s *core.Subscription) { s.NextBillingDate = core.NewDate(2024, 1, 1) },
		"alert days > max": func(s *core.Subscription) { s.AlertDaysBefore = 61 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			pub := &mockPublisher{}
			svc := newSubscriptionService(newStoreWithUser(t), pub)

			sub := netflix()
			mutate(&sub)
			_, err := svc.Create(context.Background(), sub)
			require.Error(t, err)
			assert.ErrorAs(t, err, new(*ValidationError), "got %v", err)
			pub.AssertNotCalled(t, "PublishSubscriptionEvent", mock.Anything, mock.Anything)
		})
	}
}

func TestSubscriptionService_CreateUnknownUser(t *testing.T) {
	svc := newSubscriptionService(memory.New(), nil)
	_, err := svc.Create(context.Background(), netflix())
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.NotErrorAs(t, err, new(*ValidationError))
}

func TestSubscriptionService_CreateWithCatalogRefs(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUser(t)
	require.NoError(t, store.CreateFolder(ctx, core.Folder{ID: "f1", UserID: "u1", Name: "Streaming"}))
	require.NoError(t, store.CreateTag(ctx, core.Tag{ID: "t1", UserID: "u1", Name: "family"}))
	require.NoError(t, store.CreatePaymentMethod(ctx, core.PaymentMethod{ID: "p1", UserID: "u1", Name: "Visa", Kind: core.PaymentCard}))

	svc := newSubscriptionService(store, nil)
	sub := netflix()
	sub.FolderID = "f1"
	sub.PaymentMethodID = "p1"
	sub.TagIDs = []string{"t1", "t1", " "}

	got, err := svc.Create(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, got.TagIDs)

	require.NoError(t, store.CreateUser(ctx, core.User{ID: "u2", Email: "x@y.z"}))
	other := netflix()
	other.UserID = "u2"
	other.FolderID = "f1"
	_, err = svc.Create(ctx, other)
	assert.ErrorAs(t, err, new(*ValidationError), "folders of other users are rejected")
}

func TestSubscriptionService_PublishFailureIsNotFatal(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("PublishSubscriptionEvent", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	svc := newSubscriptionService(newStoreWithUser(t), pub)
	got, err := svc.Create(context.Background(), netflix())
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	pub.AssertNumberOfCalls(t, "PublishSubscriptionEvent", 1)
}

func TestSubscriptionService_Update(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUser(t)
	pub := &mockPublisher{}
	pub.On("PublishSubscriptionEvent", mock.Anything, eventOf(amqp.EventCreated, 1)).Return(nil)
	pub.On("PublishSubscriptionEvent", mock.Anything, eventOf(amqp.EventUpdated, 2)).Return(nil).Once()

	svc := newSubscriptionService(store, pub)
	created, err := svc.Create(ctx, netflix())
	require.NoError(t, err)

	change := created
	change.Amount = core.Money{Cents: 1799}
	change.Status = core.StatusPaused
	change.CreatedAt = time.Time{}
	updated, err := svc.Update(ctx, change)
	require.NoError(t, err)

	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, int64(1799), updated.Amount.Cents)
	pub.AssertExpectations(t)
}

func TestSubscriptionService_UpdateOtherUser(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUser(t)
	svc := newSubscriptionService(store, nil)
	created, err := svc.Create(ctx, netflix())
	require.NoError(t, err)

	created.UserID = "u2"
	_, err = svc.Update(ctx, created)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestSubscriptionService_UpdateCycleRecomputesBilling(t *testing.T) {
	ctx := context.Background()
	svc := newSubscriptionService(newStoreWithUser(t), nil)
	created, err := svc.Create(ctx, netflix())
	require.NoError(t, err)

	change := created
	change.Cycle = core.Yearly
	change.NextBillingDate = core.Date{}
	updated, err := svc.Update(ctx, change)
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2026, 1, 10), updated.NextBillingDate)
}

func TestSubscriptionService_Delete(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUser(t)
	pub := &mockPublisher{}
	pub.On("PublishSubscriptionEvent", mock.Anything, eventOf(amqp.EventCreated, 1)).Return(nil)
	pub.On("PublishSubscriptionEvent", mock.Anything, eventOf(amqp.EventDeleted, 2)).Return(nil).Once()

	svc := newSubscriptionService(store, pub)
	created, err := svc.Create(ctx, netflix())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "u1", created.ID))
	_, err = svc.Get(ctx, "u1", created.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, "u1", created.ID), ports.ErrNotFound)
	pub.AssertExpectations(t)
}

func TestSubscriptionService_List(t *testing.T) {
	ctx := context.Background()
	svc := newSubscriptionService(newStoreWithUser(t), nil)

	a := netflix()
	_, err := svc.Create(ctx, a)
	require.NoError(t, err)
	b := netflix()
	b.Name = "Gym"
	b.Status = core.StatusPaused
	_, err = svc.Create(ctx, b)
	require.NoError(t, err)

	all, err := svc.List(ctx, "u1", ports.SubscriptionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paused, err := svc.List(ctx, "u1", ports.SubscriptionFilter{Status: core.StatusPaused})
	require.NoError(t, err)
	require.Len(t, paused, 1)
	assert.Equal(t, "Gym", paused[0].Name)
}

func TestSubscriptionService_Reschedule(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUser(t)
	svc := newSubscriptionService(store, nil)
	created, err := svc.Create(ctx, netflix())
	require.NoError(t, err)

	moved, err := svc.Reschedule(ctx, created, core.NewDate(2025, 8, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved.Version)

	stored, err := store.GetSubscription(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2025, 8, 10), stored.NextBillingDate)
}

func TestSubscriptionService_RescheduleStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUser(t)
	svc := newSubscriptionService(store, nil)
	created, err := svc.Create(ctx, netflix())
	require.NoError(t, err)

	stale := created
	edit := created
	edit.Status = core.StatusCancelled
	edit.Name = "Netflix (old plan)"
	_, err = svc.Update(ctx, edit)
	require.NoError(t, err)

	_, err = svc.Reschedule(ctx, stale, core.NewDate(2025, 8, 10))
	assert.ErrorIs(t, err, ports.ErrConflict)

	stored, err := store.GetSubscription(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, stored.Status)
	assert.Equal(t, "Netflix (old plan)", stored.Name)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, created.NextBillingDate, stored.NextBillingDate)
}

func TestSubscriptionService_TimestampsMatchStore(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUser(t)
	svc := newSubscriptionService(store, nil)
	created, err := svc.Create(ctx, netflix())
	require.NoError(t, err)

	stored, err := store.GetSubscription(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, stored.CreatedAt)
	assert.Equal(t, created.CreatedAt, stored.CreatedAt)
	assert.Equal(t, created.UpdatedAt, stored.UpdatedAt)
}
