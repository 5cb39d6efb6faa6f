package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/core"
	"subtrack/internal/ports"
	"subtrack/internal/storage/memory"
)

type fixedRates struct {
	table core.RateTable
	bases []string
}

func (f *fixedRates) Rates(_ context.Context, base string) core.RateTable {
	f.bases = append(f.bases, base)
	return f.table
}

func seedAnalytics(t *testing.T, displayCurrency string) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateUser(ctx, core.User{ID: "u1", Email: "a@b.c", DisplayCurrency: displayCurrency}))

	subs := []core.Subscription{
		{ID: "s1", Name: "Netflix", Amount: core.Money{Cents: 1599}, Currency: "USD", Cycle: core.Monthly,
			Status: core.StatusActive, Category: "Streaming", NextBillingDate: core.NewDate(2025, 6, 20)},
		{ID: "s2", Name: "Spotify", Amount: core.Money{Cents: 999}, Currency: "EUR", Cycle: core.Monthly,
			Status: core.StatusActive, Category: "Music", NextBillingDate: core.NewDate(2025, 6, 25)},
		{ID: "s3", Name: "Cloud", Amount: core.Money{Cents: 12000}, Currency: "USD", Cycle: core.Yearly,
			Status: core.StatusPaused, NextBillingDate: core.NewDate(2025, 12, 1)},
	}
	for _, s := range subs {
		s.UserID = "u1"
		s.StartDate = core.NewDate(2025, 1, 1)
		s.Version = 1
		require.NoError(t, store.CreateSubscription(ctx, s))
	}
	return store
}

func newAnalytics(store *memory.Store, src RateSource, cfg AnalyticsConfig) *AnalyticsService {
	svc := NewAnalyticsService(store, store, src, cfg, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestAnalyticsService_Summary(t *testing.T) {
	store := seedAnalytics(t, "")
	rates := &fixedRates{table: core.RateTable{"USD": 1, "EUR": 0.5}}
	svc := newAnalytics(store, rates, AnalyticsConfig{})

	got, err := svc.Summary(context.Background(), "u1")
	require.NoError(t, err)

	// 15.99 + 9.99 EUR at 0.5 per USD = 15.99 + 19.98
	assert.Equal(t, "USD", got.DisplayCurrency)
	assert.InDelta(t, 35.97, got.MonthlySpending, 1e-9)
	assert.InDelta(t, 431.64, got.YearlySpending, 1e-9)
	require.Len(t, got.CategorySpending, 2)
	assert.Equal(t, "Music", got.CategorySpending[0].Category)
	assert.Len(t, got.MonthlyTrends, 12)
	require.Len(t, got.UpcomingPayments, 2)
	assert.Equal(t, "s1", got.UpcomingPayments[0].SubscriptionID)

	assert.Equal(t, []string{"USD"}, rates.bases)
}

func TestAnalyticsService_UserDisplayCurrency(t *testing.T) {
	store := seedAnalytics(t, "EUR")
	svc := newAnalytics(store, &fixedRates{table: core.RateTable{"USD": 1, "EUR": 0.5}}, AnalyticsConfig{DefaultCurrency: "GBP"})

	got, err := svc.Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "EUR", got.DisplayCurrency)
	// 15.99 USD -> 8.00 EUR (7.995 before rounding), plus 9.99 EUR
	assert.InDelta(t, 17.99, got.MonthlySpending, 0.006)
}

func TestAnalyticsService_DefaultCurrencyFromConfig(t *testing.T) {
	store := seedAnalytics(t, "")
	svc := newAnalytics(store, nil, AnalyticsConfig{DefaultCurrency: "GBP"})

	got, err := svc.Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "GBP", got.DisplayCurrency)
	assert.Greater(t, got.MonthlySpending, 0.0)
}

func TestAnalyticsService_UnknownUser(t *testing.T) {
	svc := newAnalytics(memory.New(), nil, AnalyticsConfig{})
	_, err := svc.Summary(context.Background(), "ghost")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	_, err = svc.Dashboard(context.Background(), "ghost")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestAnalyticsService_Dashboard(t *testing.T) {
	store := seedAnalytics(t, "")
	svc := newAnalytics(store, &fixedRates{table: core.RateTable{"USD": 1, "EUR": 0.5}}, AnalyticsConfig{})

	got, err := svc.Dashboard(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 3, got.TotalSubscriptions)
	assert.Equal(t, 2, got.ActiveSubscriptions)
	assert.Equal(t, map[core.Status]int{core.StatusActive: 2, core.StatusPaused: 1}, got.StatusCounts)
	assert.InDelta(t, 35.97, got.MonthlySpending, 1e-9)
	assert.Len(t, got.UpcomingPayments, 2)
}

func TestAnalyticsService_EmptyUser(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.CreateUser(context.Background(), core.User{ID: "u1", Email: "a@b.c"}))
	svc := newAnalytics(store, nil, AnalyticsConfig{})

	got, err := svc.Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, got.MonthlySpending)
	assert.Empty(t, got.CategorySpending)
	assert.NotNil(t, got.UpcomingPayments)
	assert.Len(t, got.MonthlyTrends, 12)
}
