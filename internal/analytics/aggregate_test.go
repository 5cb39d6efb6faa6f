package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/core"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func sub(name string, cents int64, currency string, cycle core.BillingCycle, status core.Status) core.Subscription {
	return core.Subscription{
		ID:              name,
		UserID:          "u1",
		Name:            name,
		Amount:          core.Money{Cents: cents},
		Currency:        currency,
		Cycle:           cycle,
		Status:          status,
		StartDate:       core.NewDate(2024, 1, 1),
		NextBillingDate: core.DateOf(fixedNow.AddDate(0, 2, 0)),
	}
}

func TestConvert(t *testing.T) {
	table := core.RateTable{"USD": 1, "EUR": 0.9, "GBP": 0.8}

	t.Run("identity", func(t *testing.T) {
		for _, amount := range []float64{0, 0.01, 15.99, 1e6} {
			for _, code := range []string{"USD", "EUR", "ZZZ"} {
				assert.Equal(t, amount, Convert(amount, code, code, table))
			}
		}
	})

	t.Run("round trip", func(t *testing.T) {
		for _, amount := range []float64{1, 9.99, 123.45} {
			there := Convert(amount, "USD", "EUR", table)
			back := Convert(there, "EUR", "USD", table)
			assert.InDelta(t, amount, back, 1e-9)
		}
	})

	t.Run("cross rate", func(t *testing.T) {
		assert.InDelta(t, 90.0, Convert(80, "GBP", "EUR", table), 1e-9)
	})

	t.Run("unknown currency", func(t *testing.T) {
		assert.Equal(t, 100.0, Convert(100, "USD", "ZZZ", core.RateTable{"USD": 1}))
		assert.Equal(t, 100.0, Convert(100, "ZZZ", "USD", core.RateTable{"USD": 1}))
	})

	t.Run("unusable rate", func(t *testing.T) {
		bad := core.RateTable{"USD": 1, "EUR": 0, "GBP": -2}
		assert.Equal(t, 50.0, Convert(50, "USD", "EUR", bad))
		assert.Equal(t, 50.0, Convert(50, "GBP", "USD", bad))
	})

	t.Run("nil table", func(t *testing.T) {
		assert.Equal(t, 7.5, Convert(7.5, "USD", "EUR", nil))
	})
}

func TestToMonthly(t *testing.T) {
	assert.Equal(t, 100.0/12, ToMonthly(100, core.Yearly))
	assert.Equal(t, 100.0/3, ToMonthly(100, core.Quarterly))
	assert.InDelta(t, 433.0, ToMonthly(100, core.Weekly), 1e-9)
	assert.Equal(t, 100.0, ToMonthly(100, core.Monthly))
	assert.Equal(t, 100.0, ToMonthly(100, core.BillingCycle("daily")))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 31.51, Round2(31.505833))
	assert.Equal(t, 0.0, Round2(0.004))
	assert.Equal(t, 1.5, Round2(1.499999))
}

func TestTotalsActiveOnly(t *testing.T) {
	subs := []core.Subscription{
		sub("a", 1000, "USD", core.Monthly, core.StatusActive),
		sub("b", 99900, "USD", core.Monthly, core.StatusCancelled),
		sub("c", 500, "USD", core.Monthly, core.StatusTrial),
		sub("d", 700, "USD", core.Monthly, core.StatusPaused),
	}
	monthly, yearly := New(core.RateTable{"USD": 1}, "USD").Totals(subs)
	assert.Equal(t, 10.0, monthly)
	assert.Equal(t, 120.0, yearly)
}

func TestTotalsEmpty(t *testing.T) {
	monthly, yearly := New(nil, "").Totals(nil)
	assert.Zero(t, monthly)
	assert.Zero(t, yearly)
}

func TestCategories(t *testing.T) {
	t.Run("uncategorized grouping", func(t *testing.T) {
		subs := []core.Subscription{
			sub("a", 1000, "USD", core.Monthly, core.StatusActive),
			sub("b", 1000, "USD", core.Monthly, core.StatusActive),
		}
		got := New(core.RateTable{"USD": 1}, "USD").Categories(subs)
		require.Len(t, got, 1)
		assert.Equal(t, core.CategoryAmount{Category: core.Uncategorized, Amount: 20}, got[0])
	})

	t.Run("sorted descending with name tie break", func(t *testing.T) {
		mk := func(name, category string, cents int64) core.Subscription {
			s := sub(name, cents, "USD", core.Monthly, core.StatusActive)
			s.Category = category
			return s
		}
		subs := []core.Subscription{
			mk("a", "Tools", 500),
			mk("b", "Streaming", 2000),
			mk("c", "Music", 500),
			mk("d", "Cloud", 1200),
			mk("e", "Streaming", 100),
		}
		got := New(core.RateTable{"USD": 1}, "USD").Categories(subs)
		require.Len(t, got, 4)
		assert.Equal(t, []core.CategoryAmount{
			{Category: "Streaming", Amount: 21},
			{Category: "Cloud", Amount: 12},
			{Category: "Music", Amount: 5},
			{Category: "Tools", Amount: 5},
		}, got)
	})

	t.Run("inactive skipped", func(t *testing.T) {
		s := sub("a", 1000, "USD", core.Monthly, core.StatusCancelled)
		got := New(core.RateTable{"USD": 1}, "USD").Categories([]core.Subscription{s})
		assert.Empty(t, got)
	})
}

func TestTrends(t *testing.T) {
	rates := core.RateTable{"USD": 1}
	agg := New(rates, "USD")

	t.Run("shape", func(t *testing.T) {
		got := agg.Trends(nil, fixedNow)
		require.Len(t, got, TrendMonths)
		assert.Equal(t, "Jul 2024", got[0].Month)
		assert.Equal(t, "Jun 2025", got[11].Month)
		for _, m := range got {
			assert.Zero(t, m.Amount)
		}
	})

	t.Run("start date gating", func(t *testing.T) {
		s := sub("late", 1000, "USD", core.Monthly, core.StatusActive)
		s.StartDate = core.NewDate(2025, 3, 1)
		mid := sub("mid", 500, "USD", core.Monthly, core.StatusActive)
		mid.StartDate = core.NewDate(2025, 3, 2)

		got := agg.Trends([]core.Subscription{s, mid}, fixedNow)
		byMonth := make(map[string]float64)
		for _, m := range got {
			byMonth[m.Month] = m.Amount
		}
		assert.Zero(t, byMonth["Feb 2025"])
		assert.Equal(t, 10.0, byMonth["Mar 2025"])
		assert.Equal(t, 15.0, byMonth["Apr 2025"])
		assert.Equal(t, 15.0, byMonth["Jun 2025"])
	})

	t.Run("paused and trial count, cancelled does not", func(t *testing.T) {
		subs := []core.Subscription{
			sub("p", 100, "USD", core.Monthly, core.StatusPaused),
			sub("t", 200, "USD", core.Monthly, core.StatusTrial),
			sub("c", 10000, "USD", core.Monthly, core.StatusCancelled),
		}
		got := agg.Trends(subs, fixedNow)
		for _, m := range got {
			assert.Equal(t, 3.0, m.Amount, m.Month)
		}
	})

	t.Run("year boundary", func(t *testing.T) {
		got := agg.Trends(nil, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, "Feb 2024", got[0].Month)
		assert.Equal(t, "Jan 2025", got[11].Month)
	})
}

func TestUpcoming(t *testing.T) {
	agg := New(core.RateTable{"USD": 1, "EUR": 0.5}, "USD")

	at := func(name string, d time.Duration, status core.Status) core.Subscription {
		s := sub(name, 1000, "USD", core.Monthly, status)
		s.NextBillingDate = core.Date{Time: fixedNow.Add(d)}
		return s
	}

	t.Run("window", func(t *testing.T) {
		subs := []core.Subscription{
			at("in29", 29*24*time.Hour, core.StatusActive),
			at("in31", 31*24*time.Hour, core.StatusActive),
			at("past", -time.Hour, core.StatusActive),
			at("edge", UpcomingWindow, core.StatusActive),
			at("now", 0, core.StatusActive),
		}
		got := agg.Upcoming(subs, fixedNow)
		ids := make([]string, 0, len(got))
		for _, p := range got {
			ids = append(ids, p.SubscriptionID)
		}
		assert.Equal(t, []string{"now", "in29", "edge"}, ids)
	})

	t.Run("active only", func(t *testing.T) {
		subs := []core.Subscription{
			at("trial", 24*time.Hour, core.StatusTrial),
			at("paused", 24*time.Hour, core.StatusPaused),
		}
		assert.Empty(t, agg.Upcoming(subs, fixedNow))
	})

	t.Run("sorted and capped", func(t *testing.T) {
		subs := make([]core.Subscription, 0, 15)
		for i := 15; i > 0; i-- {
			subs = append(subs, at(fmt.Sprintf("s%02d", i), time.Duration(i)*24*time.Hour, core.StatusActive))
		}
		got := agg.Upcoming(subs, fixedNow)
		require.Len(t, got, UpcomingLimit)
		assert.Equal(t, "s01", got[0].SubscriptionID)
		assert.Equal(t, "s10", got[9].SubscriptionID)
		for i := 1; i < len(got); i++ {
			assert.False(t, got[i].DueDate.Before(got[i-1].DueDate))
		}
	})

	t.Run("per charge amount in display currency", func(t *testing.T) {
		s := at("yearly", 24*time.Hour, core.StatusActive)
		s.Cycle = core.Yearly
		s.Currency = "EUR"
		s.Amount = core.Money{Cents: 6000}
		got := agg.Upcoming([]core.Subscription{s}, fixedNow)
		require.Len(t, got, 1)
		assert.Equal(t, 120.0, got[0].Amount)
		assert.Equal(t, "USD", got[0].Currency)
		assert.Equal(t, "yearly", got[0].Cycle)
	})
}

func TestSummarizeEndToEnd(t *testing.T) {
	netflix := sub("netflix", 1599, "USD", core.Monthly, core.StatusActive)
	netflix.Category = "Streaming"
	spotify := sub("spotify", 999, "EUR", core.Monthly, core.StatusActive)
	spotify.Category = "Music"
	adobe := sub("adobe", 5299, "USD", core.Yearly, core.StatusActive)
	adobe.Category = "Software"

	res := New(core.RateTable{"USD": 1, "EUR": 0.9}, "USD").
		Summarize([]core.Subscription{netflix, spotify, adobe}, fixedNow)

	assert.Equal(t, "USD", res.DisplayCurrency)
	assert.Equal(t, 31.51, res.MonthlySpending)
	assert.Equal(t, Round2((15.99+9.99/0.9+52.99/12)*12), res.YearlySpending)

	require.Len(t, res.CategorySpending, 3)
	assert.Equal(t, "Streaming", res.CategorySpending[0].Category)
	assert.Equal(t, "Music", res.CategorySpending[1].Category)
	assert.Equal(t, 11.1, res.CategorySpending[1].Amount)
	assert.Equal(t, "Software", res.CategorySpending[2].Category)

	require.Len(t, res.MonthlyTrends, TrendMonths)
	assert.Equal(t, 31.51, res.MonthlyTrends[11].Amount)
	assert.Empty(t, res.UpcomingPayments)
}

func TestDisplayMonthlyDefaultsCurrency(t *testing.T) {
	agg := New(core.RateTable{"USD": 1, "EUR": 0.9}, "")
	s := sub("x", 900, "EUR", core.Monthly, core.StatusActive)
	assert.InDelta(t, 10.0, agg.DisplayMonthly(s), 1e-9)
}
