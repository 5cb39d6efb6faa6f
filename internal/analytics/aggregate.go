package analytics

import (
	"sort"
	"time"

	"subtrack/internal/core"
)

const (
	// TrendMonths is the length of the spend trend series.
	TrendMonths = 12
	// UpcomingWindow is how far ahead upcoming payments are listed.
	UpcomingWindow = 30 * 24 * time.Hour
	// UpcomingLimit caps the upcoming payments list.
	UpcomingLimit = 10
)

// Aggregator folds one user's subscriptions into summary views.
// The zero value is not usable; build it with New.
type Aggregator struct {
	rates    core.RateTable
	currency string
}

// New returns an aggregator expressing amounts in displayCurrency.
func New(rates core.RateTable, displayCurrency string) *Aggregator {
	if displayCurrency == "" {
		displayCurrency = core.DefaultCurrency
	}
	return &Aggregator{rates: rates, currency: displayCurrency}
}

// DisplayMonthly returns the subscription's monthly amount in the display currency.
func (a *Aggregator) DisplayMonthly(sub core.Subscription) float64 {
	return Convert(ToMonthly(sub.Amount.Units(), sub.Cycle), sub.Currency, a.currency, a.rates)
}

// Summarize computes every view at once.
func (a *Aggregator) Summarize(subs []core.Subscription, now time.Time) core.AggregationResult {
	monthly := a.monthlyTotal(subs)
	return core.AggregationResult{
		DisplayCurrency:  a.currency,
		MonthlySpending:  Round2(monthly),
		YearlySpending:   Round2(monthly * 12),
		CategorySpending: a.Categories(subs),
		MonthlyTrends:    a.Trends(subs, now),
		UpcomingPayments: a.Upcoming(subs, now),
	}
}

// Totals returns the rounded monthly and yearly spend of active subscriptions.
func (a *Aggregator) Totals(subs []core.Subscription) (monthly, yearly float64) {
	m := a.monthlyTotal(subs)
	return Round2(m), Round2(m * 12)
}

func (a *Aggregator) monthlyTotal(subs []core.Subscription) float64 {
	var total float64
	for _, s := range subs {
		if s.Status != core.StatusActive {
			continue
		}
		total += a.DisplayMonthly(s)
	}
	return total
}

// Categories groups active subscriptions by category, largest first.
// Equal amounts are ordered by category name.
func (a *Aggregator) Categories(subs []core.Subscription) []core.CategoryAmount {
	sums := make(map[string]float64)
	for _, s := range subs {
		if s.Status != core.StatusActive {
			continue
		}
		sums[s.CategoryOrDefault()] += a.DisplayMonthly(s)
	}

	out := make([]core.CategoryAmount, 0, len(sums))
	for name, amount := range sums {
		out = append(out, core.CategoryAmount{Category: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	for i := range out {
		out[i].Amount = Round2(out[i].Amount)
	}
	return out
}

// Trends returns the trailing 12 calendar months, oldest first, ending with
// the month containing now. A subscription counts toward a month when it
// started on or before the first day of that month and is not cancelled.
//
// Membership uses the current status, so a subscription cancelled today
// drops out of every past month as well.
func (a *Aggregator) Trends(subs []core.Subscription, now time.Time) []core.MonthAmount {
	now = now.UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	out := make([]core.MonthAmount, 0, TrendMonths)
	for i := TrendMonths - 1; i >= 0; i-- {
		monthStart := current.AddDate(0, -i, 0)
		var sum float64
		for _, s := range subs {
			if s.Status == core.StatusCancelled {
				continue
			}
			if s.StartDate.After(monthStart) {
				continue
			}
			sum += a.DisplayMonthly(s)
		}
		out = append(out, core.MonthAmount{
			Month:  monthStart.Format("Jan 2006"),
			Amount: Round2(sum),
		})
	}
	return out
}

// Upcoming lists active subscriptions billing between now and now+30 days,
// soonest first, at most 10. Amounts are per charge, not monthly.
func (a *Aggregator) Upcoming(subs []core.Subscription, now time.Time) []core.UpcomingPayment {
	horizon := now.Add(UpcomingWindow)

	due := make([]core.Subscription, 0)
	for _, s := range subs {
		if s.Status != core.StatusActive {
			continue
		}
		next := s.NextBillingDate.Time
		if next.Before(now) || next.After(horizon) {
			continue
		}
		due = append(due, s)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextBillingDate.Before(due[j].NextBillingDate.Time)
	})
	if len(due) > UpcomingLimit {
		due = due[:UpcomingLimit]
	}

	out := make([]core.UpcomingPayment, 0, len(due))
	for _, s := range due {
		out = append(out, core.UpcomingPayment{
			SubscriptionID: s.ID,
			Name:           s.Name,
			Amount:         Round2(Convert(s.Amount.Units(), s.Currency, a.currency, a.rates)),
			Currency:       a.currency,
			DueDate:        s.NextBillingDate.Time,
			Cycle:          string(s.Cycle),
		})
	}
	return out
}
