// Package analytics normalizes subscription amounts into a single monthly
// figure in the user's display currency and folds them into the dashboard
// and analytics summaries.
//
// Everything here is pure: callers fetch the rate table and subscriptions,
// this package only does arithmetic over them.
package analytics

import (
	"math"

	"subtrack/internal/core"
)

// weeksPerMonth is the average-weeks approximation used for weekly cycles.
const weeksPerMonth = 4.33

// Convert converts amount between currencies through the table's base.
// Currencies missing from the table (or with unusable rates) are treated
// as the base currency. No rounding is applied.
func Convert(amount float64, from, to string, rates core.RateTable) float64 {
	if from == to {
		return amount
	}
	return amount / rateOf(rates, from) * rateOf(rates, to)
}

func rateOf(rates core.RateTable, code string) float64 {
	r, ok := rates[code]
	if !ok || r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return 1.0
	}
	return r
}

// ToMonthly expresses a per-cycle amount as a monthly amount.
// Unknown cycles are treated as monthly.
func ToMonthly(amount float64, cycle core.BillingCycle) float64 {
	switch cycle {
	case core.Weekly:
		return amount * weeksPerMonth
	case core.Quarterly:
		return amount / 3
	case core.Yearly:
		return amount / 12
	default:
		return amount
	}
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
