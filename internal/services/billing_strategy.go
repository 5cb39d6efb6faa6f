// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for advancing billing dates.
// Each billing cycle has its own strategy; month-based cycles keep the
// anchor day of the subscription's start date and clamp it to short months.
package services

import (
	"fmt"
	"time"

	"subtrack/internal/core"
)

// maxAdvanceSteps bounds AdvancePast for subscriptions left untouched for years.
const maxAdvanceSteps = 1000

// BillingStrategy advances a billing date by one cycle.
type BillingStrategy interface {
	// Next returns the billing date one cycle after current. anchorDay is the
	// day of month the subscription was started on.
	Next(current core.Date, anchorDay int) core.Date
}

// WeeklyBilling advances by seven days.
type WeeklyBilling struct{}

func (WeeklyBilling) Next(current core.Date, _ int) core.Date {
	return core.DateOf(current.AddDate(0, 0, 7))
}

// MonthlyBilling advances by a fixed number of calendar months.
type MonthlyBilling struct {
	Months int
}

// Next moves Months months ahead and lands on anchorDay, or on the last day
// of the target month when it is shorter (Jan 31 -> Feb 28 -> Mar 31).
func (m MonthlyBilling) Next(current core.Date, anchorDay int) core.Date {
	if anchorDay <= 0 {
		anchorDay = current.Day()
	}
	first := time.Date(current.Year(), current.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, m.Months, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := anchorDay
	if day > lastDay {
		day = lastDay
	}
	return core.NewDate(first.Year(), int(first.Month()), day)
}

// billingStrategies maps billing cycles to their strategies.
var billingStrategies = map[core.BillingCycle]BillingStrategy{
	core.Weekly:    WeeklyBilling{},
	core.Monthly:   MonthlyBilling{Months: 1},
	core.Quarterly: MonthlyBilling{Months: 3},
	core.Yearly:    MonthlyBilling{Months: 12},
}

// GetBillingStrategy returns the strategy for a billing cycle.
func GetBillingStrategy(cycle core.BillingCycle) (BillingStrategy, error) {
	s, ok := billingStrategies[cycle]
	if !ok {
		return nil, fmt.Errorf("unknown billing cycle: %s", cycle)
	}
	return s, nil
}

// RegisterBillingStrategy registers or replaces the strategy for a cycle.
func RegisterBillingStrategy(cycle core.BillingCycle, s BillingStrategy) {
	billingStrategies[cycle] = s
}

// NextBilling returns the billing date one cycle after sub's current one.
func NextBilling(sub core.Subscription) (core.Date, error) {
	s, err := GetBillingStrategy(sub.Cycle)
	if err != nil {
		return core.Date{}, err
	}
	return s.Next(sub.NextBillingDate, anchorDay(sub)), nil
}

// AdvancePast rolls sub's next billing date forward until it is on or after
// today. It returns the new date and how many cycles were skipped.
func AdvancePast(sub core.Subscription, today core.Date) (core.Date, int, error) {
	s, err := GetBillingStrategy(sub.Cycle)
	if err != nil {
		return core.Date{}, 0, err
	}

	next := sub.NextBillingDate
	anchor := anchorDay(sub)
	steps := 0
	for next.Before(today.Time) {
		if steps >= maxAdvanceSteps {
			return next, steps, fmt.Errorf("billing date %s did not reach %s after %d cycles", sub.NextBillingDate, today, steps)
		}
		next = s.Next(next, anchor)
		steps++
	}
	return next, steps, nil
}

func anchorDay(sub core.Subscription) int {
	if !sub.StartDate.IsEmpty() {
		return sub.StartDate.Day()
	}
	return sub.NextBillingDate.Day()
}
