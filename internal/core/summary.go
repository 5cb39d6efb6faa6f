package core

import "time"

// CategoryAmount represents a monthly amount aggregated by category name.
type CategoryAmount struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// MonthAmount is one point of the trailing 12-month spend trend.
type MonthAmount struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
}

// UpcomingPayment is a charge due soon, in the display currency.
type UpcomingPayment struct {
	SubscriptionID string    `json:"subscriptionId"`
	Name           string    `json:"name"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	DueDate        time.Time `json:"dueDate"`
	Cycle          string    `json:"billingCycle"`
}

// AggregationResult bundles the dashboard and analytics views for one user.
type AggregationResult struct {
	DisplayCurrency  string            `json:"displayCurrency"`
	MonthlySpending  float64           `json:"monthlySpending"`
	YearlySpending   float64           `json:"yearlySpending"`
	CategorySpending []CategoryAmount  `json:"categorySpending"`
	MonthlyTrends    []MonthAmount     `json:"monthlyTrends"`
	UpcomingPayments []UpcomingPayment `json:"upcomingPayments"`
}
