package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"subtrack/internal/analytics"
	"subtrack/internal/core"
	applog "subtrack/internal/log"
	"subtrack/internal/ports"
	"subtrack/internal/rates"
)

// RateSource resolves a rate table. It never fails; implementations fall
// back to cached or static tables.
type RateSource interface {
	Rates(ctx context.Context, base string) core.RateTable
}

// AnalyticsConfig sets the rate base and the display currency used for
// users who have not picked one.
type AnalyticsConfig struct {
	RatesBase       string
	DefaultCurrency string
}

// Dashboard is the headline view: totals, counts and what is due soon.
type Dashboard struct {
	DisplayCurrency     string                 `json:"displayCurrency"`
	MonthlySpending     float64                `json:"monthlySpending"`
	YearlySpending      float64                `json:"yearlySpending"`
	TotalSubscriptions  int                    `json:"totalSubscriptions"`
	ActiveSubscriptions int                    `json:"activeSubscriptions"`
	StatusCounts        map[core.Status]int    `json:"statusCounts"`
	UpcomingPayments    []core.UpcomingPayment `json:"upcomingPayments"`
}

// AnalyticsService loads a user's data and runs the aggregator over it.
type AnalyticsService struct {
	users  ports.UserRepository
	subs   ports.SubscriptionRepository
	rates  RateSource
	config AnalyticsConfig
	logger *applog.Logger
	now    func() time.Time
}

// NewAnalyticsService wires the service. A nil rate source uses the static table.
func NewAnalyticsService(users ports.UserRepository, subs ports.SubscriptionRepository, rateSource RateSource, cfg AnalyticsConfig, logger *applog.Logger) *AnalyticsService {
	if cfg.RatesBase == "" {
		cfg.RatesBase = core.DefaultCurrency
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = core.DefaultCurrency
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &AnalyticsService{
		users:  users,
		subs:   subs,
		rates:  rateSource,
		config: cfg,
		logger: logger.WithComponent(applog.ComponentAnalytics),
		now:    time.Now,
	}
}

type userData struct {
	user  core.User
	subs  []core.Subscription
	table core.RateTable
}

// load fetches the user, their subscriptions and the rate table concurrently.
func (s *AnalyticsService) load(ctx context.Context, userID string) (userData, error) {
	var d userData
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		u, err := s.users.GetUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		d.user = u
		return nil
	})
	g.Go(func() error {
		subs, err := s.subs.ListSubscriptions(gctx, userID, ports.SubscriptionFilter{})
		if err != nil {
			return fmt.Errorf("load subscriptions: %w", err)
		}
		d.subs = subs
		return nil
	})
	g.Go(func() error {
		if s.rates == nil {
			d.table = rates.StaticTable(s.config.RatesBase)
			return nil
		}
		d.table = s.rates.Rates(gctx, s.config.RatesBase)
		return nil
	})

	if err := g.Wait(); err != nil {
		return userData{}, err
	}
	return d, nil
}

func (s *AnalyticsService) aggregator(d userData) *analytics.Aggregator {
	return analytics.New(d.table, d.user.Currency(s.config.DefaultCurrency))
}

// Summary returns every analytics view for userID.
func (s *AnalyticsService) Summary(ctx context.Context, userID string) (core.AggregationResult, error) {
	d, err := s.load(ctx, userID)
	if err != nil {
		return core.AggregationResult{}, err
	}

	result := s.aggregator(d).Summarize(d.subs, s.now())

	s.logger.DebugContext(ctx, "Computed summary",
		applog.FieldUserID, userID,
		applog.FieldCount, len(d.subs),
		applog.FieldCurrency, result.DisplayCurrency)
	return result, nil
}

// Dashboard returns totals, per-status counts and upcoming payments.
func (s *AnalyticsService) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	d, err := s.load(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}

	agg := s.aggregator(d)
	monthly, yearly := agg.Totals(d.subs)

	counts := make(map[core.Status]int)
	for _, sub := range d.subs {
		counts[sub.Status]++
	}

	return Dashboard{
		DisplayCurrency:     d.user.Currency(s.config.DefaultCurrency),
		MonthlySpending:     monthly,
		YearlySpending:      yearly,
		TotalSubscriptions:  len(d.subs),
		ActiveSubscriptions: counts[core.StatusActive],
		StatusCounts:        counts,
		UpcomingPayments:    agg.Upcoming(d.subs, s.now()),
	}, nil
}
