package rates

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"subtrack/internal/analytics"
	"subtrack/internal/core"
	applog "subtrack/internal/log"
)

// Source tells where a table came from.
type Source string

const (
	SourceLive   Source = "live"
	SourceCache  Source = "cache"
	SourceStale  Source = "stale"
	SourceStatic Source = "static"
)

// Result is a resolved table with provenance.
type Result struct {
	Base      string         `json:"base"`
	Rates     core.RateTable `json:"rates"`
	FetchedAt time.Time      `json:"fetchedAt"`
	Source    Source         `json:"source"`
}

// Service resolves rate tables: fresh cache, then a single shared upstream
// fetch, then stale cache, then the static table.
type Service struct {
	provider Provider
	store    Store
	ttl      time.Duration
	timeout  time.Duration
	logger   *applog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithFetchTimeout bounds a single upstream fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires a provider and store. A nil provider serves the static
// table only; a nil store caches in memory.
func NewService(provider Provider, store Store, ttl time.Duration, logger *applog.Logger, opts ...Option) *Service {
	if provider == nil {
		provider = Static{}
	}
	if store == nil {
		store = NewMemoryStore(16, 24*time.Hour)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = applog.Discard()
	}
	s := &Service{
		provider: provider,
		store:    store,
		ttl:      ttl,
		timeout:  10 * time.Second,
		logger:   logger.WithComponent(applog.ComponentRates),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rates returns the table for base. It never fails.
func (s *Service) Rates(ctx context.Context, base string) core.RateTable {
	return s.Lookup(ctx, base).Rates
}

// Lookup resolves the table for base and reports its source.
func (s *Service) Lookup(ctx context.Context, base string) Result {
	base = core.NormalizeCurrency(base)
	if !core.ValidCurrency(base) {
		base = core.DefaultCurrency
	}

	snap, found, err := s.store.Load(ctx, base)
	if err != nil {
		s.logger.WarnContext(ctx, "Rate cache read failed", applog.FieldError, err, applog.FieldCurrency, base)
	}
	if found && s.now().Sub(snap.FetchedAt) < s.ttl {
		return Result{Base: base, Rates: snap.Rates, FetchedAt: snap.FetchedAt, Source: SourceCache}
	}

	v, err, _ := s.group.Do(base, func() (any, error) {
		return s.fetch(ctx, base)
	})
	if err == nil {
		fresh := v.(Snapshot)
		return Result{Base: base, Rates: fresh.Rates, FetchedAt: fresh.FetchedAt, Source: SourceLive}
	}

	s.logger.WarnContext(ctx, "Rate fetch failed, falling back", applog.FieldError, err, applog.FieldCurrency, base)
	if found && len(snap.Rates) > 0 {
		return Result{Base: base, Rates: snap.Rates, FetchedAt: snap.FetchedAt, Source: SourceStale}
	}
	return Result{Base: base, Rates: StaticTable(base), Source: SourceStatic}
}

func (s *Service) fetch(ctx context.Context, base string) (Snapshot, error) {
	// detach from the caller so one cancelled request does not fail the
	// fetch shared with others
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	table, err := s.provider.Latest(fetchCtx, base)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Base: base, Rates: table, FetchedAt: s.now()}
	if err := s.store.Save(fetchCtx, snap); err != nil {
		s.logger.WarnContext(ctx, "Rate cache write failed", applog.FieldError, err)
	}
	s.logger.DebugContext(ctx, "Fetched exchange rates", applog.FieldCurrency, base, applog.FieldCount, len(table))
	return snap, nil
}

// Convert converts amount using the current table for from.
func (s *Service) Convert(ctx context.Context, amount float64, from, to string) float64 {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount
	}
	return analytics.Convert(amount, from, to, s.Rates(ctx, from))
}
