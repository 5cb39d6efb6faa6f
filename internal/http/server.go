// Package http is the JSON API: routing, middleware and handlers over the
// services package.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"subtrack/internal/cache"
	"subtrack/internal/core"
	applog "subtrack/internal/log"
	"subtrack/internal/middleware/ratelimit"
	"subtrack/internal/middleware/security"
	"subtrack/internal/middleware/trace"
	"subtrack/internal/rates"
	"subtrack/internal/services"
)

const (
	summaryCacheSize = 500
	summaryCacheTTL  = 5 * time.Minute
)

// RateLookup resolves a rate table with provenance.
type RateLookup interface {
	Lookup(ctx context.Context, base string) rates.Result
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handlers call.
type Deps struct {
	Users         *services.UserService
	Subscriptions *services.SubscriptionService
	Catalog       *services.CatalogService
	Analytics     *services.AnalyticsService
	Rates         RateLookup
	Store         Pinger

	RatesBase       string
	DefaultCurrency string
	RequestsPerMin  int
	TrustedProxies  []string
	Logger          *applog.Logger
}

// Server wraps http.Server with the API's caches and middleware state.
type Server struct {
	http.Server
	deps   Deps
	logger *applog.Logger

	tracer   *trace.Middleware
	detector *security.Detector
	limiter  *ratelimit.Limiter

	caches         *cache.Manager
	summaryCache   cache.Cache[core.AggregationResult]
	dashboardCache cache.Cache[services.Dashboard]

	startTime    time.Time
	subsCreated  int64
	cacheHits    int64
	cacheMisses  int64
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.Discard()
	}
	if deps.DefaultCurrency == "" {
		deps.DefaultCurrency = core.DefaultCurrency
	}
	if deps.RatesBase == "" {
		deps.RatesBase = core.DefaultCurrency
	}

	limiterCfg := ratelimit.DefaultConfig()
	if deps.RequestsPerMin > 0 {
		limiterCfg.RequestsPerMinute = deps.RequestsPerMin
	}

	summaries := cache.NewLRUCache[core.AggregationResult](summaryCacheSize, summaryCacheTTL)
	dashboards := cache.NewLRUCache[services.Dashboard](summaryCacheSize, summaryCacheTTL)

	s := &Server{
		deps:           deps,
		logger:         deps.Logger.WithComponent(applog.ComponentHTTP),
		detector:       security.NewDetector(),
		limiter:        ratelimit.NewLimiter(limiterCfg),
		caches:         cache.NewManager(deps.Logger),
		summaryCache:   summaries,
		dashboardCache: dashboards,
		startTime:      time.Now(),
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(deps.Logger, s.detector.ExtractClientIP)
	s.caches.Register(summaries)
	s.caches.Register(dashboards)
	s.caches.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, r, http.StatusTooManyRequests, "rate limit exceeded")
	})

	var h http.Handler = mux
	h = limited(h)
	h = s.detector.Middleware(h)
	h = headers.Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/users", s.handleRegister)
	mux.HandleFunc("GET /api/me", withUser(s.handleGetMe))
	mux.HandleFunc("PATCH /api/me", withUser(s.handlePatchMe))

	mux.HandleFunc("GET /api/subscriptions", withUser(s.handleListSubscriptions))
	mux.HandleFunc("POST /api/subscriptions", withUser(s.handleCreateSubscription))
	mux.HandleFunc("GET /api/subscriptions/{id}", withUser(s.handleGetSubscription))
	mux.HandleFunc("PUT /api/subscriptions/{id}", withUser(s.handleUpdateSubscription))
	mux.HandleFunc("DELETE /api/subscriptions/{id}", withUser(s.handleDeleteSubscription))

	mux.HandleFunc("GET /api/folders", withUser(s.handleListFolders))
	mux.HandleFunc("POST /api/folders", withUser(s.handleCreateFolder))
	mux.HandleFunc("DELETE /api/folders/{id}", withUser(s.handleDeleteFolder))
	mux.HandleFunc("GET /api/tags", withUser(s.handleListTags))
	mux.HandleFunc("POST /api/tags", withUser(s.handleCreateTag))
	mux.HandleFunc("DELETE /api/tags/{id}", withUser(s.handleDeleteTag))
	mux.HandleFunc("GET /api/payment-methods", withUser(s.handleListPaymentMethods))
	mux.HandleFunc("POST /api/payment-methods", withUser(s.handleCreatePaymentMethod))
	mux.HandleFunc("DELETE /api/payment-methods/{id}", withUser(s.handleDeletePaymentMethod))

	mux.HandleFunc("GET /api/dashboard", withUser(s.handleDashboard))
	mux.HandleFunc("GET /api/analytics", withUser(s.handleAnalytics))
	mux.HandleFunc("GET /api/rates", s.handleRates)
}

// invalidate drops the cached views of one user after a write.
func (s *Server) invalidate(userID string) {
	s.summaryCache.Delete(userID)
	s.dashboardCache.Delete(userID)
}

// Shutdown stops background cleanup and then the HTTP server. Safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.caches.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) hit()  { atomic.AddInt64(&s.cacheHits, 1) }
func (s *Server) miss() { atomic.AddInt64(&s.cacheMisses, 1) }
