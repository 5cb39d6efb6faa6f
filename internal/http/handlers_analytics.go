package http

import (
	"net/http"

	"subtrack/internal/core"
)

// handleDashboard serves totals, status counts and upcoming payments from the
// per-user cache when it can.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, userID string) {
	if d, ok := s.dashboardCache.Get(userID); ok {
		s.hit()
		writeJSON(w, http.StatusOK, d)
		return
	}
	s.miss()

	d, err := s.deps.Analytics.Dashboard(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.dashboardCache.Set(userID, d)
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request, userID string) {
	if res, ok := s.summaryCache.Get(userID); ok {
		s.hit()
		writeJSON(w, http.StatusOK, res)
		return
	}
	s.miss()

	res, err := s.deps.Analytics.Summary(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.summaryCache.Set(userID, res)
	writeJSON(w, http.StatusOK, res)
}

// handleRates returns the table for ?base=, defaulting to the configured base.
func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	base := core.NormalizeCurrency(r.URL.Query().Get("base"))
	if base == "" {
		base = s.deps.RatesBase
	}
	if !core.ValidCurrency(base) {
		writeErrorMessage(w, r, http.StatusUnprocessableEntity, core.ErrInvalidCurrency.Error())
		return
	}
	if s.deps.Rates == nil {
		writeErrorMessage(w, r, http.StatusServiceUnavailable, "rates unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Rates.Lookup(r.Context(), base))
}
