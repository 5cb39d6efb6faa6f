package http

import (
	"net/http"
	"sync/atomic"

	"subtrack/internal/core"
	applog "subtrack/internal/log"
)

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request, userID string) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	subs, err := s.deps.Subscriptions.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, newSubscriptionResponse(sub))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request, userID string) {
	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := req.toSubscription(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.deps.Subscriptions.Create(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	atomic.AddInt64(&s.subsCreated, 1)
	s.invalidate(userID)

	logSaved(r, applog.OpCreate, created)

	w.Header().Set("Location", "/api/subscriptions/"+created.ID)
	writeJSON(w, http.StatusCreated, newSubscriptionResponse(created))
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request, userID string) {
	sub, err := s.deps.Subscriptions.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}

// handleUpdateSubscription replaces the record. Omitted dates keep their
// stored values.
func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request, userID string) {
	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := req.toSubscription(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub.ID = r.PathValue("id")

	updated, err := s.deps.Subscriptions.Update(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	logSaved(r, applog.OpUpdate, updated)
	writeJSON(w, http.StatusOK, newSubscriptionResponse(updated))
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.deps.Subscriptions.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}

func logSaved(r *http.Request, op string, sub core.Subscription) {
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogSubscriptionSaved(r.Context(), op,
		sub.ID, sub.UserID, sub.Name, sub.Amount.Cents, sub.Currency, string(sub.Cycle))
}
