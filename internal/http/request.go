package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"subtrack/internal/core"
	"subtrack/internal/ports"
	"subtrack/internal/services"
)

const (
	// UserHeader carries the caller's user id. Authentication happens in
	// front of this service.
	UserHeader = "X-User-ID"

	maxBodyBytes = 1 << 20
)

// decodeJSON reads exactly one JSON object into dst. Unknown fields are
// rejected so typos do not silently drop data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("empty request body")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body larger than %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("malformed JSON body: %v", err)
		}
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// userHandler is a handler that needs the calling user.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// withUser rejects requests without a user id header.
func withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			writeErrorMessage(w, r, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		next(w, r, userID)
	}
}

// parseFilter reads list filters from the query string.
func parseFilter(q url.Values) (ports.SubscriptionFilter, error) {
	f := ports.SubscriptionFilter{
		Status:   core.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		FolderID: strings.TrimSpace(q.Get("folder")),
		TagID:    strings.TrimSpace(q.Get("tag")),
		Category: strings.TrimSpace(q.Get("category")),
	}
	if f.Status != "" && !f.Status.IsValid() {
		return ports.SubscriptionFilter{}, &services.ValidationError{Err: core.ErrInvalidStatus}
	}
	return f, nil
}
