package http

import (
	"encoding/json"
	"errors"
	"net/http"

	applog "subtrack/internal/log"
	"subtrack/internal/middleware/trace"
	"subtrack/internal/ports"
	"subtrack/internal/services"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// a failed write means the client went away
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

// writeError maps service errors onto status codes. Internal errors are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		writeErrorMessage(w, r, http.StatusUnprocessableEntity, ve.Err.Error())
	case errors.Is(err, ports.ErrNotFound):
		writeErrorMessage(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, ports.ErrConflict):
		writeErrorMessage(w, r, http.StatusConflict, "already exists")
	default:
		fields := applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"))
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, operation(r.Method), fields)
		writeErrorMessage(w, r, http.StatusInternalServerError, "internal error")
	}
}

func operation(method string) string {
	switch method {
	case http.MethodPost:
		return applog.OpCreate
	case http.MethodPut, http.MethodPatch:
		return applog.OpUpdate
	case http.MethodDelete:
		return applog.OpDelete
	default:
		return applog.OpRead
	}
}
