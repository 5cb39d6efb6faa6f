package http

import (
	"net/http"

	"subtrack/internal/services"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.deps.Users.Register(r.Context(), req.Email, req.Name, req.DisplayCurrency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(u, s.deps.DefaultCurrency))
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request, userID string) {
	u, err := s.deps.Users.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u, s.deps.DefaultCurrency))
}

// handlePatchMe changes the name or display currency. A new currency changes
// every converted figure, so the user's cached views are dropped.
func (s *Server) handlePatchMe(w http.ResponseWriter, r *http.Request, userID string) {
	var req userPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.deps.Users.Update(r.Context(), userID, services.UserPatch{
		Name:            req.Name,
		DisplayCurrency: req.DisplayCurrency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	writeJSON(w, http.StatusOK, newUserResponse(u, s.deps.DefaultCurrency))
}
