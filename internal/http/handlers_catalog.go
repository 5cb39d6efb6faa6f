package http

import (
	"net/http"
	"strings"

	"subtrack/internal/core"
)

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request, userID string) {
	folders, err := s.deps.Catalog.ListFolders(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folderResponses(folders))
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request, userID string) {
	var req labelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, err.Error())
		return
	}
	f, err := s.deps.Catalog.CreateFolder(r.Context(), core.Folder{UserID: userID, Name: req.Name, Color: strings.TrimSpace(req.Color)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, labelResponse{ID: f.ID, Name: f.Name, Color: f.Color})
}

// Deleting a folder, tag or payment method detaches it from subscriptions,
// so the owner's cached views are dropped too.
func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.deps.Catalog.DeleteFolder(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request, userID string) {
	tags, err := s.deps.Catalog.ListTags(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tagResponses(tags))
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request, userID string) {
	var req labelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.deps.Catalog.CreateTag(r.Context(), core.Tag{UserID: userID, Name: req.Name, Color: strings.TrimSpace(req.Color)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, labelResponse{ID: t.ID, Name: t.Name, Color: t.Color})
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.deps.Catalog.DeleteTag(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPaymentMethods(w http.ResponseWriter, r *http.Request, userID string) {
	methods, err := s.deps.Catalog.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentMethodResponses(methods))
}

func (s *Server) handleCreatePaymentMethod(w http.ResponseWriter, r *http.Request, userID string) {
	var req paymentMethodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.deps.Catalog.CreatePaymentMethod(r.Context(), core.PaymentMethod{
		UserID: userID,
		Name:   req.Name,
		Kind:   core.PaymentKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Last4:  strings.TrimSpace(req.Last4),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentMethodResponse{ID: p.ID, Name: p.Name, Kind: string(p.Kind), Last4: p.Last4})
}

func (s *Server) handleDeletePaymentMethod(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.deps.Catalog.DeletePaymentMethod(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}
