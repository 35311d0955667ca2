package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/vetsin/code-jam-2025/internal/audit"
	"github.com/vetsin/code-jam-2025/internal/auth"
)

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if ok, wait := s.rlLogin.allow(clientIP(r, s.cfg.Limits.TrustForwarded)); !ok {
		tooMany(w, retryAfterSeconds(wait))
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	resp, err := s.admin.Login(req.Password)
	switch {
	case errors.Is(err, auth.ErrBadPassword):
		hlog.FromRequest(r).Warn().Msg("admin login failed")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("admin login")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleAdminVault(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	s.audit.Append(audit.ActionDelete, id)
	w.WriteHeader(http.StatusNoContent)
}

type auditResponse struct {
	Entries []audit.Entry `json:"entries"`
	Valid   bool          `json:"valid"`
}

func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	entries := s.audit.Entries()
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, auditResponse{Entries: entries, Valid: s.audit.Verify() == nil})
}
