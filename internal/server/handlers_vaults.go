package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"github.com/vetsin/code-jam-2025/internal/audit"
	"github.com/vetsin/code-jam-2025/internal/storage"
)

type createResponse struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleRead(w, r, id)
	case http.MethodPost:
		s.handleCreate(w, r, id)
	case http.MethodPatch:
		s.handleWrite(w, r, id)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPatch)
	}
}

// handleCreateRandom serves POST /api/vaults, picking the id server side.
func (s *Server) handleCreateRandom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s.handleCreate(w, r, uuid.NewString())
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.store.Read(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Payload)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.store.Create(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.audit.Append(audit.ActionCreate, rec.ID)
	writeJSONStatus(w, http.StatusCreated, createResponse{ID: rec.ID, Secret: rec.Secret})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request, id string) {
	if ok, wait := s.rlWrite.allow(clientIP(r, s.cfg.Limits.TrustForwarded)); !ok {
		tooMany(w, retryAfterSeconds(wait))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Limits.MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := s.store.Write(r.Context(), id, body); err != nil {
		if storage.KindOf(err) == storage.KindInvalidSignature {
			s.audit.Append(audit.ActionDenied, id)
		}
		s.storeError(w, r, err)
		return
	}
	s.audit.Append(audit.ActionWrite, id)
	w.WriteHeader(http.StatusOK)
}

// storeError maps a storage failure to a status and a fixed message. The
// message never carries the underlying cause.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	log := hlog.FromRequest(r)
	switch storage.KindOf(err) {
	case storage.KindNotFound:
		writeError(w, http.StatusNotFound, "vault not found")
	case storage.KindAlreadyExists:
		writeError(w, http.StatusConflict, "vault already exists")
	case storage.KindInvalidSignature:
		log.Warn().Msg("rejected write with bad signature")
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case storage.KindPathTraversal:
		log.Warn().Msg("rejected path traversal id")
		writeError(w, http.StatusBadRequest, "invalid vault id")
	case storage.KindInvalidID:
		writeError(w, http.StatusBadRequest, "invalid vault id")
	default:
		if errors.Is(err, storage.ErrLockTimeout) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "vault busy")
			return
		}
		log.Error().Err(err).Msg("storage failure")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

