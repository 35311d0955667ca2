package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"

	"github.com/vetsin/code-jam-2025/internal/audit"
	"github.com/vetsin/code-jam-2025/internal/auth"
	"github.com/vetsin/code-jam-2025/internal/storage"
)

const (
	vaultsPrefix      = "/api/vaults/"
	adminVaultsPrefix = "/api/admin/vaults/"
	auditRetention    = 10000
)

type Server struct {
	cfg Config

	mux    *http.ServeMux
	store  storage.Store
	admin  *auth.Admin
	audit  *audit.Log
	logger zerolog.Logger

	rlWrite *multiLimiter
	rlLogin *multiLimiter
}

// New wires the HTTP surface around store. The store is owned by the caller.
func New(cfg Config, store storage.Store, logger zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	admin, err := auth.NewAdmin(cfg.Admin.PasswordHash, cfg.Admin.Issuer, cfg.Admin.TokenTTL)
	if err != nil {
		return nil, err
	}

	perWindow := func(n int, window time.Duration) rate.Limit { return rate.Limit(float64(n) / window.Seconds()) }

	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		store:   store,
		admin:   admin,
		audit:   audit.New(auditRetention),
		logger:  logger.With().Str("component", "server").Logger(),
		rlWrite: newMultiLimiter(perWindow(cfg.Limits.WritesPerMinute, time.Minute), cfg.Limits.WriteBurst, time.Hour),
		rlLogin: newMultiLimiter(perWindow(5, time.Minute), 5, time.Hour),
	}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			hlog.FromRequest(r).Error().Interface("panic", rec).Msg("handler panicked")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}()

	s.addDefaultHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Vault ids are routed here rather than through the mux, which would
	// clean "../" segments and redirect instead of rejecting them.
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, vaultsPrefix):
		s.handleVault(w, r, strings.TrimPrefix(path, vaultsPrefix))
	case strings.HasPrefix(path, adminVaultsPrefix):
		s.adminOnly(func(w http.ResponseWriter, r *http.Request) {
			s.handleAdminVault(w, r, strings.TrimPrefix(r.URL.Path, adminVaultsPrefix))
		}).ServeHTTP(w, r)
	default:
		s.mux.ServeHTTP(w, r)
	}
}

// Handler returns s wrapped in request logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s
	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.NewHandler(s.logger)(h)
	return h
}

// Audit exposes the event log, mainly for tests and shutdown reporting.
func (s *Server) Audit() *audit.Log { return s.audit }

func (s *Server) addDefaultHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
}

func (s *Server) adminOnly(next http.HandlerFunc) http.Handler {
	if s.admin == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
	}
	return auth.AdminOnly(s.admin)(next)
}
