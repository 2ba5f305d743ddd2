// Package server exposes the retrieval, write, decay, and admin APIs over
// HTTP, modeled on the continuity-style chi router: one Server struct,
// routes registered once at construction, thin handlers that decode,
// delegate, and encode.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tempomem/tempomem/internal/admin"
	"github.com/tempomem/tempomem/internal/decay"
	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/retrieval"
	"github.com/tempomem/tempomem/internal/store"
	"github.com/tempomem/tempomem/internal/writeapi"
)

// Server is the tempomem HTTP API.
type Server struct {
	store     store.Store
	retrieval *retrieval.Engine
	decay     *decay.Runner
	write     *writeapi.API
	admin     *admin.Service
	log       *zap.Logger
	version   string
	started   time.Time
	router    chi.Router
}

func New(s store.Store, ret *retrieval.Engine, dec *decay.Runner, w *writeapi.API, adm *admin.Service, log *zap.Logger, version string) *Server {
	srv := &Server{
		store:     s,
		retrieval: ret,
		decay:     dec,
		write:     w,
		admin:     adm,
		log:       log,
		version:   version,
		started:   time.Now(),
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(requestLogger(s.log))
	r.Use(tracingMiddleware)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/items", s.handleCreate)
		r.Patch("/items/{kind}/{id}", s.handleUpdate)
		r.Delete("/items/{kind}/{id}", s.handleDelete)
		r.Post("/decay/run", s.handleDecayRun)
		r.Get("/admin/counts", s.handleAdminCounts)
		r.Get("/admin/forgettable", s.handleAdminForgettable)
		r.Get("/admin/distribution", s.handleAdminDistribution)
	})

	s.router = r
}

// requestID stamps every request with a correlation ID distinct from any
// memory-item ID, so log lines across a call can be joined without
// confusing a trace identifier for a stored item's ULID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", w.Header().Get("X-Request-ID")),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var q model.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.retrieval.Retrieve(r.Context(), q)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{
		"error": "generic item creation requires a kind-specific payload; use the CLI's typed put commands",
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{
		"error": "generic item update requires a kind-specific payload and is not supported over HTTP or the CLI",
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind := model.Kind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")
	org := r.URL.Query().Get("organization_id")
	if org == "" {
		writeError(w, http.StatusBadRequest, errMissingOrg)
		return
	}
	tenant := model.Tenant{OrganizationID: org}
	if uid := r.URL.Query().Get("user_id"); uid != "" {
		tenant.UserID = &uid
	}
	if err := s.write.Delete(r.Context(), kind, id, tenant); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type decayRequest struct {
	OrganizationID string  `json:"organization_id"`
	UserID         *string `json:"user_id,omitempty"`
	DryRun         bool    `json:"dry_run"`
	BatchSize      int     `json:"batch_size,omitempty"`
}

func (s *Server) handleDecayRun(w http.ResponseWriter, r *http.Request) {
	var req decayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.OrganizationID == "" {
		writeError(w, http.StatusBadRequest, errMissingOrg)
		return
	}
	tenant := model.Tenant{OrganizationID: req.OrganizationID, UserID: req.UserID}
	report, err := s.decay.RunCycle(r.Context(), tenant, req.DryRun, req.BatchSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) tenantFromQuery(r *http.Request) (model.Tenant, bool) {
	org := r.URL.Query().Get("organization_id")
	if org == "" {
		return model.Tenant{}, false
	}
	tenant := model.Tenant{OrganizationID: org}
	if uid := r.URL.Query().Get("user_id"); uid != "" {
		tenant.UserID = &uid
	}
	return tenant, true
}

func (s *Server) handleAdminCounts(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.tenantFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, errMissingOrg)
		return
	}
	report, err := s.admin.CountItems(r.Context(), tenant)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAdminForgettable(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.tenantFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, errMissingOrg)
		return
	}
	counts, err := s.admin.ForgettableCount(r.Context(), tenant, 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleAdminDistribution(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.tenantFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, errMissingOrg)
		return
	}
	kind := model.Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid or missing kind query parameter", store.ErrInvalidQuery))
		return
	}
	field := r.URL.Query().Get("field")
	histogram, err := s.admin.Distribution(r.Context(), tenant, kind, field)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, histogram)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidQuery), errors.Is(err, store.ErrInvariantViolation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

var errMissingOrg = &missingParamError{"organization_id"}

type missingParamError struct{ param string }

func (e *missingParamError) Error() string { return "missing required query parameter: " + e.param }
