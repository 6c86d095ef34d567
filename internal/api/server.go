// Package api exposes the HTTP interface for the sync service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/listing"
	"github.com/ntanasko/floorsync/internal/logging"
)

// Trigger starts a sync run in the background.
type Trigger interface {
	TriggerAsync()
}

// Server wires HTTP handlers to the stores, tracker, and scheduler.
type Server struct {
	router   chi.Router
	store    listing.Store
	runs     listing.RunStore
	progress listing.ProgressPublisher
	trigger  Trigger
	recent   *logging.RecentBuffer
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The metrics
// handler is mounted as-is so the registry stays owned by the caller.
func NewServer(
	store listing.Store,
	runs listing.RunStore,
	progress listing.ProgressPublisher,
	trigger Trigger,
	recent *logging.RecentBuffer,
	metricsHandler http.Handler,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		runs:     runs,
		progress: progress,
		trigger:  trigger,
		recent:   recent,
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sync", func(r chi.Router) {
			r.Post("/", s.triggerSync)
			r.Get("/progress", s.getProgress)
			r.Get("/stats", s.getStats)
			r.Get("/runs", s.listRuns)
		})
		r.Route("/listings", func(r chi.Router) {
			r.Get("/", s.listListings)
			r.Get("/{source_id}", s.getListing)
		})
		r.Get("/logs", s.getLogs)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// triggerSync starts a run and returns immediately. The run's outcome
// is observed through /v1/sync/progress and the run log, not this call.
func (s *Server) triggerSync(w http.ResponseWriter, _ *http.Request) {
	if snap := s.progress.Snapshot(); snap.Running {
		writeError(w, http.StatusConflict, "a sync run is already in progress")
		return
	}
	s.trigger.TriggerAsync()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.progress.Snapshot())
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.LastRun(r.Context())
	if errors.Is(err, listing.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no sync has run yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load last run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// listListings returns active listings; ?all=1 includes deactivated ones.
func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all")
	activeOnly := all != "1" && all != "true"
	listings, err := s.store.ListListings(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load listings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	l, err := s.store.GetByKey(r.Context(), sourceID)
	if errors.Is(err, listing.ErrNotFound) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load listing")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	if s.recent == nil {
		writeError(w, http.StatusNotFound, "log buffer not enabled")
		return
	}
	limit := queryInt(r, "limit", 100)
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.recent.Recent(limit)})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
