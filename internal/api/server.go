// Package api exposes a read-only HTTP interface over the engine's state:
// accepted records, the crawl-state snapshot, and Prometheus metrics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/askern/mapleads/internal/engine"
	"github.com/askern/mapleads/internal/metrics"
)

// RecordSource yields the accepted-records collection.
type RecordSource interface {
	Records() []engine.BusinessRecord
}

// SnapshotSource yields the crawl-state snapshot.
type SnapshotSource interface {
	Snapshot() []engine.CrawlEntry
}

// Server wires HTTP handlers to the engine's read surfaces.
type Server struct {
	router    chi.Router
	records   RecordSource
	snapshots SnapshotSource
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(records RecordSource, snapshots SnapshotSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		records:   records,
		snapshots: snapshots,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/records", s.getRecords)
		r.Get("/snapshot", s.getSnapshot)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving on addr until the server fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getRecords(w http.ResponseWriter, _ *http.Request) {
	records := s.records.Records()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	entries := s.snapshots.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
