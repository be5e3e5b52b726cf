// Package diag exposes a read-only HTTP diagnostics surface for a
// conversion session: cross-reference registry statistics, resource
// snapshots and cleanup history. Purely observational; nothing here
// feeds back into the pipeline.
package diag

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alnah/go-tex2html/internal/guardian"
)

// Sources supplies the session views the endpoints serve. All funcs
// must be safe for concurrent use.
type Sources struct {
	State     func() string
	Registry  func() any
	Snapshots func() []guardian.Snapshot
	Cleanups  func() []guardian.CleanupEvent
}

// Server serves the diagnostics endpoints.
type Server struct {
	src  Sources
	log  *slog.Logger
	http *http.Server
}

// New creates a diagnostics server. A nil logger disables logging.
func New(src Sources, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{src: src, log: log}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/registry", s.handleRegistry)
	r.Get("/resources", s.handleResources)
	r.Get("/cleanups", s.handleCleanups)

	return r
}

// Start begins serving on addr in the background.
func (s *Server) Start(addr string) {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.log.Info("diagnostics server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("diagnostics server failed", "err", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := "unknown"
	if s.src.State != nil {
		state = s.src.State()
	}
	writeJSON(w, map[string]string{"status": "ok", "state": state})
}

func (s *Server) handleRegistry(w http.ResponseWriter, _ *http.Request) {
	if s.src.Registry == nil {
		jsonError(w, "registry not available", http.StatusNotFound)
		return
	}
	writeJSON(w, s.src.Registry())
}

func (s *Server) handleResources(w http.ResponseWriter, _ *http.Request) {
	var snaps []guardian.Snapshot
	if s.src.Snapshots != nil {
		snaps = s.src.Snapshots()
	}
	writeJSON(w, map[string]any{"snapshots": snaps})
}

func (s *Server) handleCleanups(w http.ResponseWriter, _ *http.Request) {
	var events []guardian.CleanupEvent
	if s.src.Cleanups != nil {
		events = s.src.Cleanups()
	}
	writeJSON(w, map[string]any{"cleanups": events})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
