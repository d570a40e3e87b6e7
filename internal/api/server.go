// Package api serves the read-only dashboard surface: task status
// projections over JSON plus a websocket event stream. The only write
// paths are cancellation and retry requests; everything else about a
// task changes through the orchestrator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	droverrs "github.com/droverdev/drover/internal/errors"
	"github.com/droverdev/drover/internal/events"
	"github.com/droverdev/drover/internal/store"
)

// Controller is the engine-side handle for the two dashboard write
// paths: request cancellation of a running task, request retry of a
// blocked one.
type Controller interface {
	RequestCancel(ctx context.Context, taskID string) error
	RequestRetry(ctx context.Context, taskID string) error
}

// Server is the dashboard-facing HTTP server.
type Server struct {
	store      *store.Store
	publisher  events.Publisher
	controller Controller
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithController installs the cancellation/retry handle.
func WithController(c Controller) Option {
	return func(s *Server) { s.controller = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates the API server.
func NewServer(st *store.Store, pub events.Publisher, opts ...Option) *Server {
	s := &Server{
		store:     st,
		publisher: pub,
		mux:       http.NewServeMux(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h(w, r)
		}
	}

	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))
	s.mux.HandleFunc("GET /api/tasks", cors(s.handleListTasks))
	s.mux.HandleFunc("GET /api/tasks/{id}", cors(s.handleGetTask))
	s.mux.HandleFunc("GET /api/tasks/{id}/status", cors(s.handleGetStatus))
	s.mux.HandleFunc("GET /api/tasks/{id}/state", cors(s.handleGetState))
	s.mux.HandleFunc("GET /api/tasks/{id}/plan", cors(s.handleGetPlan))
	s.mux.HandleFunc("POST /api/tasks/{id}/cancel", cors(s.handleCancel))
	s.mux.HandleFunc("POST /api/tasks/{id}/retry", cors(s.handleRetry))

	if s.publisher != nil {
		s.mux.Handle("GET /api/ws", NewWSHandler(s.publisher, s.logger))
	}
}

// Handler exposes the routed mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.LoadTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ts, err := s.store.GetTaskStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.LoadState(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	pl, err := s.store.LoadPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pl)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		s.writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"error": "no active runner"})
		return
	}
	if err := s.controller.RequestCancel(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel requested"})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		s.writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"error": "no active runner"})
		return
	}
	if err := s.controller.RequestRetry(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry requested"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var derr *droverrs.DroverError
	if errors.As(err, &derr) {
		s.writeJSON(w, derr.HTTPStatus(), derr)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
