package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pengystream/internal/deps"
	"pengystream/internal/loadsense"
	"pengystream/internal/logging"
	"pengystream/internal/scheduler"
)

// JobSource exposes scheduler state.
type JobSource interface {
	Snapshot() scheduler.Snapshot
	Counts() scheduler.Counts
}

// LoadSource exposes the latest admission load reading.
type LoadSource interface {
	Snapshot() loadsense.Snapshot
}

// Server is the daemon's HTTP status server.
type Server struct {
	bind          string
	logger        *slog.Logger
	jobs          JobSource
	load          LoadSource
	deps          []deps.Status
	maxConcurrent int
	started       time.Time
	now           func() time.Time

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// Options configures optional Server fields.
type Options struct {
	MaxConcurrent int
	Dependencies  []deps.Status
}

// NewServer builds a server bound to bind. It returns nil when bind is empty,
// which disables the API.
func NewServer(bind string, jobs JobSource, load LoadSource, opts Options, logger *slog.Logger) *Server {
	bind = strings.TrimSpace(bind)
	if bind == "" || jobs == nil {
		return nil
	}
	s := &Server{
		bind:          bind,
		logger:        logging.NewComponentLogger(logger, "api-server"),
		jobs:          jobs,
		load:          load,
		deps:          opts.Dependencies,
		maxConcurrent: opts.MaxConcurrent,
		started:       time.Now(),
		now:           time.Now,
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler. It is exposed for tests.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Start listens on the bind address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_server_started"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	payload := HealthResponse{
		Status:        "ok",
		PID:           os.Getpid(),
		StartedAt:     formatTime(s.started),
		UptimeSeconds: now.Sub(s.started).Seconds(),
		MaxConcurrent: s.maxConcurrent,
		Counts:        FromCounts(s.jobs.Counts()),
		Dependencies:  FromDependencies(s.deps),
	}
	if s.load != nil {
		payload.Load = FromLoad(s.load.Snapshot())
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, FromSnapshot(s.jobs.Snapshot(), s.now()))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
