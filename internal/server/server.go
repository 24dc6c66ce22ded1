// Package server hosts the casegen HTTP surface: health checks, version,
// Prometheus metrics and JSON renditions of the casegen pages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/casegen/internal/errors"
	"github.com/3leaps/casegen/internal/observability"
	"github.com/3leaps/casegen/internal/server/handlers"
	"github.com/3leaps/casegen/internal/server/middleware"
)

// Timeouts bounds the http.Server.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// VersionInfo is served on /version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Crucible  string `json:"crucible,omitempty"`
	Gofulmen  string `json:"gofulmen,omitempty"`
}

// Server is the casegen HTTP server.
type Server struct {
	host     string
	port     int
	router   chi.Router
	httpSrv  *http.Server
	logger   *zap.Logger
	views    *handlers.Views
	metrics  *observability.Collector
	version  VersionInfo
	timeouts Timeouts
}

// Option configures a Server.
type Option func(*Server)

// WithViews mounts the /api page routes.
func WithViews(v *handlers.Views) Option {
	return func(s *Server) { s.views = v }
}

// WithMetrics mounts /metrics for c.
func WithMetrics(c *observability.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the build information reported on /version.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithTimeouts overrides the server timeouts. Zero fields keep defaults.
func WithTimeouts(t Timeouts) Option {
	return func(s *Server) {
		if t.Read > 0 {
			s.timeouts.Read = t.Read
		}
		if t.Write > 0 {
			s.timeouts.Write = t.Write
		}
		if t.Idle > 0 {
			s.timeouts.Idle = t.Idle
		}
		if t.Shutdown > 0 {
			s.timeouts.Shutdown = t.Shutdown
		}
	}
}

// New creates a server listening on host:port once started.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:    host,
		port:    port,
		logger:  zap.NewNop(),
		version: VersionInfo{Version: "dev"},
		timeouts: Timeouts{
			Read:     30 * time.Second,
			Write:    30 * time.Second,
			Idle:     120 * time.Second,
			Shutdown: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	v := crucible.GetVersion()
	if s.version.Crucible == "" {
		s.version.Crucible = v.Crucible
	}
	if s.version.Gofulmen == "" {
		s.version.Gofulmen = v.Gofulmen
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logger(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, r, http.StatusNotFound, apperrors.CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, r, http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed,
			fmt.Sprintf("method %s not allowed", r.Method), nil)
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", s.versionHandler)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	if s.views != nil {
		r.Route("/api", func(r chi.Router) {
			r.Get("/dashboard", s.views.Dashboard)
			r.Get("/files", s.views.Files)
			r.Get("/cases", s.views.Cases)
			r.Get("/tasks", s.views.Tasks)
			r.Get("/tasks/{id}", s.views.Task)
			r.Get("/tasks/{id}/mindmap", s.views.MindMap)
			r.Get("/jobs", s.views.Jobs)
		})
	}
	return r
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.version)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.timeouts.Read,
		WriteTimeout: s.timeouts.Write,
		IdleTimeout:  s.timeouts.Idle,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", s.httpSrv.Addr, err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the server within the shutdown timeout.
func (s *Server) Shutdown() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeouts.Shutdown)
	defer cancel()
	s.logger.Info("Shutting down server")
	return s.httpSrv.Shutdown(ctx)
}
