// Package server exposes the planner over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/metrics"
	"github.com/reelquery/reelquery/internal/observability"
	"github.com/reelquery/reelquery/internal/pkg/logger"
	"github.com/reelquery/reelquery/internal/pkg/middleware"
	"github.com/reelquery/reelquery/internal/planner"
)

// Planner is the part of the planner the server calls.
type Planner interface {
	Answer(ctx context.Context, req planner.Request) (*planner.ResultEnvelope, error)
	Plan(ctx context.Context, req planner.Request) (*planner.Plan, error)
}

// Server is the HTTP front of the planner.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server

	// Services
	planner  Planner
	catalog  *endpoint.Catalog
	queryLog *observability.Service
	metrics  *metrics.Metrics
	limiter  *middleware.RateLimiter
	closers  []func(context.Context) error

	// Handlers
	healthHandler *HealthHandler

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout. Answers may relax several
	// times, so it is generous.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration

	// MetricsPath is where Prometheus metrics are served.
	MetricsPath string

	// RateLimit bounds answer and plan requests per client.
	RateLimit middleware.RateLimiterConfig
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MetricsPath:     "/metrics",
		RateLimit:       middleware.DefaultRateLimiterConfig(),
	}
}

// Deps are the services the server exposes. Planner is required.
type Deps struct {
	Planner  Planner
	Catalog  *endpoint.Catalog
	QueryLog *observability.Service
	Metrics  *metrics.Metrics
	Health   *HealthChecker

	// Closers run on Stop, in order, after the listener is shut down.
	Closers []func(context.Context) error
}

// New creates a server.
func New(cfg Config, deps Deps, log *logger.Logger) (*Server, error) {
	if deps.Planner == nil {
		return nil, errors.New("server needs a planner")
	}
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = def.MetricsPath
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if deps.Catalog == nil {
		deps.Catalog = endpoint.DefaultCatalog()
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Server{
		cfg:           cfg,
		log:           log,
		planner:       deps.Planner,
		catalog:       deps.Catalog,
		queryLog:      deps.QueryLog,
		metrics:       deps.Metrics,
		limiter:       middleware.NewRateLimiter(cfg.RateLimit),
		closers:       deps.Closers,
		healthHandler: NewHealthHandler(deps.Health, cfg.Version),
	}, nil
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server and closes its services.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
		errs = append(errs, err)
	}
	s.limiter.Stop()

	for _, closeFn := range s.closers {
		if err := closeFn(shutdownCtx); err != nil {
			s.log.Warn("Close error", "error", err)
			errs = append(errs, err)
		}
	}

	s.started = false
	s.log.Info("Server stopped")
	return errors.Join(errs...)
}

// Handler returns the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /v1/version", s.healthHandler.HandleVersion)

	// Planner endpoints
	mux.Handle("POST /v1/answer", s.limiter.Middleware(http.HandlerFunc(s.handleAnswer)))
	mux.Handle("POST /v1/plan", s.limiter.Middleware(http.HandlerFunc(s.handlePlan)))

	// Catalog and query log
	mux.HandleFunc("GET /v1/catalog", s.handleCatalog)
	mux.HandleFunc("GET /v1/catalog/{path...}", s.handleCatalogEntry)
	mux.HandleFunc("GET /v1/queries", s.handleQueries)

	var handler http.Handler = ResponseWrapperMiddleware(mux)
	if s.metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.metrics.Handler())
		handler = metrics.HTTPMiddleware(s.metrics, handler)
	}
	return middleware.Logging(handler, s.log)
}

// Health returns whether the server is running.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
