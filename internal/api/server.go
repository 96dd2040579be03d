package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/lyftr/internal/events"
	"github.com/mattjoyce/lyftr/internal/ingest"
	"github.com/mattjoyce/lyftr/internal/metrics"
	"github.com/mattjoyce/lyftr/internal/query"
)

// Ingester runs one webhook body through the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, body []byte, signature string) (ingest.Result, error)
}

// MessageLister answers GET /messages.
type MessageLister interface {
	ListMessages(ctx context.Context, p query.Params) (query.PageResult, error)
}

// StatsProvider answers GET /stats.
type StatsProvider interface {
	GetStats(ctx context.Context) (query.StatsResult, error)
}

// Pinger is probed by readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds API server configuration.
type Config struct {
	Listen           string
	ServiceName      string
	SignatureHeader  string
	MaxBodySize      int64
	SecretConfigured bool

	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	ReadinessTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "lyftr"
	}
	if c.SignatureHeader == "" {
		c.SignatureHeader = "X-Signature"
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = 1 << 20
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.ReadinessTimeout <= 0 {
		c.ReadinessTimeout = 2 * time.Second
	}
	return c
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Ingester Ingester
	Messages MessageLister
	Stats    StatsProvider
	Store    Pinger
	Events   *events.Hub
	Metrics  *metrics.Metrics
}

// Server represents the HTTP API server.
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if deps.Events == nil {
		deps.Events = events.NewHub(256)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Server{
		config:    config.withDefaults(),
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		// SSE handlers only return once their subscriptions close.
		s.deps.Events.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/messages", s.handleListMessages)
	r.Get("/stats", s.handleStats)
	r.Get("/health/live", s.handleLive)
	r.Get("/health/ready", s.handleReady)
	r.Get("/events", s.handleEvents)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	return r
}
