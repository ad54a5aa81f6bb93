package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alanyoungcy/polysignal/internal/server/handler"
	"github.com/alanyoungcy/polysignal/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port           int
	CORSOrigins    []string
	APIKey         string // if empty, authentication is disabled
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Analyze *handler.AnalyzeHandler
	Metrics http.Handler // optional
}

// Server is the serve-mode HTTP API.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *slog.Logger
}

// NewServer creates a Server with all routes and middleware registered.
// Health and metrics stay public; analysis requests go through auth, the
// per-IP limiter and the request timeout.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", handlers.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.APIKey))
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		if cfg.RequestTimeout > 0 {
			r.Use(chimw.Timeout(cfg.RequestTimeout))
		}
		r.Get("/api/analyze", handlers.Analyze.Analyze)
	})

	writeTimeout := 30 * time.Second
	if cfg.RequestTimeout+10*time.Second > writeTimeout {
		writeTimeout = cfg.RequestTimeout + 10*time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		router:     r,
		logger:     logger,
	}
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr is the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
