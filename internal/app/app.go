// Package app wires polysignal's components from configuration and runs the
// long-lived serve mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polysignal/internal/config"
	"github.com/alanyoungcy/polysignal/internal/server"
	"github.com/alanyoungcy/polysignal/internal/server/handler"
)

// NewLogger returns a JSON slog logger at the named level. Unknown levels
// fall back to warn.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// App owns the configuration, logger and the cleanup functions registered by
// Wire. Cleanups run in reverse order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Config returns the active configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Wire builds the dependencies and registers their cleanup with the App.
func (a *App) Wire(ctx context.Context, opts Options) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger, opts)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Serve runs the HTTP API and, when the backend supports it, the scheduled
// cache prune. It blocks until ctx is cancelled or a component fails.
func (a *App) Serve(ctx context.Context, deps *Dependencies) error {
	sc := a.cfg.Server
	srv := server.NewServer(server.Config{
		Port:           sc.Port,
		CORSOrigins:    sc.CORSOrigins,
		APIKey:         sc.APIKey,
		RateLimitRPS:   sc.RateLimitRPS,
		RateLimitBurst: sc.RateLimitBurst,
		RequestTimeout: sc.RequestTimeout.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.logger, handler.Check{
			Name: "cache",
			Fn: func(ctx context.Context) error {
				_, _, err := deps.Store.Get(ctx, "health:probe")
				return err
			},
		}),
		Analyze: handler.NewAnalyzeHandler(deps.Analyzer, a.logger),
		Metrics: deps.Metrics.Handler(),
	}, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	if deps.Pruner != nil && a.cfg.Cache.PruneCron != "" {
		g.Go(func() error {
			err := deps.Pruner.RunCron(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	a.logger.InfoContext(ctx, "serving",
		slog.String("addr", srv.Addr()),
		slog.String("cache_backend", a.cfg.Cache.Backend),
	)
	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
