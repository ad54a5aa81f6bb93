package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polysignal/internal/cache"
	pgcache "github.com/alanyoungcy/polysignal/internal/cache/postgres"
	rediscache "github.com/alanyoungcy/polysignal/internal/cache/redis"
	sqlitecache "github.com/alanyoungcy/polysignal/internal/cache/sqlite"
	"github.com/alanyoungcy/polysignal/internal/config"
	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/alanyoungcy/polysignal/internal/metrics"
	"github.com/alanyoungcy/polysignal/internal/notify"
	"github.com/alanyoungcy/polysignal/internal/pipeline"
	"github.com/alanyoungcy/polysignal/internal/platform/polymarket"
	"github.com/alanyoungcy/polysignal/internal/service"
)

// Options adjust wiring for a single invocation.
type Options struct {
	// NoCache swaps the configured store for cache.Nop without opening the
	// backend. Stored entries are left alone.
	NoCache bool
	// ClearCache empties the configured store before use.
	ClearCache bool
	// Clock replaces time.Now in the analyzer.
	Clock func() time.Time
}

// Dependencies bundles the components built by Wire.
type Dependencies struct {
	Store     domain.ResponseCache
	CacheErr  error            // why the configured backend could not be opened
	Pruner    *pipeline.Pruner // nil when the backend expires entries itself
	Transport *polymarket.Transport
	Gamma     *polymarket.GammaClient
	Data      *polymarket.DataClient
	Analyzer  *service.Analyzer
	Metrics   *metrics.Recorder
	Alerter   *notify.Alerter // nil when no chat channel is configured
}

// Wire constructs every component from cfg and returns them together with a
// cleanup function that releases the cache backend.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Metrics: metrics.NewRecorder()}

	// --- Cache ---
	// A cache that cannot be opened degrades to live fetches. Only an
	// explicit --clear-cache that fails is fatal.
	deps.Store = cache.Nop{}
	if !opts.NoCache || opts.ClearCache {
		store, err := OpenCache(ctx, cfg)
		if err != nil {
			deps.CacheErr = err
			logger.WarnContext(ctx, "cache unavailable, fetching live",
				slog.String("backend", cfg.Cache.Backend),
				slog.String("error", err.Error()),
			)
		} else {
			closers = append(closers, func() {
				if err := store.Close(); err != nil {
					logger.Warn("wire: close cache", slog.String("error", err.Error()))
				}
			})
			if opts.ClearCache {
				if err := store.Clear(ctx); err != nil {
					cleanup()
					return nil, nil, fmt.Errorf("wire: clear cache: %w", err)
				}
				logger.InfoContext(ctx, "cache cleared", slog.String("backend", cfg.Cache.Backend))
			}
			if !opts.NoCache {
				deps.Store = store
				if p, ok := store.(domain.CachePruner); ok {
					deps.Pruner = pipeline.NewPruner(p, cfg.Cache.PruneCron, logger)
				}
			}
		}
	}

	// --- Polymarket ---
	deps.Transport = polymarket.NewTransport(TransportConfig(cfg), nil, logger)
	gw := polymarket.NewGateway(deps.Transport, deps.Store, polymarket.TTLs{
		Gamma: cfg.Cache.TTLGamma.Duration,
		Data:  cfg.Cache.TTLData.Duration,
	}, logger, deps.Metrics)
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, gw)
	deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost, gw)

	// --- Analysis ---
	profiler := service.NewWalletProfiler(deps.Data, ProfilerConfig(cfg), logger)
	orchestrator := pipeline.NewOrchestrator(profiler, logger)
	observers := []service.AnalysisObserver{deps.Metrics}
	if deps.Alerter = NewAlerter(cfg, logger); deps.Alerter != nil {
		observers = append(observers, deps.Alerter)
	}
	analyzerOpts := []service.AnalyzerOption{service.WithObservers(observers...)}
	if opts.Clock != nil {
		analyzerOpts = append(analyzerOpts, service.WithClock(opts.Clock))
	}
	deps.Analyzer = service.NewAnalyzer(
		service.NewResolver(deps.Gamma, logger),
		deps.Data,
		orchestrator,
		Settings(cfg),
		logger,
		analyzerOpts...,
	)

	return deps, cleanup, nil
}

// NewAlerter builds the chat alerter from the [notify] section, or returns nil
// when neither Telegram nor Discord is configured.
func NewAlerter(cfg *config.Config, logger *slog.Logger) *notify.Alerter {
	n := cfg.Notify
	var senders []notify.Sender
	if n.TelegramToken != "" && n.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(n.TelegramAPI, n.TelegramToken, n.TelegramChatID))
	}
	if n.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(n.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewAlerter(notify.NewNotifier(senders, n.Events, logger), n.MinConfidence, 0, logger)
}

// OpenCache opens the backend named by cfg.Cache.Backend.
func OpenCache(ctx context.Context, cfg *config.Config) (domain.ResponseCache, error) {
	switch cfg.Cache.Backend {
	case config.BackendNone:
		return cache.Nop{}, nil

	case config.BackendRedis:
		rdb, err := rediscache.Dial(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return nil, err
		}
		return rediscache.NewStore(rdb, cfg.Redis.KeyPrefix), nil

	case config.BackendPostgres:
		pool, err := pgcache.Connect(ctx, pgcache.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := pgcache.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return pgcache.NewStore(pool), nil

	case config.BackendDisk, "":
		return sqlitecache.Open(config.ExpandHome(cfg.Cache.Dir))

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// TransportConfig maps the [transport] section onto the HTTP transport.
func TransportConfig(cfg *config.Config) polymarket.TransportConfig {
	t := cfg.Transport
	failures := t.BreakerFailures
	if failures < 0 {
		failures = 0
	}
	return polymarket.TransportConfig{
		Timeout:             t.Timeout.Duration,
		UserAgent:           t.UserAgent,
		RPS:                 t.RPS,
		Burst:               t.Burst,
		MaxAttempts:         t.MaxAttempts,
		BaseDelay:           t.BaseDelay.Duration,
		MaxDelay:            t.MaxDelay.Duration,
		BreakerFailures:     uint32(failures),
		BreakerFailureRatio: t.BreakerRatio,
		BreakerCooldown:     t.BreakerCooldown.Duration,
	}
}

// Settings maps the [analysis] section onto analyzer settings.
func Settings(cfg *config.Config) service.Settings {
	a := cfg.Analysis
	return service.Settings{
		Thresholds: domain.Thresholds{
			MinProfit:           a.MinProfit,
			MinQualifiedWallets: a.MinQualifiedWallets,
			WhaleThreshold:      a.WhaleThreshold,
			ConsensusThreshold:  a.ConsensusThreshold,
		},
		HoldersLimit: a.HoldersLimit,
		MinBalance:   a.MinBalance,
		Concurrency:  a.Concurrency,
	}
}

// ProfilerConfig maps the closed-position scan bounds.
func ProfilerConfig(cfg *config.Config) service.ProfilerConfig {
	return service.ProfilerConfig{
		MaxClosed:      cfg.Analysis.MaxClosed,
		ClosedPageSize: cfg.Analysis.ClosedPageSize,
	}
}
