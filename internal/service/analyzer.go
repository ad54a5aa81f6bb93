package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/alanyoungcy/polysignal/internal/pipeline"
	"github.com/alanyoungcy/polysignal/internal/platform/polymarket"
	"github.com/alanyoungcy/polysignal/internal/signal"
)

// HolderSource lists the top holders of a market.
type HolderSource interface {
	Holders(ctx context.Context, conditionID string, limit int, minBalance float64) ([]string, error)
}

// AnalysisObserver is told about every finished analysis.
type AnalysisObserver interface {
	ObserveAnalysis(a domain.Analysis)
}

// Settings are the per-run knobs of an analysis.
type Settings struct {
	Thresholds   domain.Thresholds
	HoldersLimit int
	MinBalance   float64
	Concurrency  int
}

// DefaultSettings returns the stock thresholds and limits.
func DefaultSettings() Settings {
	return Settings{
		Thresholds: domain.Thresholds{
			MinProfit:           5000,
			MinQualifiedWallets: 5,
			WhaleThreshold:      0.60,
			ConsensusThreshold:  0.62,
		},
		HoldersLimit: polymarket.MaxHoldersLimit,
		MinBalance:   1,
		Concurrency:  pipeline.DefaultConcurrency,
	}
}

// Request is one analysis invocation. A nil Settings uses the analyzer's.
type Request struct {
	Ref       string
	Selection Selection
	Settings  *Settings
}

// Analyzer drives the signal pipeline: resolve, refresh, gate, holders,
// profile, score.
type Analyzer struct {
	resolver     *Resolver
	holders      HolderSource
	orchestrator *pipeline.Orchestrator
	settings     Settings
	observers    []AnalysisObserver
	now          func() time.Time
	logger       *slog.Logger
}

// AnalyzerOption customizes an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithClock replaces time.Now as the analyzer's clock.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// WithObservers registers observers for finished analyses.
func WithObservers(obs ...AnalysisObserver) AnalyzerOption {
	return func(a *Analyzer) { a.observers = append(a.observers, obs...) }
}

// NewAnalyzer wires an Analyzer.
func NewAnalyzer(
	resolver *Resolver,
	holders HolderSource,
	orchestrator *pipeline.Orchestrator,
	settings Settings,
	logger *slog.Logger,
	opts ...AnalyzerOption,
) *Analyzer {
	a := &Analyzer{
		resolver:     resolver,
		holders:      holders,
		orchestrator: orchestrator,
		settings:     settings,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "analyzer")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Settings returns a copy of the analyzer's default settings.
func (a *Analyzer) Settings() Settings { return a.settings }

// Analyze parses and resolves req.Ref, then analyzes every selected market.
// A parse or resolution failure is returned as an error. Per-market failures
// are recorded on the market's Analysis and the remaining markets still run.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (domain.Report, error) {
	report := domain.Report{Ref: req.Ref}

	ref, err := polymarket.ParseRef(req.Ref)
	if err != nil {
		return report, err
	}
	res, err := a.resolver.Resolve(ctx, ref, req.Selection)
	if err != nil {
		return report, err
	}
	report.Event = res.Event
	if res.NeedsSelection {
		report.NeedsSelection = true
		report.Candidates = res.Candidates
		return report, nil
	}

	settings := a.settings
	if req.Settings != nil {
		settings = *req.Settings
	}
	for _, m := range res.Markets {
		report.Analyses = append(report.Analyses, a.AnalyzeMarket(ctx, m, res.Event, settings))
	}
	return report, nil
}

// AnalyzeMarket runs the pipeline for a single resolved market.
func (a *Analyzer) AnalyzeMarket(ctx context.Context, m domain.Market, ev *domain.Event, settings Settings) domain.Analysis {
	runID := uuid.NewString()
	stats := polymarket.NewStats()
	ctx = polymarket.WithStats(ctx, stats)
	logger := a.logger.With(slog.String("run_id", runID), slog.String("market", m.Slug))

	analysis := a.run(ctx, logger, m, ev, settings)
	analysis.RunID = runID
	analysis.Stats = stats.Snapshot()
	if analysis.Err != nil {
		analysis.Error = analysis.Err.Error()
		logger.ErrorContext(ctx, "analysis failed", slog.String("error", analysis.Error))
	} else {
		logger.InfoContext(ctx, "analysis complete",
			slog.String("recommendation", analysis.Result.Recommendation.String()),
			slog.Int("confidence", analysis.Result.Confidence),
			slog.String("gate", string(analysis.Result.Diagnostics.Gate)),
			slog.Int("qualified", analysis.Result.Qualified),
			slog.Int("http_requests", analysis.Stats.HTTPRequests),
			slog.Int("cache_hits", analysis.Stats.CacheHits),
		)
	}
	for _, o := range a.observers {
		o.ObserveAnalysis(analysis)
	}
	return analysis
}

func (a *Analyzer) run(ctx context.Context, logger *slog.Logger, m domain.Market, ev *domain.Event, settings Settings) domain.Analysis {
	now := a.now()

	m, err := a.resolver.Complete(ctx, m, ev)
	if err != nil {
		return domain.Analysis{Market: m, Err: err}
	}

	if gate := signal.EvaluateMarket(m, now); !gate.Passed() {
		logger.DebugContext(ctx, "market gated", slog.String("reason", string(gate.Reason)))
		return domain.Analysis{Market: m, Result: signal.GatedResult(m, gate)}
	}
	if m.ConditionID == "" {
		gate := domain.Gated(domain.GateMissingConditionID, "market has no condition id")
		return domain.Analysis{Market: m, Result: signal.GatedResult(m, gate)}
	}

	holders, err := a.holders.Holders(ctx, m.ConditionID, settings.HoldersLimit, settings.MinBalance)
	if err != nil {
		return domain.Analysis{Market: m, Err: fmt.Errorf("analyzer: holders %s: %w", m.ConditionID, err)}
	}
	logger.DebugContext(ctx, "holders fetched", slog.Int("count", len(holders)))

	batch := a.orchestrator.ProfileAll(ctx, holders, m, settings.Concurrency)
	result := signal.Score(m, batch.Profiles, settings.Thresholds, now)
	result = signal.WithFailures(result, batch.Failures)

	return domain.Analysis{Market: m, Result: result, Failures: batch.Failures}
}
