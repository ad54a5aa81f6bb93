package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// DefaultPruneSchedule runs the cache prune once an hour.
const DefaultPruneSchedule = "@hourly"

// Pruner deletes expired cache entries on a cron schedule.
type Pruner struct {
	store    domain.CachePruner
	schedule string
	logger   *slog.Logger
}

// NewPruner creates a Pruner. An empty schedule uses DefaultPruneSchedule.
func NewPruner(store domain.CachePruner, schedule string, logger *slog.Logger) *Pruner {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	return &Pruner{
		store:    store,
		schedule: schedule,
		logger:   logger.With(slog.String("component", "pruner")),
	}
}

// Run executes a single prune and returns the number of rows removed.
func (p *Pruner) Run(ctx context.Context) (int64, error) {
	n, err := p.store.Prune(ctx)
	if err != nil {
		return 0, fmt.Errorf("pruner: prune: %w", err)
	}
	p.logger.InfoContext(ctx, "cache pruned", slog.Int64("removed", n))
	return n, nil
}

// RunCron prunes on the configured schedule until ctx is cancelled. It
// supports standard 5-field expressions and descriptors such as @hourly.
func (p *Pruner) RunCron(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(p.schedule, func() {
		if _, err := p.Run(ctx); err != nil {
			p.logger.ErrorContext(ctx, "cache prune failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("pruner: parse schedule %q: %w", p.schedule, err)
	}

	p.logger.InfoContext(ctx, "cache prune cron started", slog.String("schedule", p.schedule))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	p.logger.Info("cache prune cron stopped")
	return ctx.Err()
}
