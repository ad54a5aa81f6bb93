package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// DefaultConcurrency is the worker count used when none is given.
const DefaultConcurrency = 8

// Profiler builds one wallet's profile for a market.
type Profiler interface {
	Profile(ctx context.Context, wallet string, m domain.Market) (domain.WalletProfile, error)
}

// Batch is the fan-in result of profiling every holder. Profiles and
// Failures both follow holder order.
type Batch struct {
	Profiles []domain.WalletProfile
	Failures []domain.WalletFailure
}

// Orchestrator fans wallet profiling out over a bounded worker pool.
type Orchestrator struct {
	profiler Profiler
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator around profiler.
func NewOrchestrator(profiler Profiler, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		profiler: profiler,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

type slot struct {
	profile domain.WalletProfile
	err     error
	done    bool
}

// ProfileAll profiles every holder with at most concurrency workers. Workers
// never fail the group: one wallet's error is recorded as a WalletFailure and
// the others keep running. Cancelling ctx stops the remaining work.
func (o *Orchestrator) ProfileAll(ctx context.Context, holders []string, m domain.Market, concurrency int) Batch {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	start := time.Now()
	slots := make([]slot, len(holders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, wallet := range holders {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slots[i] = slot{err: fmt.Errorf("panic: %v", r), done: true}
				}
			}()
			p, perr := o.profiler.Profile(gctx, wallet, m)
			slots[i] = slot{profile: p, err: perr, done: true}
			return nil
		})
	}
	_ = g.Wait()

	var b Batch
	for i, s := range slots {
		switch {
		case !s.done:
			cause := context.Canceled
			if err := ctx.Err(); err != nil {
				cause = err
			}
			b.Failures = append(b.Failures, domain.WalletFailure{Wallet: holders[i], Cause: cause.Error(), Err: cause})
		case s.err != nil:
			b.Failures = append(b.Failures, domain.WalletFailure{Wallet: holders[i], Cause: s.err.Error(), Err: s.err})
		default:
			b.Profiles = append(b.Profiles, s.profile)
		}
	}

	o.logger.DebugContext(ctx, "profiled holders",
		slog.String("market", m.Slug),
		slog.Int("holders", len(holders)),
		slog.Int("profiles", len(b.Profiles)),
		slog.Int("failures", len(b.Failures)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return b
}
