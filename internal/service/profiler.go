package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/alanyoungcy/polysignal/internal/platform/polymarket"
	"github.com/alanyoungcy/polysignal/internal/signal"
)

// WalletData is the Data API surface the profiler reads.
type WalletData interface {
	Leaderboard(ctx context.Context, wallet string) (*domain.LeaderboardRow, error)
	Positions(ctx context.Context, wallet, conditionID string, sizeThreshold float64) ([]polymarket.APIPosition, error)
	ClosedPositions(ctx context.Context, wallet string, max, pageSize int) ([]domain.ClosedPosition, error)
}

// ProfilerConfig bounds the per-wallet history scan.
type ProfilerConfig struct {
	MaxClosed      int
	ClosedPageSize int
	SizeThreshold  float64
}

// DefaultProfilerConfig returns the default scan bounds.
func DefaultProfilerConfig() ProfilerConfig {
	return ProfilerConfig{MaxClosed: 500, ClosedPageSize: polymarket.MaxClosedPageLimit}
}

// WalletProfiler builds a WalletProfile for one holder of one market.
type WalletProfiler struct {
	data   WalletData
	cfg    ProfilerConfig
	logger *slog.Logger
}

// NewWalletProfiler creates a WalletProfiler.
func NewWalletProfiler(data WalletData, cfg ProfilerConfig, logger *slog.Logger) *WalletProfiler {
	if cfg.ClosedPageSize <= 0 || cfg.ClosedPageSize > polymarket.MaxClosedPageLimit {
		cfg.ClosedPageSize = polymarket.MaxClosedPageLimit
	}
	if cfg.MaxClosed < 0 {
		cfg.MaxClosed = 0
	}
	return &WalletProfiler{
		data:   data,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "profiler")),
	}
}

// Profile fetches the leaderboard row, the open position in m and, when a
// position exists, the recent closed positions. Only a positions failure is
// returned as an error; the other fetches degrade the profile.
func (p *WalletProfiler) Profile(ctx context.Context, wallet string, m domain.Market) (domain.WalletProfile, error) {
	profile := domain.WalletProfile{Address: wallet}

	row, err := p.data.Leaderboard(ctx, wallet)
	if err != nil {
		p.logger.DebugContext(ctx, "leaderboard unavailable",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		profile.Degraded = append(profile.Degraded, domain.DegradedLeaderboard)
	} else {
		profile.Leaderboard = row
	}

	rows, err := p.data.Positions(ctx, wallet, m.ConditionID, p.cfg.SizeThreshold)
	if err != nil {
		return domain.WalletProfile{}, fmt.Errorf("profiler: positions %s: %w", wallet, err)
	}
	profile.Position = polymarket.SummarizePositions(rows, m)

	if profile.HasPosition() && p.cfg.MaxClosed > 0 {
		closed, err := p.data.ClosedPositions(ctx, wallet, p.cfg.MaxClosed, p.cfg.ClosedPageSize)
		if err != nil {
			p.logger.DebugContext(ctx, "closed positions incomplete",
				slog.String("wallet", wallet),
				slog.Int("rows", len(closed)),
				slog.String("error", err.Error()),
			)
			profile.Degraded = append(profile.Degraded, domain.DegradedClosedPositions)
		}
		profile.Closed = closed
	}

	profile.PnL = signal.ResolvePnL(profile, profile.Leaderboard)
	return profile, nil
}
