// Package signal holds the pure decision logic: the market gate, PnL
// provenance, wallet weighting and the scoring engine. Nothing here performs
// I/O.
package signal

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// EvaluateMarket decides whether a market is eligible for a holder scan.
// It must run before any Data API call for the market.
func EvaluateMarket(m domain.Market, now time.Time) domain.GateResult {
	switch m.Status {
	case domain.MarketStatusClosed:
		return domain.Gated(domain.GateMarketClosed, "market is closed")
	case domain.MarketStatusInactive:
		return domain.Gated(domain.GateMarketInactive, "market is not active")
	}
	if !m.EndDate.IsZero() && m.EndDate.Before(now) {
		return domain.Gated(domain.GateMarketExpired,
			fmt.Sprintf("ended %s", m.EndDate.UTC().Format(time.RFC3339)))
	}
	return domain.Pass()
}

// GatedResult is the ScoringResult for a market stopped before scoring.
func GatedResult(m domain.Market, g domain.GateResult) domain.ScoringResult {
	shares := make([]domain.OutcomeShare, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		shares = append(shares, domain.OutcomeShare{Outcome: o})
	}
	return domain.ScoringResult{
		Shares:         shares,
		Recommendation: domain.StayOut(),
		Diagnostics: domain.Diagnostics{
			Gate:       g.Reason,
			GateDetail: g.Detail,
		},
	}
}
