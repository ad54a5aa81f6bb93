package signal

import "github.com/alanyoungcy/polysignal/internal/domain"

// ResolvePnL classifies a wallet's displayable all-time PnL. A leaderboard
// value wins; otherwise the sum of scanned closes; otherwise Unknown.
func ResolvePnL(p domain.WalletProfile, row *domain.LeaderboardRow) domain.PnLDisplay {
	if row != nil && row.PnL != nil {
		return domain.LeaderboardPnL(*row.PnL)
	}
	if len(p.Closed) > 0 {
		var sum float64
		for _, c := range p.Closed {
			sum += c.RealizedPnL
		}
		return domain.InferredPnL(sum)
	}
	return domain.UnknownPnL()
}

// QualifyPnL applies the min-profit rule. Unknown is eligible only when
// minProfit is 0 or less.
func QualifyPnL(pnl domain.PnLDisplay, minProfit float64) (domain.DropReason, bool) {
	v, known := pnl.Value()
	if !known {
		if minProfit > 0 {
			return domain.DropPnLUnknown, false
		}
		return "", true
	}
	if v < minProfit {
		return domain.DropPnLBelowMinProfit, false
	}
	return "", true
}
