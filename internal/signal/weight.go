package signal

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// Weight heuristic constants.
const (
	profitScale      = 5000.0
	profitMaxFactor  = 5.0
	recencyHalfScale = 30.0 // days
	convictionMin    = 0.5
	convictionMax    = 3.0
	futureSkew       = 60 * time.Second
)

// DeriveFeatures computes the weight inputs for one wallet at now.
func DeriveFeatures(p domain.WalletProfile, now time.Time) domain.WalletFeatures {
	f := domain.WalletFeatures{}
	if p.Leaderboard != nil && p.Leaderboard.PnL != nil {
		v := *p.Leaderboard.PnL
		f.LeaderboardPnL = &v
	}
	if p.Position != nil {
		f.MarketValue = p.Position.MarketValue()
	}

	var (
		wins, decided int
		latest        time.Time
		bought        []float64
	)
	for _, c := range p.Closed {
		f.RecentPnL += c.RealizedPnL
		f.RecentCloses++
		if c.RealizedPnL != 0 {
			decided++
			if c.RealizedPnL > 0 {
				wins++
			}
		}
		if c.ClosedAt.After(latest) {
			latest = c.ClosedAt
		}
		if c.TotalBought > 0 {
			bought = append(bought, c.TotalBought)
		}
	}

	if decided > 0 {
		wr := float64(wins) / float64(decided)
		f.WinRate = &wr
	}
	// Whole days, so runs minutes apart score identically.
	if !latest.IsZero() && !latest.After(now.Add(futureSkew)) {
		days := math.Floor(now.Sub(latest).Hours() / 24)
		if days < 0 {
			days = 0
		}
		f.DaysSinceClose = &days
	}
	if med, ok := upperMedian(bought); ok && med > 0 && f.MarketValue > 0 {
		conv := f.MarketValue / med
		f.Conviction = &conv
	}
	return f
}

// WalletWeight turns features into a positive weight. It is the product of
// profit, win-rate, recency, conviction and value factors, and increases
// with win rate and with recency of the last close.
func WalletWeight(f domain.WalletFeatures) float64 {
	profitW := 1.0
	if f.LeaderboardPnL != nil {
		profitW = clamp(*f.LeaderboardPnL/profitScale, 1, profitMaxFactor)
	}

	winRate := 0.5
	if f.WinRate != nil {
		winRate = *f.WinRate
	}
	winW := 0.5 + winRate

	recW := 0.75
	if f.DaysSinceClose != nil {
		recW = 0.5 + 0.5*math.Exp(-*f.DaysSinceClose/recencyHalfScale)
	}

	conv := 1.0
	if f.Conviction != nil {
		conv = *f.Conviction
	}
	convW := clamp(conv, convictionMin, convictionMax)

	valueW := math.Sqrt(math.Max(1, f.MarketValue))

	return profitW * winW * recW * convW * valueW
}

// upperMedian returns the middle value, or the upper of the two middle values
// for an even count.
func upperMedian(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return s[len(s)/2], true
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
