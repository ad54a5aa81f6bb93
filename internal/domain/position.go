package domain

import "time"

// OpenPosition is a wallet's current holding in one market. When the wallet
// holds several outcomes, the outcome with the largest value is kept.
type OpenPosition struct {
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcome_index"` // -1 when not matched to the market
	Value        float64 `json:"value"`
	TotalValue   float64 `json:"total_value"`
}

// MarketValue is the wallet's total value in the market, falling back to the
// dominant outcome's value.
func (p OpenPosition) MarketValue() float64 {
	if p.TotalValue > 0 {
		return p.TotalValue
	}
	return p.Value
}

// ClosedPosition is one realized close from the wallet's history.
type ClosedPosition struct {
	Outcome     string    `json:"outcome,omitempty"`
	RealizedPnL float64   `json:"realized_pnl"`
	TotalBought float64   `json:"total_bought"`
	ClosedAt    time.Time `json:"closed_at"`
}

// LeaderboardRow is the all-time leaderboard entry for a wallet. PnL is nil
// when the upstream row carried no recognizable profit field.
type LeaderboardRow struct {
	PnL      *float64 `json:"pnl,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
	UserName string   `json:"user_name,omitempty"`
}

// Degraded fetch names recorded on a WalletProfile.
const (
	DegradedLeaderboard     = "leaderboard"
	DegradedClosedPositions = "closed_positions"
)

// WalletProfile is a read-only snapshot of one holder built for one run.
type WalletProfile struct {
	Address     string           `json:"address"`
	Position    *OpenPosition    `json:"position,omitempty"`
	Closed      []ClosedPosition `json:"closed,omitempty"` // most recent first
	Leaderboard *LeaderboardRow  `json:"leaderboard,omitempty"`
	Degraded    []string         `json:"degraded,omitempty"`
	PnL         PnLDisplay       `json:"pnl"`
}

// HasPosition reports whether the wallet holds anything in the market.
func (p WalletProfile) HasPosition() bool {
	return p.Position != nil
}

// WalletFeatures are the per-wallet inputs to the weight heuristic. Nil
// pointers mean the feature could not be derived.
type WalletFeatures struct {
	LeaderboardPnL *float64 `json:"leaderboard_pnl,omitempty"`
	WinRate        *float64 `json:"win_rate,omitempty"`
	DaysSinceClose *float64 `json:"days_since_close,omitempty"`
	Conviction     *float64 `json:"conviction,omitempty"`
	RecentPnL      float64  `json:"recent_pnl"`
	RecentCloses   int      `json:"recent_closes"`
	MarketValue    float64  `json:"market_value"`
}

// WalletFailure records a wallet that could not be profiled.
type WalletFailure struct {
	Wallet string `json:"wallet"`
	Cause  string `json:"cause"`
	Err    error  `json:"-"`
}
