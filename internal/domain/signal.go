package domain

import "time"

// Action is the kind of recommendation.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionStayOut Action = "STAY_OUT"
)

// Recommendation is either Buy(outcome) or StayOut.
type Recommendation struct {
	Action  Action `json:"action"`
	Outcome string `json:"outcome,omitempty"`
}

// Buy returns a Buy recommendation for outcome.
func Buy(outcome string) Recommendation {
	return Recommendation{Action: ActionBuy, Outcome: outcome}
}

// StayOut returns the StayOut recommendation.
func StayOut() Recommendation {
	return Recommendation{Action: ActionStayOut}
}

func (r Recommendation) String() string {
	if r.Action == ActionBuy {
		return "BUY " + r.Outcome
	}
	return "STAY OUT"
}

// Gate names a pipeline checkpoint that forced a StayOut.
type Gate string

const (
	GateNone               Gate = ""
	GateMarketClosed       Gate = "market_closed"
	GateMarketInactive     Gate = "market_inactive"
	GateMarketExpired      Gate = "market_expired"
	GateMissingConditionID Gate = "missing_condition_id"
	GateNoQualifiedWallets Gate = "no_qualified_wallets"
	GateInsufficientSample Gate = "insufficient_sample"
	GateWhaleDominance     Gate = "whale_dominance"
	GateNoConsensus        Gate = "no_consensus"
)

// IsMarketGate reports whether g was raised before any holder scan.
func (g Gate) IsMarketGate() bool {
	switch g {
	case GateMarketClosed, GateMarketInactive, GateMarketExpired, GateMissingConditionID:
		return true
	}
	return false
}

// GateResult is the outcome of the market gate: Pass, or Gated with a reason.
type GateResult struct {
	Reason Gate   `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Pass returns a passing GateResult.
func Pass() GateResult { return GateResult{} }

// Gated returns a rejecting GateResult.
func Gated(reason Gate, detail string) GateResult {
	return GateResult{Reason: reason, Detail: detail}
}

// Passed reports whether the gate let the market through.
func (g GateResult) Passed() bool { return g.Reason == GateNone }

// DropReason explains why a wallet was excluded from scoring.
type DropReason string

const (
	DropPnLUnknown        DropReason = "pnl_unknown"
	DropPnLBelowMinProfit DropReason = "pnl_below_min_profit"
	DropNoPosition        DropReason = "no_position_in_market"
	DropZeroValue         DropReason = "position_zero_value"
	DropProfileError      DropReason = "profile_error"
)

// WalletDrop records one excluded wallet.
type WalletDrop struct {
	Wallet string     `json:"wallet"`
	Reason DropReason `json:"reason"`
}

// OutcomeShare is one outcome's slice of the aggregated weight.
type OutcomeShare struct {
	Outcome string  `json:"outcome"`
	Share   float64 `json:"share"`
	Weight  float64 `json:"weight"`
	Wallets int     `json:"wallets"`
}

// ScoredWallet is a qualified wallet with its contribution.
type ScoredWallet struct {
	Address  string         `json:"address"`
	Outcome  string         `json:"outcome"`
	Value    float64        `json:"value"`
	Weight   float64        `json:"weight"`
	Share    float64        `json:"share"`
	PnL      PnLDisplay     `json:"pnl"`
	Features WalletFeatures `json:"features"`
}

// Diagnostics explains how a ScoringResult was reached.
type Diagnostics struct {
	Gate           Gate               `json:"gate,omitempty"`
	GateDetail     string             `json:"gate_detail,omitempty"`
	TopWalletShare float64            `json:"top_wallet_share"`
	Margin         float64            `json:"margin"`
	Drops          []WalletDrop       `json:"drops,omitempty"`
	DropCounts     map[DropReason]int `json:"drop_counts,omitempty"`
}

// ScoringResult is the pure output of the scoring engine for one market.
type ScoringResult struct {
	Shares         []OutcomeShare `json:"shares"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     int            `json:"confidence"`
	Qualified      int            `json:"qualified"`
	Considered     int            `json:"considered"`
	Wallets        []ScoredWallet `json:"wallets,omitempty"`
	Diagnostics    Diagnostics    `json:"diagnostics"`
}

// Thresholds configure the scoring gates.
type Thresholds struct {
	MinProfit           float64
	MinQualifiedWallets int
	WhaleThreshold      float64
	ConsensusThreshold  float64
}

// RequestStats is a snapshot of upstream traffic for one run.
type RequestStats struct {
	HTTPRequests int            `json:"http_requests"`
	CacheHits    int            `json:"cache_hits"`
	CacheMisses  int            `json:"cache_misses"`
	HTTPTime     time.Duration  `json:"http_time"`
	Elapsed      time.Duration  `json:"elapsed"`
	ByHost       map[string]int `json:"by_host,omitempty"`
}

// Analysis is the full result for one market.
type Analysis struct {
	RunID    string          `json:"run_id"`
	Market   Market          `json:"market"`
	Result   ScoringResult   `json:"result"`
	Failures []WalletFailure `json:"failures,omitempty"`
	Stats    RequestStats    `json:"stats"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
}

// Report is the outcome of analyzing one reference. For an event that needs a
// market choice, NeedsSelection is set and Candidates lists the markets.
type Report struct {
	Ref            string     `json:"ref"`
	Event          *Event     `json:"event,omitempty"`
	NeedsSelection bool       `json:"needs_selection,omitempty"`
	Candidates     []Market   `json:"candidates,omitempty"`
	Analyses       []Analysis `json:"analyses,omitempty"`
}

// Failed reports whether any analysis ended with a fatal error.
func (r Report) Failed() bool {
	for _, a := range r.Analyses {
		if a.Err != nil {
			return true
		}
	}
	return false
}
