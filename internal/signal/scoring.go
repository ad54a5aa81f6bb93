package signal

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

const (
	maxConfidence = 10
	tieEpsilon    = 1e-12
)

type qualified struct {
	profile  domain.WalletProfile
	outcome  string
	pnl      domain.PnLDisplay
	features domain.WalletFeatures
	weight   float64
}

// Score turns profiled holders into a recommendation. The result depends only
// on the set of profiles and now, never on their order. Gates are evaluated
// in order: qualification, sample size, whale dominance, consensus.
func Score(m domain.Market, profiles []domain.WalletProfile, th domain.Thresholds, now time.Time) domain.ScoringResult {
	sorted := append([]domain.WalletProfile(nil), profiles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Address) < strings.ToLower(sorted[j].Address)
	})

	res := domain.ScoringResult{
		Recommendation: domain.StayOut(),
		Considered:     len(sorted),
		Diagnostics:    domain.Diagnostics{DropCounts: map[domain.DropReason]int{}},
	}

	var kept []qualified
	for _, p := range sorted {
		pnl := ResolvePnL(p, p.Leaderboard)
		if reason, ok := qualify(p, pnl, th.MinProfit); !ok {
			res.Diagnostics.Drops = append(res.Diagnostics.Drops, domain.WalletDrop{Wallet: p.Address, Reason: reason})
			res.Diagnostics.DropCounts[reason]++
			continue
		}
		f := DeriveFeatures(p, now)
		kept = append(kept, qualified{
			profile:  p,
			outcome:  canonicalOutcome(m, *p.Position),
			pnl:      pnl,
			features: f,
			weight:   WalletWeight(f),
		})
	}
	res.Qualified = len(kept)

	total := 0.0
	for _, q := range kept {
		total += q.weight
	}
	res.Shares = aggregate(m, kept, total)
	res.Wallets = scoredWallets(kept, total)
	if len(res.Wallets) > 0 {
		res.Diagnostics.TopWalletShare = res.Wallets[0].Share
	}
	if len(res.Shares) > 0 {
		second := 0.0
		if len(res.Shares) > 1 {
			second = res.Shares[1].Share
		}
		res.Diagnostics.Margin = res.Shares[0].Share - second
	}

	switch {
	case res.Qualified < th.MinQualifiedWallets:
		res.Diagnostics.Gate = domain.GateInsufficientSample
		res.Diagnostics.GateDetail = fmt.Sprintf("%d qualified wallets, need %d", res.Qualified, th.MinQualifiedWallets)
		return res
	case res.Qualified == 0 || total <= 0:
		res.Diagnostics.Gate = domain.GateNoQualifiedWallets
		res.Diagnostics.GateDetail = "no wallet passed qualification"
		return res
	case res.Diagnostics.TopWalletShare >= th.WhaleThreshold:
		res.Diagnostics.Gate = domain.GateWhaleDominance
		res.Diagnostics.GateDetail = fmt.Sprintf("top wallet holds %.0f%% of weight", res.Diagnostics.TopWalletShare*100)
		return res
	}

	top := res.Shares[0]
	tied := len(res.Shares) > 1 && math.Abs(top.Share-res.Shares[1].Share) < tieEpsilon
	if top.Share <= th.ConsensusThreshold || tied {
		res.Diagnostics.Gate = domain.GateNoConsensus
		if tied {
			res.Diagnostics.GateDetail = fmt.Sprintf("%s and %s are tied", top.Outcome, res.Shares[1].Outcome)
		} else {
			res.Diagnostics.GateDetail = fmt.Sprintf("top outcome share %.2f does not exceed %.2f", top.Share, th.ConsensusThreshold)
		}
		return res
	}

	res.Recommendation = domain.Buy(top.Outcome)
	res.Confidence = Confidence(res.Diagnostics.Margin)
	return res
}

// Confidence maps the share margin between the top two outcomes onto 0..10.
func Confidence(margin float64) int {
	c := int(math.Round(maxConfidence * margin))
	if c < 0 {
		return 0
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}

// WithFailures folds wallets that could not be profiled into the result's
// diagnostics. They count as considered and are dropped with profile_error.
func WithFailures(res domain.ScoringResult, failures []domain.WalletFailure) domain.ScoringResult {
	if len(failures) == 0 {
		return res
	}
	if res.Diagnostics.DropCounts == nil {
		res.Diagnostics.DropCounts = map[domain.DropReason]int{}
	}
	drops := append([]domain.WalletDrop(nil), res.Diagnostics.Drops...)
	for _, f := range failures {
		drops = append(drops, domain.WalletDrop{Wallet: f.Wallet, Reason: domain.DropProfileError})
		res.Diagnostics.DropCounts[domain.DropProfileError]++
	}
	sort.SliceStable(drops, func(i, j int) bool { return drops[i].Wallet < drops[j].Wallet })
	res.Diagnostics.Drops = drops
	res.Considered += len(failures)
	return res
}

func qualify(p domain.WalletProfile, pnl domain.PnLDisplay, minProfit float64) (domain.DropReason, bool) {
	if reason, ok := QualifyPnL(pnl, minProfit); !ok {
		return reason, false
	}
	if !p.HasPosition() {
		return domain.DropNoPosition, false
	}
	if p.Position.MarketValue() <= 0 {
		return domain.DropZeroValue, false
	}
	return "", true
}

func canonicalOutcome(m domain.Market, pos domain.OpenPosition) string {
	if pos.OutcomeIndex >= 0 && pos.OutcomeIndex < len(m.Outcomes) {
		return m.Outcomes[pos.OutcomeIndex]
	}
	if i := m.OutcomeIndex(pos.Outcome); i >= 0 {
		return m.Outcomes[i]
	}
	return pos.Outcome
}

// aggregate sums weight per outcome. Every market outcome is listed, plus any
// unmatched outcome a wallet holds. Ordered by share, then market order.
func aggregate(m domain.Market, kept []qualified, total float64) []domain.OutcomeShare {
	byOutcome := map[string]*domain.OutcomeShare{}
	order := map[string]int{}
	var shares []*domain.OutcomeShare
	add := func(name string) *domain.OutcomeShare {
		if s, ok := byOutcome[name]; ok {
			return s
		}
		s := &domain.OutcomeShare{Outcome: name}
		byOutcome[name] = s
		order[name] = len(shares)
		shares = append(shares, s)
		return s
	}
	for _, o := range m.Outcomes {
		add(o)
	}
	for _, q := range kept {
		s := add(q.outcome)
		s.Weight += q.weight
		s.Wallets++
	}

	out := make([]domain.OutcomeShare, 0, len(shares))
	for _, s := range shares {
		if total > 0 {
			s.Share = s.Weight / total
		}
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Share != out[j].Share {
			return out[i].Share > out[j].Share
		}
		return order[out[i].Outcome] < order[out[j].Outcome]
	})
	return out
}

func scoredWallets(kept []qualified, total float64) []domain.ScoredWallet {
	out := make([]domain.ScoredWallet, 0, len(kept))
	for _, q := range kept {
		w := domain.ScoredWallet{
			Address:  q.profile.Address,
			Outcome:  q.outcome,
			Value:    q.profile.Position.MarketValue(),
			Weight:   q.weight,
			PnL:      q.pnl,
			Features: q.features,
		}
		if total > 0 {
			w.Share = q.weight / total
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Address < out[j].Address
	})
	return out
}
