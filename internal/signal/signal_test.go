package signal

import (
	"fmt"
	"testing"
	"time"

	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func binaryMarket() domain.Market {
	return domain.Market{
		Slug:        "will-it-rain",
		ConditionID: "0xc1",
		Outcomes:    []string{"Yes", "No"},
		Status:      domain.MarketStatusActive,
		EndDate:     now.Add(48 * time.Hour),
	}
}

func defaultThresholds() domain.Thresholds {
	return domain.Thresholds{
		MinProfit:           5000,
		MinQualifiedWallets: 5,
		WhaleThreshold:      0.60,
		ConsensusThreshold:  0.62,
	}
}

func ptr(v float64) *float64 { return &v }

func holder(n int, outcomeIdx int, value float64) domain.WalletProfile {
	outcomes := []string{"Yes", "No"}
	return domain.WalletProfile{
		Address:     fmt.Sprintf("0x%040x", n),
		Position:    &domain.OpenPosition{Outcome: outcomes[outcomeIdx], OutcomeIndex: outcomeIdx, Value: value},
		Leaderboard: &domain.LeaderboardRow{PnL: ptr(10000)},
	}
}

func holders(yes, no int) []domain.WalletProfile {
	var out []domain.WalletProfile
	for i := 0; i < yes; i++ {
		out = append(out, holder(i+1, 0, 100))
	}
	for i := 0; i < no; i++ {
		out = append(out, holder(yes+i+1, 1, 100))
	}
	return out
}

func TestEvaluateMarket(t *testing.T) {
	m := binaryMarket()
	assert.True(t, EvaluateMarket(m, now).Passed())

	closed := m
	closed.Status = domain.MarketStatusClosed
	assert.Equal(t, domain.GateMarketClosed, EvaluateMarket(closed, now).Reason)

	inactive := m
	inactive.Status = domain.MarketStatusInactive
	assert.Equal(t, domain.GateMarketInactive, EvaluateMarket(inactive, now).Reason)

	expired := m
	expired.EndDate = now.Add(-time.Minute)
	g := EvaluateMarket(expired, now)
	assert.Equal(t, domain.GateMarketExpired, g.Reason)
	assert.Contains(t, g.Detail, "2025-06-01T11:59:00Z")

	noEnd := m
	noEnd.EndDate = time.Time{}
	assert.True(t, EvaluateMarket(noEnd, now).Passed())
}

func TestGatedResult(t *testing.T) {
	res := GatedResult(binaryMarket(), domain.Gated(domain.GateMarketClosed, "closed"))
	assert.Equal(t, domain.StayOut(), res.Recommendation)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, domain.GateMarketClosed, res.Diagnostics.Gate)
	require.Len(t, res.Shares, 2)
	assert.Zero(t, res.Shares[0].Share)
}

func TestResolvePnL(t *testing.T) {
	closes := []domain.ClosedPosition{{RealizedPnL: 120}, {RealizedPnL: -20}}

	lb := ResolvePnL(domain.WalletProfile{Closed: closes}, &domain.LeaderboardRow{PnL: ptr(12345)})
	assert.Equal(t, domain.PnLLeaderboard, lb.Source())
	assert.Equal(t, "[LB] 12,345", lb.String())

	rec := ResolvePnL(domain.WalletProfile{Closed: closes}, &domain.LeaderboardRow{})
	assert.Equal(t, domain.PnLInferred, rec.Source())
	v, ok := rec.Value()
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	unk := ResolvePnL(domain.WalletProfile{}, nil)
	assert.Equal(t, domain.PnLUnknown, unk.Source())
	assert.Equal(t, domain.UnknownPnLGlyph, unk.String())
	_, ok = unk.Value()
	assert.False(t, ok)
}

func TestQualifyPnL(t *testing.T) {
	cases := []struct {
		name   string
		pnl    domain.PnLDisplay
		min    float64
		ok     bool
		reason domain.DropReason
	}{
		{"unknown with min", domain.UnknownPnL(), 5000, false, domain.DropPnLUnknown},
		{"unknown without min", domain.UnknownPnL(), 0, true, ""},
		{"leaderboard at min", domain.LeaderboardPnL(5000), 5000, true, ""},
		{"leaderboard below", domain.LeaderboardPnL(4999), 5000, false, domain.DropPnLBelowMinProfit},
		{"inferred below", domain.InferredPnL(100), 5000, false, domain.DropPnLBelowMinProfit},
		{"inferred above", domain.InferredPnL(9000), 5000, true, ""},
		{"negative without min", domain.LeaderboardPnL(-50), 0, false, domain.DropPnLBelowMinProfit},
	}
	for _, tc := range cases {
		reason, ok := QualifyPnL(tc.pnl, tc.min)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.reason, reason, tc.name)
	}
}

func TestDeriveFeatures(t *testing.T) {
	p := domain.WalletProfile{
		Position: &domain.OpenPosition{Value: 300},
		Closed: []domain.ClosedPosition{
			{RealizedPnL: 50, TotalBought: 100, ClosedAt: now.Add(-48 * time.Hour)},
			{RealizedPnL: -10, TotalBought: 200, ClosedAt: now.Add(-96 * time.Hour)},
			{RealizedPnL: 0, TotalBought: 0, ClosedAt: now.Add(-200 * time.Hour)},
			{RealizedPnL: 30, TotalBought: 300, ClosedAt: now.Add(-300 * time.Hour)},
		},
	}
	f := DeriveFeatures(p, now)

	require.NotNil(t, f.WinRate)
	assert.InDelta(t, 2.0/3.0, *f.WinRate, 1e-9)
	require.NotNil(t, f.DaysSinceClose)
	assert.InDelta(t, 2.0, *f.DaysSinceClose, 1e-9)
	require.NotNil(t, f.Conviction)
	assert.InDelta(t, 1.5, *f.Conviction, 1e-9) // 300 / median(100,200,300)
	assert.Equal(t, 70.0, f.RecentPnL)
	assert.Equal(t, 4, f.RecentCloses)
	assert.Nil(t, f.LeaderboardPnL)
}

func TestDeriveFeaturesEvenCountUsesUpperMiddle(t *testing.T) {
	p := domain.WalletProfile{
		Position: &domain.OpenPosition{Value: 400},
		Closed: []domain.ClosedPosition{
			{RealizedPnL: 1, TotalBought: 100, ClosedAt: now.Add(-time.Hour)},
			{RealizedPnL: 1, TotalBought: 400, ClosedAt: now.Add(-time.Hour)},
			{RealizedPnL: 1, TotalBought: 200, ClosedAt: now.Add(-time.Hour)},
			{RealizedPnL: 1, TotalBought: 800, ClosedAt: now.Add(-time.Hour)},
		},
	}
	f := DeriveFeatures(p, now)
	require.NotNil(t, f.Conviction)
	assert.InDelta(t, 1.0, *f.Conviction, 1e-9) // 400 / sorted[4/2]
}

func TestDeriveFeaturesRecencyInWholeDays(t *testing.T) {
	last := now.Add(-50 * time.Hour)
	p := domain.WalletProfile{Closed: []domain.ClosedPosition{{RealizedPnL: 5, ClosedAt: last}}}

	early := DeriveFeatures(p, now)
	later := DeriveFeatures(p, now.Add(20*time.Minute))
	require.NotNil(t, early.DaysSinceClose)
	assert.Equal(t, 2.0, *early.DaysSinceClose)
	assert.Equal(t, early, later)
	assert.Equal(t, WalletWeight(early), WalletWeight(later))
}

func TestDeriveFeaturesIgnoresFutureCloses(t *testing.T) {
	p := domain.WalletProfile{Closed: []domain.ClosedPosition{{RealizedPnL: 1, ClosedAt: now.Add(time.Hour)}}}
	f := DeriveFeatures(p, now)
	assert.Nil(t, f.DaysSinceClose)
}

func TestWalletWeightMonotonic(t *testing.T) {
	base := domain.WalletFeatures{MarketValue: 100}
	defaultW := WalletWeight(base)
	// 1 * (0.5+0.5) * 0.75 * 1 * 10
	assert.InDelta(t, 7.5, defaultW, 1e-9)

	low, high := base, base
	low.WinRate, high.WinRate = ptr(0.2), ptr(0.9)
	assert.Greater(t, WalletWeight(high), WalletWeight(low))

	stale, fresh := base, base
	stale.DaysSinceClose, fresh.DaysSinceClose = ptr(120), ptr(1)
	assert.Greater(t, WalletWeight(fresh), WalletWeight(stale))

	rich := base
	rich.LeaderboardPnL = ptr(1e9)
	assert.InDelta(t, 5*defaultW, WalletWeight(rich), 1e-9)

	loser := base
	loser.LeaderboardPnL = ptr(-1e6)
	assert.InDelta(t, defaultW, WalletWeight(loser), 1e-9)

	tiny := domain.WalletFeatures{MarketValue: 0.01}
	assert.Greater(t, WalletWeight(tiny), 0.0)
}

func TestScoreConsensusBuy(t *testing.T) {
	res := Score(binaryMarket(), holders(5, 0), defaultThresholds(), now)

	assert.Equal(t, domain.Buy("Yes"), res.Recommendation)
	assert.Equal(t, 10, res.Confidence)
	assert.Equal(t, 5, res.Qualified)
	assert.Equal(t, 5, res.Considered)
	assert.Empty(t, res.Diagnostics.Gate)
	require.Len(t, res.Shares, 2)
	assert.Equal(t, "Yes", res.Shares[0].Outcome)
	assert.InDelta(t, 1.0, res.Shares[0].Share, 1e-12)
	assert.Equal(t, "No", res.Shares[1].Outcome)
	assert.Len(t, res.Wallets, 5)
}

func TestScoreSharesSumToOne(t *testing.T) {
	profiles := holders(4, 3)
	profiles[0].Position.Value = 5000
	profiles[5].Closed = []domain.ClosedPosition{{RealizedPnL: 10, TotalBought: 20, ClosedAt: now.Add(-time.Hour)}}

	res := Score(binaryMarket(), profiles, defaultThresholds(), now)
	sum := 0.0
	for _, s := range res.Shares {
		sum += s.Share
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestScoreOrderIndependent(t *testing.T) {
	profiles := holders(6, 2)
	profiles[2].Position.Value = 900
	profiles[7].Leaderboard = nil
	profiles[7].Closed = []domain.ClosedPosition{{RealizedPnL: 7000, TotalBought: 50, ClosedAt: now.Add(-72 * time.Hour)}}

	reversed := make([]domain.WalletProfile, len(profiles))
	for i, p := range profiles {
		reversed[len(profiles)-1-i] = p
	}
	assert.Equal(t, Score(binaryMarket(), profiles, defaultThresholds(), now),
		Score(binaryMarket(), reversed, defaultThresholds(), now))
}

func TestScoreDropReasons(t *testing.T) {
	unknown := holder(1, 0, 100)
	unknown.Leaderboard = nil
	poor := holder(2, 0, 100)
	poor.Leaderboard = &domain.LeaderboardRow{PnL: ptr(100)}
	flat := holder(3, 0, 100)
	flat.Position = nil
	empty := holder(4, 0, 0)

	profiles := append(holders(0, 0), unknown, poor, flat, empty)
	profiles = append(profiles, holder(10, 0, 100))

	res := Score(binaryMarket(), profiles, defaultThresholds(), now)
	assert.Equal(t, 1, res.Qualified)
	assert.Equal(t, 5, res.Considered)
	assert.Equal(t, []domain.WalletDrop{
		{Wallet: unknown.Address, Reason: domain.DropPnLUnknown},
		{Wallet: poor.Address, Reason: domain.DropPnLBelowMinProfit},
		{Wallet: flat.Address, Reason: domain.DropNoPosition},
		{Wallet: empty.Address, Reason: domain.DropZeroValue},
	}, res.Diagnostics.Drops)
	assert.Equal(t, 1, res.Diagnostics.DropCounts[domain.DropPnLUnknown])
	assert.Equal(t, domain.GateInsufficientSample, res.Diagnostics.Gate)
	assert.Equal(t, domain.StayOut(), res.Recommendation)
	assert.Zero(t, res.Confidence)
}

func TestScoreUnknownPnLEligibleWithoutMinProfit(t *testing.T) {
	profiles := holders(5, 0)
	for i := range profiles {
		profiles[i].Leaderboard = nil
	}
	th := defaultThresholds()

	assert.Equal(t, 0, Score(binaryMarket(), profiles, th, now).Qualified)

	th.MinProfit = 0
	res := Score(binaryMarket(), profiles, th, now)
	assert.Equal(t, 5, res.Qualified)
	assert.Equal(t, domain.Buy("Yes"), res.Recommendation)
	for _, w := range res.Wallets {
		assert.Equal(t, domain.UnknownPnLGlyph, w.PnL.String())
	}
}

func TestScoreNoQualifiedWallets(t *testing.T) {
	th := defaultThresholds()
	th.MinQualifiedWallets = 0
	res := Score(binaryMarket(), nil, th, now)
	assert.Equal(t, domain.GateNoQualifiedWallets, res.Diagnostics.Gate)
	assert.Equal(t, domain.StayOut(), res.Recommendation)
}

func TestScoreWhaleDominance(t *testing.T) {
	profiles := holders(3, 2)
	profiles[0].Position.Value = 1e6

	res := Score(binaryMarket(), profiles, defaultThresholds(), now)
	assert.Equal(t, domain.GateWhaleDominance, res.Diagnostics.Gate)
	assert.Equal(t, domain.StayOut(), res.Recommendation)
	assert.Zero(t, res.Confidence)
	assert.GreaterOrEqual(t, res.Diagnostics.TopWalletShare, 0.60)
	assert.Equal(t, profiles[0].Address, res.Wallets[0].Address)
}

func TestScoreInsufficientSampleBeforeWhale(t *testing.T) {
	profiles := holders(2, 0)
	profiles[0].Position.Value = 1e6
	res := Score(binaryMarket(), profiles, defaultThresholds(), now)
	assert.Equal(t, domain.GateInsufficientSample, res.Diagnostics.Gate)
}

func TestScoreNoConsensus(t *testing.T) {
	res := Score(binaryMarket(), holders(3, 2), defaultThresholds(), now)
	assert.Equal(t, domain.GateNoConsensus, res.Diagnostics.Gate)
	assert.InDelta(t, 0.6, res.Shares[0].Share, 1e-9)
	assert.Equal(t, domain.StayOut(), res.Recommendation)
}

func TestScoreTieIsNoConsensus(t *testing.T) {
	th := defaultThresholds()
	th.ConsensusThreshold = 0.4
	res := Score(binaryMarket(), holders(3, 3), th, now)
	assert.Equal(t, domain.GateNoConsensus, res.Diagnostics.Gate)
	assert.Contains(t, res.Diagnostics.GateDetail, "tied")
	// ties keep market order
	assert.Equal(t, "Yes", res.Shares[0].Outcome)
}

func TestScoreConfidenceGrowsWithMargin(t *testing.T) {
	narrow := Score(binaryMarket(), holders(6, 1), defaultThresholds(), now)
	wide := Score(binaryMarket(), holders(12, 1), defaultThresholds(), now)

	require.Equal(t, domain.ActionBuy, narrow.Recommendation.Action)
	require.Equal(t, domain.ActionBuy, wide.Recommendation.Action)
	assert.Equal(t, 7, narrow.Confidence)
	assert.Greater(t, wide.Confidence, narrow.Confidence)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0, Confidence(-0.2))
	assert.Equal(t, 0, Confidence(0.04))
	assert.Equal(t, 3, Confidence(0.3))
	assert.Equal(t, 10, Confidence(1))
	assert.Equal(t, 10, Confidence(1.4))
}

func TestScoreUnmatchedOutcome(t *testing.T) {
	profiles := holders(5, 0)
	profiles[0].Position = &domain.OpenPosition{Outcome: "Maybe", OutcomeIndex: -1, Value: 100}
	res := Score(binaryMarket(), profiles, defaultThresholds(), now)
	require.Len(t, res.Shares, 3)
	assert.Equal(t, "Maybe", res.Shares[1].Outcome)
}

func TestWithFailures(t *testing.T) {
	res := Score(binaryMarket(), holders(5, 0), defaultThresholds(), now)
	res = WithFailures(res, []domain.WalletFailure{{Wallet: "0x0", Cause: "boom"}})
	assert.Equal(t, 6, res.Considered)
	assert.Equal(t, 1, res.Diagnostics.DropCounts[domain.DropProfileError])
	require.Len(t, res.Diagnostics.Drops, 1)
	assert.Equal(t, "0x0", res.Diagnostics.Drops[0].Wallet)
}
