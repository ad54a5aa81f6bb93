package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

func sampleAnalysis() domain.Analysis {
	market := domain.Market{
		Slug:        "rain",
		ConditionID: "0xc1",
		Question:    "Will it rain?",
		Outcomes:    []string{"Yes", "No"},
		Prices:      []float64{0.7, 0.3},
		Status:      domain.MarketStatusActive,
		EndDate:     time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	var wallets []domain.ScoredWallet
	for i := 0; i < 12; i++ {
		pnl := domain.LeaderboardPnL(float64(10000 + i))
		switch i {
		case 1:
			pnl = domain.InferredPnL(250)
		case 2:
			pnl = domain.UnknownPnL()
		}
		wallets = append(wallets, domain.ScoredWallet{
			Address: fmt.Sprintf("0x%040x", i+1),
			Outcome: "Yes",
			Value:   1500,
			Share:   1.0 / 12,
			PnL:     pnl,
		})
	}
	return domain.Analysis{
		RunID:  "run-1",
		Market: market,
		Result: domain.ScoringResult{
			Shares: []domain.OutcomeShare{
				{Outcome: "Yes", Share: 1, Wallets: 12},
				{Outcome: "No", Share: 0},
			},
			Recommendation: domain.Buy("Yes"),
			Confidence:     10,
			Qualified:      12,
			Considered:     15,
			Wallets:        wallets,
			Diagnostics: domain.Diagnostics{
				Margin:     1,
				DropCounts: map[domain.DropReason]int{domain.DropPnLUnknown: 2, domain.DropProfileError: 1},
			},
		},
		Failures: []domain.WalletFailure{{Wallet: "0xdead", Cause: "positions: HTTP 500"}},
		Stats:    domain.RequestStats{HTTPRequests: 31, CacheHits: 4, CacheMisses: 31, ByHost: map[string]int{"data-api": 29, "gamma-api": 2}},
	}
}

func TestTextReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, domain.Report{Analyses: []domain.Analysis{sampleAnalysis()}}, Options{}))
	out := buf.String()

	assert.Contains(t, out, "Market: Will it rain?")
	assert.Contains(t, out, "Outcomes: Yes 70.0% | No 30.0%")
	assert.Contains(t, out, "Recommendation: BUY Yes   Confidence: 10/10")
	assert.Contains(t, out, "Wallets: 12 qualified / 15 considered")
	assert.Contains(t, out, "[LB] 10,000")
	assert.Contains(t, out, "[REC] 250")
	assert.Contains(t, out, "  —\n")
	assert.Contains(t, out, PnLLegend)
	assert.NotContains(t, out, "Debug:")
	assert.NotContains(t, out, "\x1b[", "no escapes when color is off")

	// only the top 10 wallets are listed
	assert.Contains(t, out, fmt.Sprintf("0x%040x", 10))
	assert.NotContains(t, out, fmt.Sprintf("0x%040x", 11))
}

func TestTextReportDebug(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, domain.Report{Analyses: []domain.Analysis{sampleAnalysis()}}, Options{Debug: true}))
	out := buf.String()

	assert.Contains(t, out, "requests: 31 http, 4 cache hits, 31 cache misses")
	assert.Contains(t, out, "by host:  data-api=29, gamma-api=2")
	assert.Contains(t, out, "drops:    pnl_unknown=2, profile_error=1")
	assert.Contains(t, out, "failed:   0xdead: positions: HTTP 500")
	assert.Contains(t, out, "gate:     none")
}

func TestTextReportStayOut(t *testing.T) {
	a := sampleAnalysis()
	a.Result = domain.ScoringResult{
		Recommendation: domain.StayOut(),
		Diagnostics: domain.Diagnostics{
			Gate:       domain.GateMarketClosed,
			GateDetail: "market is closed",
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, domain.Report{Analyses: []domain.Analysis{a}}, Options{}))
	out := buf.String()
	assert.Contains(t, out, "Recommendation: STAY OUT   Confidence: 0/10")
	assert.Contains(t, out, "Reason:  market_closed (market is closed)")
	assert.NotContains(t, out, "Top wallets")
}

func TestTextReportError(t *testing.T) {
	a := sampleAnalysis()
	a.Err = errors.New("fetch /holders: HTTP 502")
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, domain.Report{Analyses: []domain.Analysis{a}}, Options{}))
	assert.Contains(t, buf.String(), "Error: fetch /holders: HTTP 502")
	assert.NotContains(t, buf.String(), "Recommendation")
}

func TestTextReportSelection(t *testing.T) {
	report := domain.Report{
		Ref:            "event:fed",
		Event:          &domain.Event{Title: "Fed decision"},
		NeedsSelection: true,
		Candidates: []domain.Market{
			{Slug: "cut", Status: domain.MarketStatusActive, Question: "Cut?"},
			{Slug: "hold", Status: domain.MarketStatusClosed, Question: "Hold?"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, report, Options{}))
	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "Event: Fed decision", lines[0])
	assert.Contains(t, buf.String(), "--market-index")
	assert.Regexp(t, `1\s+hold\s+closed\s+Hold\?`, buf.String())
}

func TestTextReportColor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, domain.Report{Analyses: []domain.Analysis{sampleAnalysis()}}, Options{Color: true}))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestJSONKeepsPnLTags(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, domain.Report{Ref: "rain", Analyses: []domain.Analysis{sampleAnalysis()}}))

	var decoded struct {
		Analyses []struct {
			Result struct {
				Wallets []struct {
					PnL map[string]any `json:"pnl"`
				} `json:"wallets"`
			} `json:"result"`
		} `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	w := decoded.Analyses[0].Result.Wallets
	assert.Equal(t, "LB", w[0].PnL["source"])
	assert.Equal(t, "REC", w[1].PnL["source"])
	assert.Equal(t, "UNK", w[2].PnL["source"])
	_, hasValue := w[2].PnL["value"]
	assert.False(t, hasValue)
	assert.Equal(t, "—", w[2].PnL["display"])
}
