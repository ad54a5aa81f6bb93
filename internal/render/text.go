// Package render formats analysis reports for the terminal and for JSON
// consumers.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// PnLLegend explains the PnL provenance tags.
const PnLLegend = "PnL tags: [LB]=leaderboard all-time, [REC]=sum of scanned closes, —=unknown"

// TopWallets is how many wallets the text report lists.
const TopWallets = 10

// Options control the text report.
type Options struct {
	Debug bool
	Color bool
}

type palette struct {
	buy, stay, warn, dim, head *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		buy:  color.New(color.FgGreen, color.Bold),
		stay: color.New(color.FgYellow, color.Bold),
		warn: color.New(color.FgRed),
		dim:  color.New(color.Faint),
		head: color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.buy, p.stay, p.warn, p.dim, p.head} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Text writes the human-readable report.
func Text(w io.Writer, report domain.Report, opts Options) error {
	p := newPalette(opts.Color)
	ew := &errWriter{w: w}

	if report.NeedsSelection {
		writeSelection(ew, report, p)
		return ew.err
	}
	if report.Event != nil && len(report.Analyses) > 1 {
		ew.printf("%s %s (%d markets)\n\n", p.head.Sprint("Event:"), report.Event.Title, len(report.Analyses))
	}
	for i, a := range report.Analyses {
		if i > 0 {
			ew.printf("\n%s\n\n", strings.Repeat("─", 60))
		}
		writeAnalysis(ew, a, opts, p)
	}
	ew.printf("\n%s\n", p.dim.Sprint(PnLLegend))
	return ew.err
}

func writeSelection(ew *errWriter, report domain.Report, p palette) {
	title := report.Ref
	if report.Event != nil && report.Event.Title != "" {
		title = report.Event.Title
	}
	ew.printf("%s %s\n", p.head.Sprint("Event:"), title)
	ew.printf("This event has %d markets. Re-run with --market-index N or --all.\n\n", len(report.Candidates))

	tw := tabwriter.NewWriter(ew, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tSLUG\tSTATUS\tQUESTION")
	for i, m := range report.Candidates {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, m.Slug, m.Status, m.Question)
	}
	ew.check(tw.Flush())
}

func writeAnalysis(ew *errWriter, a domain.Analysis, opts Options, p palette) {
	m := a.Market
	question := m.Question
	if question == "" {
		question = m.Slug
	}
	ew.printf("%s %s\n", p.head.Sprint("Market:"), question)
	ew.printf("Slug:    %s\n", m.Slug)
	if m.ConditionID != "" {
		ew.printf("Cond:    %s\n", m.ConditionID)
	}
	ew.printf("Outcomes: %s\n", outcomesLine(m))
	status := string(m.Status)
	if !m.EndDate.IsZero() {
		status += ", ends " + m.EndDate.UTC().Format("2006-01-02 15:04 MST")
	}
	ew.printf("Status:  %s\n\n", status)

	if a.Err != nil {
		ew.printf("%s %s\n", p.warn.Sprint("Error:"), a.Err)
		if opts.Debug {
			writeDebug(ew, a)
		}
		return
	}

	res := a.Result
	rec := res.Recommendation.String()
	if res.Recommendation.Action == domain.ActionBuy {
		rec = p.buy.Sprint(rec)
	} else {
		rec = p.stay.Sprint(rec)
	}
	ew.printf("Recommendation: %s   Confidence: %d/10\n", rec, res.Confidence)
	ew.printf("Wallets: %d qualified / %d considered\n", res.Qualified, res.Considered)
	if res.Diagnostics.Gate != domain.GateNone {
		ew.printf("Reason:  %s", res.Diagnostics.Gate)
		if res.Diagnostics.GateDetail != "" {
			ew.printf(" (%s)", res.Diagnostics.GateDetail)
		}
		ew.printf("\n")
	}

	if res.Qualified > 0 {
		ew.printf("\n%s\n", p.head.Sprint("Smart-money distribution:"))
		tw := tabwriter.NewWriter(ew, 0, 4, 2, ' ', 0)
		for _, s := range res.Shares {
			fmt.Fprintf(tw, "  %s\t%5.1f%%\t%d wallets\n", s.Outcome, s.Share*100, s.Wallets)
		}
		ew.check(tw.Flush())

		ew.printf("\n%s\n", p.head.Sprint("Top wallets:"))
		tw = tabwriter.NewWriter(ew, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  WALLET\tOUTCOME\tVALUE\tWEIGHT\tPNL")
		for i, sw := range res.Wallets {
			if i == TopWallets {
				break
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%5.1f%%\t%s\n",
				sw.Address, sw.Outcome, domain.FormatMoney(sw.Value), sw.Share*100, sw.PnL)
		}
		ew.check(tw.Flush())
	}

	if opts.Debug {
		writeDebug(ew, a)
	}
}

func writeDebug(ew *errWriter, a domain.Analysis) {
	s := a.Stats
	d := a.Result.Diagnostics
	ew.printf("\nDebug:\n")
	ew.printf("  run_id:   %s\n", a.RunID)
	ew.printf("  requests: %d http, %d cache hits, %d cache misses\n", s.HTTPRequests, s.CacheHits, s.CacheMisses)
	ew.printf("  timing:   http %s, elapsed %s\n", s.HTTPTime.Round(time.Millisecond), s.Elapsed.Round(time.Millisecond))
	if len(s.ByHost) > 0 {
		ew.printf("  by host:  %s\n", joinCounts(s.ByHost))
	}
	gate := string(d.Gate)
	if gate == "" {
		gate = "none"
	}
	ew.printf("  gate:     %s\n", gate)
	ew.printf("  margin:   %.3f  top wallet share: %.3f\n", d.Margin, d.TopWalletShare)
	if len(d.DropCounts) > 0 {
		counts := make(map[string]int, len(d.DropCounts))
		for k, v := range d.DropCounts {
			counts[string(k)] = v
		}
		ew.printf("  drops:    %s\n", joinCounts(counts))
	}
	for _, f := range a.Failures {
		ew.printf("  failed:   %s: %s\n", f.Wallet, f.Cause)
	}
}

func outcomesLine(m domain.Market) string {
	parts := make([]string, 0, len(m.Outcomes))
	for i, o := range m.Outcomes {
		if i < len(m.Prices) {
			parts = append(parts, fmt.Sprintf("%s %.1f%%", o, m.Prices[i]*100))
		} else {
			parts = append(parts, o)
		}
	}
	return strings.Join(parts, " | ")
}

func joinCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

// errWriter keeps the first write error so callers check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(b)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}

func (e *errWriter) check(err error) {
	if e.err == nil {
		e.err = err
	}
}
