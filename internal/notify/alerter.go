package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// Alerter turns finished analyses into notifications. It satisfies the
// analyzer's observer interface.
type Alerter struct {
	notifier      *Notifier
	minConfidence int
	timeout       time.Duration
	logger        *slog.Logger
}

// NewAlerter creates an Alerter. BUY alerts below minConfidence are dropped.
func NewAlerter(n *Notifier, minConfidence int, timeout time.Duration, logger *slog.Logger) *Alerter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Alerter{
		notifier:      n,
		minConfidence: minConfidence,
		timeout:       timeout,
		logger:        logger.With(slog.String("component", "alerter")),
	}
}

// ObserveAnalysis sends the alert for a, if any. Delivery failures are logged
// and never affect the analysis.
func (al *Alerter) ObserveAnalysis(a domain.Analysis) {
	event, ok := al.classify(a)
	if !ok || !al.notifier.Allows(event) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), al.timeout)
	defer cancel()

	title, message := FormatAlert(a)
	if err := al.notifier.Notify(ctx, event, title, message); err != nil {
		al.logger.Warn("alert not delivered",
			slog.String("run_id", a.RunID),
			slog.String("error", err.Error()),
		)
	}
}

func (al *Alerter) classify(a domain.Analysis) (string, bool) {
	switch {
	case a.Err != nil:
		return EventError, true
	case a.Result.Recommendation.Action == domain.ActionBuy:
		return EventBuy, a.Result.Confidence >= al.minConfidence
	default:
		return EventStayOut, true
	}
}

// FormatAlert renders the title and body of the alert for a.
func FormatAlert(a domain.Analysis) (string, string) {
	m := a.Market
	name := m.Question
	if name == "" {
		name = m.Slug
	}
	if a.Err != nil {
		return "polysignal: analysis failed", fmt.Sprintf("%s\n%v", name, a.Err)
	}

	res := a.Result
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", name)
	fmt.Fprintf(&b, "%s, confidence %d/10, %d of %d wallets qualified\n",
		res.Recommendation, res.Confidence, res.Qualified, res.Considered)
	if g := res.Diagnostics.Gate; g != domain.GateNone {
		fmt.Fprintf(&b, "reason: %s\n", g)
	}
	for _, s := range res.Shares {
		fmt.Fprintf(&b, "%s %.1f%% ", s.Outcome, s.Share*100)
	}
	if m.Slug != "" {
		fmt.Fprintf(&b, "\nhttps://polymarket.com/market/%s", m.Slug)
	}
	return "polysignal: " + res.Recommendation.String(), strings.TrimSpace(b.String())
}
