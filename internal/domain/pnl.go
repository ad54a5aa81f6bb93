package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PnLSource is the provenance tag of a displayed PnL figure.
type PnLSource string

const (
	PnLLeaderboard PnLSource = "LB"
	PnLInferred    PnLSource = "REC"
	PnLUnknown     PnLSource = "UNK"
)

// UnknownPnLGlyph is what an unknown PnL renders as.
const UnknownPnLGlyph = "—"

// PnLDisplay is a PnL figure together with where it came from. The zero
// value is Unknown. Unknown never carries a value.
type PnLDisplay struct {
	source PnLSource
	value  float64
}

// LeaderboardPnL returns a display sourced from the all-time leaderboard.
func LeaderboardPnL(v float64) PnLDisplay {
	return PnLDisplay{source: PnLLeaderboard, value: v}
}

// InferredPnL returns a display estimated from scanned closed positions.
func InferredPnL(v float64) PnLDisplay {
	return PnLDisplay{source: PnLInferred, value: v}
}

// UnknownPnL returns the unknown display.
func UnknownPnL() PnLDisplay {
	return PnLDisplay{source: PnLUnknown}
}

// Source returns the provenance tag.
func (p PnLDisplay) Source() PnLSource {
	if p.source == "" {
		return PnLUnknown
	}
	return p.source
}

// Value returns the numeric value and whether one is known.
func (p PnLDisplay) Value() (float64, bool) {
	if p.Source() == PnLUnknown {
		return 0, false
	}
	return p.value, true
}

// IsKnown reports whether the display carries a value.
func (p PnLDisplay) IsKnown() bool {
	return p.Source() != PnLUnknown
}

// String renders "[LB] 12,345", "[REC] -1,020" or "—".
func (p PnLDisplay) String() string {
	v, ok := p.Value()
	if !ok {
		return UnknownPnLGlyph
	}
	return fmt.Sprintf("[%s] %s", p.Source(), FormatMoney(v))
}

type pnlJSON struct {
	Source  PnLSource `json:"source"`
	Value   *float64  `json:"value,omitempty"`
	Display string    `json:"display"`
}

// MarshalJSON keeps the provenance tag. Unknown has no value field.
func (p PnLDisplay) MarshalJSON() ([]byte, error) {
	out := pnlJSON{Source: p.Source(), Display: p.String()}
	if v, ok := p.Value(); ok {
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (p *PnLDisplay) UnmarshalJSON(data []byte) error {
	var in pnlJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Source {
	case PnLLeaderboard, PnLInferred:
		if in.Value == nil {
			return fmt.Errorf("pnl: %s display without value", in.Source)
		}
		*p = PnLDisplay{source: in.Source, value: *in.Value}
	default:
		*p = UnknownPnL()
	}
	return nil
}

// FormatMoney renders v rounded to whole units with thousands separators.
func FormatMoney(v float64) string {
	r := math.Round(v)
	neg := r < 0
	digits := strconv.FormatFloat(math.Abs(r), 'f', 0, 64)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
