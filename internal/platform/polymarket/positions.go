package polymarket

import (
	"strings"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// rowValue is the position's current value, or what was paid for it when the
// upstream reports no current value.
func (p APIPosition) rowValue() float64 {
	v := float64(p.CurrentValue)
	if v <= 0 {
		v = float64(p.TotalBought)
	}
	if v < 0 {
		return 0
	}
	return v
}

// SummarizePositions reduces a wallet's position rows in one market to its
// dominant outcome and total value. It returns nil when no row names an
// outcome with a positive value.
func SummarizePositions(rows []APIPosition, m domain.Market) *domain.OpenPosition {
	var (
		best      *APIPosition
		bestValue float64
		total     float64
	)
	for i := range rows {
		r := &rows[i]
		if m.ConditionID != "" && r.ConditionID != "" && !strings.EqualFold(r.ConditionID, m.ConditionID) {
			continue
		}
		v := r.rowValue()
		total += v
		if strings.TrimSpace(r.Outcome) != "" && v > bestValue {
			best, bestValue = r, v
		}
	}
	if best == nil {
		return nil
	}

	idx := -1
	if best.OutcomeIndex != nil {
		if i := int(*best.OutcomeIndex); i >= 0 && i < len(m.Outcomes) && strings.EqualFold(m.Outcomes[i], best.Outcome) {
			idx = i
		}
	}
	if idx < 0 {
		idx = m.OutcomeIndex(best.Outcome)
	}
	outcome := best.Outcome
	if idx >= 0 {
		outcome = m.Outcomes[idx]
	}
	return &domain.OpenPosition{
		Outcome:      outcome,
		OutcomeIndex: idx,
		Value:        bestValue,
		TotalValue:   total,
	}
}
