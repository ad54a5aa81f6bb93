package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// MarketSource is the Gamma API surface the resolver reads.
type MarketSource interface {
	MarketBySlug(ctx context.Context, slug string) (domain.Market, error)
	MarketByConditionID(ctx context.Context, conditionID string) (domain.Market, error)
	EventBySlug(ctx context.Context, slug string) (domain.Event, error)
	EventMarkets(ctx context.Context, eventID string, max int) ([]domain.Market, error)
}

// Selection picks markets out of a multi-market event. Index is 0-based and
// ignored when negative.
type Selection struct {
	Index int
	All   bool
}

// NoSelection selects nothing; a multi-market event needs a choice.
func NoSelection() Selection { return Selection{Index: -1} }

// Resolution is what a reference resolved to.
type Resolution struct {
	Event          *domain.Event
	Markets        []domain.Market
	NeedsSelection bool
	Candidates     []domain.Market
}

// Resolver turns a parsed reference into concrete markets.
type Resolver struct {
	gamma  MarketSource
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(gamma MarketSource, logger *slog.Logger) *Resolver {
	return &Resolver{gamma: gamma, logger: logger.With(slog.String("component", "resolver"))}
}

// Resolve looks up ref and applies sel. Unknown or unsupported references
// are a *domain.ResolutionError; upstream failures are returned as is.
func (r *Resolver) Resolve(ctx context.Context, ref domain.Ref, sel Selection) (Resolution, error) {
	switch ref.Kind {
	case domain.RefCategory:
		return Resolution{}, &domain.ResolutionError{Ref: ref.Raw, Reason: "category references are not supported"}
	case domain.RefEvent:
		ev, err := r.gamma.EventBySlug(ctx, ref.Slug)
		if errors.Is(err, domain.ErrNotFound) {
			return Resolution{}, &domain.ResolutionError{Ref: ref.Raw, Reason: "no event with slug " + ref.Slug, Err: err}
		}
		if err != nil {
			return Resolution{}, fmt.Errorf("resolver: event %s: %w", ref.Slug, err)
		}
		return r.fromEvent(ctx, ref, ev, sel)
	}

	m, err := r.gamma.MarketBySlug(ctx, ref.Slug)
	if err == nil {
		return Resolution{Markets: []domain.Market{m}}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return Resolution{}, fmt.Errorf("resolver: market %s: %w", ref.Slug, err)
	}

	// Slugs pasted without a prefix are often event slugs.
	ev, evErr := r.gamma.EventBySlug(ctx, ref.Slug)
	if errors.Is(evErr, domain.ErrNotFound) {
		return Resolution{}, &domain.ResolutionError{Ref: ref.Raw, Reason: "no market or event with slug " + ref.Slug, Err: err}
	}
	if evErr != nil {
		return Resolution{}, fmt.Errorf("resolver: event %s: %w", ref.Slug, evErr)
	}
	r.logger.DebugContext(ctx, "market slug resolved as event", slog.String("slug", ref.Slug))
	return r.fromEvent(ctx, ref, ev, sel)
}

func (r *Resolver) fromEvent(ctx context.Context, ref domain.Ref, ev domain.Event, sel Selection) (Resolution, error) {
	if len(ev.Markets) == 0 && ev.ID != "" {
		markets, err := r.gamma.EventMarkets(ctx, ev.ID, 0)
		if err != nil {
			return Resolution{}, fmt.Errorf("resolver: event markets %s: %w", ev.Slug, err)
		}
		ev.Markets = markets
	}
	if len(ev.Markets) == 0 {
		return Resolution{}, &domain.ResolutionError{Ref: ref.Raw, Reason: "event has no markets", Err: domain.ErrNoMarkets}
	}
	res := Resolution{Event: &ev}

	if ref.MarketSlug != "" {
		for _, m := range ev.Markets {
			if strings.EqualFold(m.Slug, ref.MarketSlug) {
				res.Markets = []domain.Market{m}
				return res, nil
			}
		}
		return Resolution{}, &domain.ResolutionError{Ref: ref.Raw, Reason: fmt.Sprintf("event %s has no market %s", ev.Slug, ref.MarketSlug)}
	}

	switch {
	case sel.All:
		res.Markets = append([]domain.Market(nil), ev.Markets...)
	case sel.Index >= 0:
		if sel.Index >= len(ev.Markets) {
			return Resolution{}, &domain.ResolutionError{
				Ref:    ref.Raw,
				Reason: fmt.Sprintf("market index %d out of range (event has %d markets)", sel.Index, len(ev.Markets)),
			}
		}
		res.Markets = []domain.Market{ev.Markets[sel.Index]}
	case len(ev.Markets) == 1:
		res.Markets = []domain.Market{ev.Markets[0]}
	default:
		res.NeedsSelection = true
		res.Candidates = ev.Markets
	}
	return res, nil
}

// Complete refreshes m's Gamma metadata and fills a missing conditionId,
// first from /markets/slug and then from the event's market list. A market
// still lacking a conditionId is returned without error.
func (r *Resolver) Complete(ctx context.Context, m domain.Market, ev *domain.Event) (domain.Market, error) {
	if m.ConditionID != "" {
		fresh, err := r.gamma.MarketByConditionID(ctx, m.ConditionID)
		switch {
		case err == nil:
			return fresh.Merge(m), nil
		case errors.Is(err, domain.ErrNotFound):
			return m, nil
		default:
			return m, fmt.Errorf("resolver: refresh %s: %w", m.ConditionID, err)
		}
	}

	if m.Slug != "" {
		bySlug, err := r.gamma.MarketBySlug(ctx, m.Slug)
		switch {
		case err == nil:
			m = bySlug.Merge(m)
		case !errors.Is(err, domain.ErrNotFound):
			r.logger.WarnContext(ctx, "market slug lookup failed",
				slog.String("slug", m.Slug),
				slog.String("error", err.Error()),
			)
		}
		if m.ConditionID != "" {
			return m, nil
		}
	}

	eventID := m.EventID
	if eventID == "" && ev != nil {
		eventID = ev.ID
	}
	if eventID == "" {
		return m, nil
	}
	markets, err := r.gamma.EventMarkets(ctx, eventID, 0)
	if err != nil {
		return m, fmt.Errorf("resolver: event markets %s: %w", eventID, err)
	}
	if match, ok := matchMarket(m, markets); ok {
		r.logger.DebugContext(ctx, "condition id filled from event market list",
			slog.String("slug", m.Slug),
			slog.String("condition_id", match.ConditionID),
		)
		return match.Merge(m), nil
	}
	return m, nil
}

func matchMarket(m domain.Market, candidates []domain.Market) (domain.Market, bool) {
	for _, c := range candidates {
		if c.ConditionID == "" {
			continue
		}
		switch {
		case m.Slug != "" && strings.EqualFold(c.Slug, m.Slug),
			m.ID != "" && c.ID == m.ID,
			m.Question != "" && strings.EqualFold(strings.TrimSpace(c.Question), strings.TrimSpace(m.Question)):
			return c, true
		}
	}
	return domain.Market{}, false
}
