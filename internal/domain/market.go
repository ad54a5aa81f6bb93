package domain

import (
	"strings"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusInactive MarketStatus = "inactive"
)

// Market is a resolved Polymarket market. Outcomes and Prices are parallel.
type Market struct {
	ID          string       `json:"id,omitempty"`
	ConditionID string       `json:"condition_id"`
	Slug        string       `json:"slug"`
	Question    string       `json:"question"`
	EventID     string       `json:"event_id,omitempty"`
	EventSlug   string       `json:"event_slug,omitempty"`
	Outcomes    []string     `json:"outcomes"`
	Prices      []float64    `json:"prices,omitempty"`
	Status      MarketStatus `json:"status"`
	EndDate     time.Time    `json:"end_date,omitempty"`
}

// OutcomeIndex returns the index of name in m.Outcomes using a
// case-insensitive match, or -1.
func (m Market) OutcomeIndex(name string) int {
	for i, o := range m.Outcomes {
		if strings.EqualFold(strings.TrimSpace(o), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// Merge fills empty fields of m from other. Fields already set on m win.
func (m Market) Merge(other Market) Market {
	if m.ID == "" {
		m.ID = other.ID
	}
	if m.ConditionID == "" {
		m.ConditionID = other.ConditionID
	}
	if m.Slug == "" {
		m.Slug = other.Slug
	}
	if m.Question == "" {
		m.Question = other.Question
	}
	if m.EventID == "" {
		m.EventID = other.EventID
	}
	if m.EventSlug == "" {
		m.EventSlug = other.EventSlug
	}
	if len(m.Outcomes) == 0 {
		m.Outcomes = other.Outcomes
	}
	if len(m.Prices) == 0 {
		m.Prices = other.Prices
	}
	if m.Status == "" {
		m.Status = other.Status
	}
	if m.EndDate.IsZero() {
		m.EndDate = other.EndDate
	}
	return m
}

// Event groups one or more related markets.
type Event struct {
	ID      string   `json:"id"`
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	Markets []Market `json:"markets"`
}

// RefKind identifies what a user-supplied reference points at.
type RefKind string

const (
	RefMarket   RefKind = "market"
	RefEvent    RefKind = "event"
	RefCategory RefKind = "category"
)

// Ref is a parsed market/event reference.
type Ref struct {
	Kind RefKind
	Slug string
	// MarketSlug is set when an event URL also names one of its markets.
	MarketSlug string
	Raw        string
}
