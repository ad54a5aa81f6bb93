package polymarket

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// --------------------------------------------------------------------------
// Lenient scalar decoders
// --------------------------------------------------------------------------

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number, a numeric string, or null (zero).
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, ok := parseNumber(s)
		if !ok {
			*f = 0
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts a JSON string or number ("id": 123 or "id": "123").
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(data))
	return nil
}

// flexTime accepts ISO-8601 strings and unix timestamps in seconds or
// milliseconds, as numbers or numeric strings. Unparseable values are zero.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = flexTime{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexTime(parseTime(s))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*f = flexTime{}
		return nil
	}
	*f = flexTime(unixToTime(v))
	return nil
}

func (f flexTime) Time() time.Time { return time.Time(f) }

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if v, ok := parseNumber(s); ok {
		return unixToTime(v)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// unixToTime treats values above 1e10 as milliseconds.
func unixToTime(v float64) time.Time {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}
	}
	if v > 1e10 {
		return time.UnixMilli(int64(v)).UTC()
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// jsonishList decodes a JSON array, a JSON-encoded array string
// ("[\"Yes\",\"No\"]"), or a single-quoted list string ("['Yes', 'No']").
// Elements may be strings or numbers.
type jsonishList []string

func (l *jsonishList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = parseJSONishString(s)
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = nil
		return nil
	}
	*l = rawToStrings(raw)
	return nil
}

func parseJSONishString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		return rawToStrings(raw)
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return nil
		}
		var out []string
		for _, part := range strings.Split(inner, ",") {
			out = append(out, strings.Trim(strings.TrimSpace(part), `'"`))
		}
		return out
	}
	return nil
}

func rawToStrings(raw []json.RawMessage) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, strings.TrimSpace(string(r)))
	}
	return out
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEventRef is the short event stub embedded in a Gamma market.
type APIEventRef struct {
	ID   flexString `json:"id"`
	Slug string     `json:"slug"`
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            flexString    `json:"id"`
	Question      string        `json:"question"`
	ConditionID   string        `json:"conditionId"`
	Slug          string        `json:"slug"`
	Outcomes      jsonishList   `json:"outcomes"`
	OutcomePrices jsonishList   `json:"outcomePrices"`
	Active        *flexBool     `json:"active"`
	Closed        *flexBool     `json:"closed"`
	EndDate       flexTime      `json:"endDate"`
	EndDateISO    flexTime      `json:"endDateIso"`
	ClosedTime    flexTime      `json:"closedTime"`
	CloseTime     flexTime      `json:"closeTime"`
	ResolvedTime  flexTime      `json:"resolvedTime"`
	Events        []APIEventRef `json:"events"`
}

// APIEvent represents an event as returned by the Polymarket Gamma API.
// An event groups one or more related markets.
type APIEvent struct {
	ID      flexString  `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Markets []APIMarket `json:"markets"`
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIPosition is one row of /positions.
type APIPosition struct {
	ProxyWallet  string     `json:"proxyWallet"`
	ConditionID  string     `json:"conditionId"`
	Outcome      string     `json:"outcome"`
	OutcomeIndex *flexFloat `json:"outcomeIndex"`
	Size         flexFloat  `json:"size"`
	CurrentValue flexFloat  `json:"currentValue"`
	InitialValue flexFloat  `json:"initialValue"`
	TotalBought  flexFloat  `json:"totalBought"`
}

// APIClosedPosition is one row of /closed-positions.
type APIClosedPosition struct {
	ConditionID string    `json:"conditionId"`
	Outcome     string    `json:"outcome"`
	RealizedPnL flexFloat `json:"realizedPnl"`
	TotalBought flexFloat `json:"totalBought"`
	Timestamp   flexTime  `json:"timestamp"`
}

// --------------------------------------------------------------------------
// Conversion helpers: API types -> domain types
// --------------------------------------------------------------------------

// EndTime returns the first populated end-of-market timestamp.
func (m *APIMarket) EndTime() time.Time {
	for _, t := range []flexTime{m.EndDate, m.EndDateISO, m.ClosedTime, m.CloseTime, m.ResolvedTime} {
		if !t.Time().IsZero() {
			return t.Time()
		}
	}
	return time.Time{}
}

// Status maps the closed/active flags. Closed wins; only an explicit
// active=false is inactive.
func (m *APIMarket) Status() domain.MarketStatus {
	if m.Closed != nil && bool(*m.Closed) {
		return domain.MarketStatusClosed
	}
	if m.Active != nil && !bool(*m.Active) {
		return domain.MarketStatusInactive
	}
	return domain.MarketStatusActive
}

// ToDomainMarket converts an APIMarket to a domain.Market.
func (m *APIMarket) ToDomainMarket() domain.Market {
	out := domain.Market{
		ID:          string(m.ID),
		ConditionID: strings.TrimSpace(m.ConditionID),
		Slug:        m.Slug,
		Question:    m.Question,
		Outcomes:    []string(m.Outcomes),
		Prices:      parsePrices(m.OutcomePrices),
		Status:      m.Status(),
		EndDate:     m.EndTime(),
	}
	if len(m.Events) > 0 {
		out.EventID = string(m.Events[0].ID)
		out.EventSlug = m.Events[0].Slug
	}
	return out
}

// ToDomainEvent converts an APIEvent to a domain.Event. Markets inherit the
// event id and slug.
func (e *APIEvent) ToDomainEvent() domain.Event {
	ev := domain.Event{
		ID:    string(e.ID),
		Slug:  e.Slug,
		Title: e.Title,
	}
	for i := range e.Markets {
		m := e.Markets[i].ToDomainMarket()
		m.EventID = ev.ID
		m.EventSlug = ev.Slug
		ev.Markets = append(ev.Markets, m)
	}
	return ev
}

// parsePrices converts price strings; values above 1.5 are percentages.
func parsePrices(raw []string) []float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		v, ok := parseNumber(s)
		if !ok {
			return nil
		}
		if v > 1.5 {
			v /= 100
		}
		out = append(out, v)
	}
	return out
}
