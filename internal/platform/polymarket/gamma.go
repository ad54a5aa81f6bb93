package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// DefaultGammaHost is the public Gamma API root.
const DefaultGammaHost = "https://gamma-api.polymarket.com"

// eventMarketsPage bounds one /markets?event_id page.
const eventMarketsPage = 100

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL string
	gw      *Gateway
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, gw *Gateway) *GammaClient {
	if baseURL == "" {
		baseURL = DefaultGammaHost
	}
	return &GammaClient{baseURL: baseURL, gw: gw}
}

// MarketByConditionID returns the market with the given condition id.
// It returns domain.ErrNotFound when Gamma has no such market.
func (g *GammaClient) MarketByConditionID(ctx context.Context, conditionID string) (domain.Market, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)
	params.Set("limit", "1")

	body, err := g.gw.Fetch(ctx, APIGamma, g.baseURL, "/markets", params)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", conditionID, err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode market %s: %w", conditionID, err)
	}
	if len(markets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: market %s: %w", conditionID, domain.ErrNotFound)
	}
	return markets[0].ToDomainMarket(), nil
}

// MarketBySlug returns a market by slug, trying /markets/slug/{slug} and then
// the /markets?slug= query.
func (g *GammaClient) MarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	body, err := g.gw.FetchOptional(ctx, APIGamma, g.baseURL, "/markets/slug/"+url.PathEscape(slug), nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}
	if body != nil {
		var m APIMarket
		if err := json.Unmarshal(body, &m); err != nil {
			return domain.Market{}, fmt.Errorf("polymarket/gamma: decode market %s: %w", slug, err)
		}
		if m.Slug != "" || m.ConditionID != "" {
			return m.ToDomainMarket(), nil
		}
	}

	params := url.Values{}
	params.Set("slug", slug)
	params.Set("limit", "1")
	body, err = g.gw.FetchOptional(ctx, APIGamma, g.baseURL, "/markets", params)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: query market slug %s: %w", slug, err)
	}
	var markets []APIMarket
	if body != nil {
		if err := json.Unmarshal(body, &markets); err != nil {
			return domain.Market{}, fmt.Errorf("polymarket/gamma: decode markets %s: %w", slug, err)
		}
	}
	if len(markets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: market %s: %w", slug, domain.ErrNotFound)
	}
	return markets[0].ToDomainMarket(), nil
}

// EventBySlug returns an event and its embedded markets, trying
// /events/slug/{slug} and then the /events?slug= query.
func (g *GammaClient) EventBySlug(ctx context.Context, slug string) (domain.Event, error) {
	body, err := g.gw.FetchOptional(ctx, APIGamma, g.baseURL, "/events/slug/"+url.PathEscape(slug), nil)
	if err != nil {
		return domain.Event{}, fmt.Errorf("polymarket/gamma: get event by slug %s: %w", slug, err)
	}
	if body != nil {
		var e APIEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return domain.Event{}, fmt.Errorf("polymarket/gamma: decode event %s: %w", slug, err)
		}
		if e.Slug != "" || e.ID != "" {
			return e.ToDomainEvent(), nil
		}
	}

	params := url.Values{}
	params.Set("slug", slug)
	params.Set("limit", "1")
	body, err = g.gw.FetchOptional(ctx, APIGamma, g.baseURL, "/events", params)
	if err != nil {
		return domain.Event{}, fmt.Errorf("polymarket/gamma: query event slug %s: %w", slug, err)
	}
	var events []APIEvent
	if body != nil {
		if err := json.Unmarshal(body, &events); err != nil {
			return domain.Event{}, fmt.Errorf("polymarket/gamma: decode events %s: %w", slug, err)
		}
	}
	if len(events) == 0 {
		return domain.Event{}, fmt.Errorf("polymarket/gamma: event %s: %w", slug, domain.ErrNotFound)
	}
	return events[0].ToDomainEvent(), nil
}

// EventMarkets pages through /markets?event_id= and returns up to max
// markets belonging to the event.
func (g *GammaClient) EventMarkets(ctx context.Context, eventID string, max int) ([]domain.Market, error) {
	if max <= 0 {
		max = 500
	}
	var out []domain.Market
	for offset := 0; offset < max; offset += eventMarketsPage {
		params := url.Values{}
		params.Set("event_id", eventID)
		params.Set("limit", strconv.Itoa(eventMarketsPage))
		params.Set("offset", strconv.Itoa(offset))

		body, err := g.gw.Fetch(ctx, APIGamma, g.baseURL, "/markets", params)
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: get event markets %s: %w", eventID, err)
		}
		var page []APIMarket
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("polymarket/gamma: decode event markets %s: %w", eventID, err)
		}
		for i := range page {
			m := page[i].ToDomainMarket()
			if m.EventID == "" {
				m.EventID = eventID
			}
			out = append(out, m)
		}
		if len(page) < eventMarketsPage {
			break
		}
	}
	return out, nil
}
