package polymarket

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/alanyoungcy/polysignal/internal/cache"
	"github.com/alanyoungcy/polysignal/internal/domain"
)

// API selects which upstream a request belongs to. Each API has its own TTL.
type API string

const (
	APIGamma API = "gamma"
	APIData  API = "data"
)

const (
	DefaultGammaTTL = 6 * time.Hour
	DefaultDataTTL  = 5 * time.Minute
)

// TTLs holds the cache lifetime per API.
type TTLs struct {
	Gamma time.Duration
	Data  time.Duration
}

// DefaultTTLs returns 6h for Gamma and 5m for Data.
func DefaultTTLs() TTLs {
	return TTLs{Gamma: DefaultGammaTTL, Data: DefaultDataTTL}
}

func (t TTLs) For(api API) time.Duration {
	if api == APIGamma {
		return t.Gamma
	}
	return t.Data
}

var nullPayload = []byte("null")

// Gateway is the cache-first fetch path shared by GammaClient and
// DataClient. Cache failures are logged and treated as misses.
type Gateway struct {
	fetcher   Fetcher
	store     domain.ResponseCache
	ttls      TTLs
	observers []Observer
	logger    *slog.Logger
}

// NewGateway creates a Gateway. A nil store disables caching.
func NewGateway(fetcher Fetcher, store domain.ResponseCache, ttls TTLs, logger *slog.Logger, observers ...Observer) *Gateway {
	if store == nil {
		store = cache.Nop{}
	}
	return &Gateway{
		fetcher:   fetcher,
		store:     store,
		ttls:      ttls,
		observers: observers,
		logger:    logger.With(slog.String("component", "gateway")),
	}
}

// Fetch returns the body of GET baseURL+path?params, from cache when a live
// entry exists. Failures are returned as *domain.FetchError.
func (g *Gateway) Fetch(ctx context.Context, api API, baseURL, path string, params url.Values) ([]byte, error) {
	return g.fetch(ctx, api, baseURL, path, params, false)
}

// FetchOptional is Fetch for endpoints where 404 means "absent". A 404 is
// cached as null and reported as (nil, nil).
func (g *Gateway) FetchOptional(ctx context.Context, api API, baseURL, path string, params url.Values) ([]byte, error) {
	return g.fetch(ctx, api, baseURL, path, params, true)
}

func (g *Gateway) fetch(ctx context.Context, api API, baseURL, path string, params url.Values, optional bool) ([]byte, error) {
	endpoint := baseURL + path
	key := cache.Key(endpoint, params)
	ttl := g.ttls.For(api)

	payload, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.logger.WarnContext(ctx, "gateway: cache read failed, fetching live",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		ok = false
	}
	g.observeCache(ctx, api, ok)
	if ok {
		if bytes.Equal(payload, nullPayload) && optional {
			return nil, nil
		}
		return payload, nil
	}

	target := endpoint
	if encoded := encodeParams(params); encoded != "" {
		target += "?" + encoded
	}

	resp, err := g.fetcher.Get(ctx, target)
	g.observeRequest(ctx, api, target, resp, err)
	if err != nil {
		if optional && errors.Is(err, domain.ErrNotFound) {
			g.put(ctx, key, nullPayload, ttl)
			return nil, nil
		}
		return nil, &domain.FetchError{Endpoint: path, Status: statusOf(err), Cause: err}
	}

	g.put(ctx, key, resp.Body, ttl)
	return resp.Body, nil
}

func (g *Gateway) put(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if err := g.store.Put(ctx, key, payload, ttl); err != nil {
		g.logger.WarnContext(ctx, "gateway: cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (g *Gateway) observeCache(ctx context.Context, api API, hit bool) {
	if s := StatsFrom(ctx); s != nil {
		s.ObserveCache(api, hit)
	}
	for _, o := range g.observers {
		o.ObserveCache(api, hit)
	}
}

func (g *Gateway) observeRequest(ctx context.Context, api API, target string, resp Response, err error) {
	host := target
	if u, perr := url.Parse(target); perr == nil {
		host = u.Host
	}
	status := resp.Status
	if err != nil {
		status = statusOf(err)
	}
	if s := StatsFrom(ctx); s != nil {
		s.ObserveRequest(api, host, status, resp.Duration)
	}
	for _, o := range g.observers {
		o.ObserveRequest(api, host, status, resp.Duration)
	}
}

// encodeParams encodes params with empty values dropped, matching cache.Key.
func encodeParams(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	clean := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				clean.Add(k, v)
			}
		}
	}
	return clean.Encode()
}
