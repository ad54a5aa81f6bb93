package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/alanyoungcy/polysignal/internal/cache"
	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayServesFromCache(t *testing.T) {
	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"proxyWallet":"0x1111111111111111111111111111111111111111"}]`))
	})
	store := newMemStore()
	gw := newTestGateway(store)

	stats := NewStats()
	ctx := WithStats(context.Background(), stats)
	params := url.Values{"market": {"0xabc"}, "limit": {"20"}}

	first, err := gw.Fetch(ctx, APIData, srv.URL, "/holders", params)
	require.NoError(t, err)
	second, err := gw.Fetch(ctx, APIData, srv.URL, "/holders", params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, srv.count("/holders"))

	snap := stats.Snapshot()
	assert.Equal(t, 1, snap.HTTPRequests)
	assert.Equal(t, 1, snap.CacheHits)
	assert.Equal(t, 1, snap.CacheMisses)

	key := cache.Key(srv.URL+"/holders", params)
	assert.Equal(t, DefaultDataTTL, store.ttls[key])
}

func TestGatewayUsesPerAPITTL(t *testing.T) {
	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	store := newMemStore()
	gw := newTestGateway(store)

	_, err := gw.Fetch(context.Background(), APIGamma, srv.URL, "/markets", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultGammaTTL, store.ttls[cache.Key(srv.URL+"/markets", nil)])
}

func TestGatewayFailsOpenOnCacheError(t *testing.T) {
	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"1"}`))
	})
	store := newMemStore()
	store.getErr = &domain.CacheError{Op: "get", Cause: errBackend}
	gw := newTestGateway(store)

	body, err := gw.Fetch(context.Background(), APIGamma, srv.URL, "/markets/slug/x", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, string(body))
	assert.Equal(t, 1, srv.count("/markets/slug/x"))
}

func TestGatewayWrapsFetchError(t *testing.T) {
	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	gw := newTestGateway(nil)

	_, err := gw.Fetch(context.Background(), APIData, srv.URL, "/positions", nil)
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "/positions", fe.Endpoint)
	assert.Equal(t, http.StatusForbidden, fe.Status)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestGatewayOptionalCachesNotFound(t *testing.T) {
	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	gw := newTestGateway(newMemStore())

	for i := 0; i < 2; i++ {
		body, err := gw.FetchOptional(context.Background(), APIGamma, srv.URL, "/events/slug/gone", nil)
		require.NoError(t, err)
		assert.Nil(t, body)
	}
	assert.Equal(t, 1, srv.count("/events/slug/gone"))
}

func TestGatewayWithoutCacheAlwaysFetches(t *testing.T) {
	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	gw := newTestGateway(nil)

	for i := 0; i < 3; i++ {
		_, err := gw.Fetch(context.Background(), APIData, srv.URL, "/holders", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, srv.count("/holders"))
}
