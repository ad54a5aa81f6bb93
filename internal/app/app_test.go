package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polysignal/internal/cache"
	sqlitecache "github.com/alanyoungcy/polysignal/internal/cache/sqlite"
	"github.com/alanyoungcy/polysignal/internal/config"
	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/alanyoungcy/polysignal/internal/service"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI serves a closed market and a working leaderboard, and counts Data
// API hits.
type fakeAPI struct {
	*httptest.Server
	dataHits atomic.Int32
}

func newFakeAPI(t *testing.T) *fakeAPI {
	f := &fakeAPI{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/slug/done":
			_, _ = io.WriteString(w, `{"id":"9","slug":"done","question":"Done?","conditionId":"0xd0","outcomes":["Yes","No"],"outcomePrices":["1","0"],"active":true,"closed":true}`)
		case "/markets":
			_, _ = io.WriteString(w, `[]`)
		case "/v1/leaderboard", "/holders", "/positions", "/closed-positions":
			f.dataHits.Add(1)
			_, _ = io.WriteString(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func testConfig(t *testing.T, api *fakeAPI) *config.Config {
	cfg := config.Defaults()
	cfg.Polymarket.GammaHost = api.URL
	cfg.Polymarket.DataHost = api.URL
	cfg.Cache.Dir = t.TempDir()
	cfg.Transport.RPS = 0
	cfg.Transport.MaxAttempts = 1
	return &cfg
}

func TestWireAnalyzesGatedMarket(t *testing.T) {
	api := newFakeAPI(t)
	a := New(testConfig(t, api), discardLogger())
	defer a.Close()

	deps, err := a.Wire(context.Background(), Options{Clock: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	require.NotNil(t, deps.Pruner, "sqlite supports pruning")

	report, err := deps.Analyzer.Analyze(context.Background(), service.Request{Ref: "market:done", Selection: service.NoSelection()})
	require.NoError(t, err)
	require.Len(t, report.Analyses, 1)
	res := report.Analyses[0].Result
	assert.Equal(t, domain.StayOut(), res.Recommendation)
	assert.Equal(t, domain.GateMarketClosed, res.Diagnostics.Gate)
	assert.Zero(t, api.dataHits.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.Analyses.WithLabelValues("STAY_OUT", "market_closed")))

	_, err = os.Stat(filepath.Join(a.Config().Cache.Dir, sqlitecache.FileName))
	assert.NoError(t, err, "disk backend created its database")
}

func TestWireSendsDiscordAlert(t *testing.T) {
	api := newFakeAPI(t)
	var posts atomic.Int32
	var body atomic.Value
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body.Store(string(b))
		posts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := testConfig(t, api)
	cfg.Notify.DiscordWebhookURL = hook.URL
	cfg.Notify.Events = []string{"stay_out"}
	a := New(cfg, discardLogger())
	defer a.Close()

	deps, err := a.Wire(context.Background(), Options{Clock: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	require.NotNil(t, deps.Alerter)

	_, err = deps.Analyzer.Analyze(context.Background(), service.Request{Ref: "market:done", Selection: service.NoSelection()})
	require.NoError(t, err)
	assert.Equal(t, int32(1), posts.Load())
	assert.Contains(t, body.Load(), "STAY OUT")
	assert.Contains(t, body.Load(), "market_closed")
}

func TestNewAlerterNeedsAChannel(t *testing.T) {
	cfg := config.Defaults()
	assert.Nil(t, NewAlerter(&cfg, discardLogger()))

	cfg.Notify.TelegramToken = "tok"
	assert.Nil(t, NewAlerter(&cfg, discardLogger()), "chat id missing")

	cfg.Notify.TelegramChatID = "42"
	assert.NotNil(t, NewAlerter(&cfg, discardLogger()))
}

func TestWireNoCache(t *testing.T) {
	api := newFakeAPI(t)
	a := New(testConfig(t, api), discardLogger())
	defer a.Close()

	deps, err := a.Wire(context.Background(), Options{NoCache: true})
	require.NoError(t, err)
	assert.Equal(t, cache.Nop{}, deps.Store)
	assert.Nil(t, deps.Pruner)
}

// fileAsCacheDir points the disk cache at a regular file so opening it fails.
func fileAsCacheDir(t *testing.T, cfg *config.Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	cfg.Cache.Dir = path
}

func TestWireNoCacheDoesNotOpenBackend(t *testing.T) {
	api := newFakeAPI(t)
	cfg := testConfig(t, api)
	fileAsCacheDir(t, cfg)
	a := New(cfg, discardLogger())
	defer a.Close()

	deps, err := a.Wire(context.Background(), Options{NoCache: true, Clock: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	assert.NoError(t, deps.CacheErr)
	assert.Equal(t, cache.Nop{}, deps.Store)

	report, err := deps.Analyzer.Analyze(context.Background(), service.Request{Ref: "market:done", Selection: service.NoSelection()})
	require.NoError(t, err)
	assert.False(t, report.Failed())
}

func TestWireFallsBackWhenCacheUnavailable(t *testing.T) {
	api := newFakeAPI(t)
	cfg := testConfig(t, api)
	fileAsCacheDir(t, cfg)
	a := New(cfg, discardLogger())
	defer a.Close()

	deps, err := a.Wire(context.Background(), Options{Clock: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	assert.Error(t, deps.CacheErr)
	assert.Equal(t, cache.Nop{}, deps.Store)
	assert.Nil(t, deps.Pruner)

	report, err := deps.Analyzer.Analyze(context.Background(), service.Request{Ref: "market:done", Selection: service.NoSelection()})
	require.NoError(t, err)
	require.Len(t, report.Analyses, 1)
	assert.Equal(t, domain.GateMarketClosed, report.Analyses[0].Result.Diagnostics.Gate)

	var cacheProbe ProbeResult
	for _, p := range a.Doctor(context.Background(), deps) {
		if p.Name == "cache" {
			cacheProbe = p
		}
	}
	assert.False(t, cacheProbe.OK(), "doctor still reports the broken backend")
}

func TestWireClearCache(t *testing.T) {
	api := newFakeAPI(t)
	cfg := testConfig(t, api)

	store, err := sqlitecache.Open(cfg.Cache.Dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "k", []byte("v"), time.Hour))
	require.NoError(t, store.Close())

	a := New(cfg, discardLogger())
	defer a.Close()
	deps, err := a.Wire(context.Background(), Options{ClearCache: true})
	require.NoError(t, err)

	_, ok, err := deps.Store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenCacheBackends(t *testing.T) {
	cfg := config.Defaults()
	cfg.Cache.Backend = config.BackendNone
	store, err := OpenCache(context.Background(), &cfg)
	require.NoError(t, err)
	assert.Equal(t, cache.Nop{}, store)

	cfg.Cache.Backend = "tape"
	_, err = OpenCache(context.Background(), &cfg)
	assert.Error(t, err)

	cfg.Cache.Backend = config.BackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = OpenCache(ctx, &cfg)
	assert.Error(t, err, "unreachable redis fails wiring")
}

func TestConfigMappings(t *testing.T) {
	cfg := config.Defaults()
	cfg.Analysis.MinProfit = 123
	cfg.Analysis.MaxClosed = 40
	cfg.Transport.BreakerFailures = -3

	s := Settings(&cfg)
	assert.Equal(t, 123.0, s.Thresholds.MinProfit)
	assert.Equal(t, service.DefaultSettings().Thresholds.ConsensusThreshold, s.Thresholds.ConsensusThreshold)
	assert.Equal(t, service.DefaultSettings().HoldersLimit, s.HoldersLimit)

	assert.Equal(t, 40, ProfilerConfig(&cfg).MaxClosed)

	tc := TransportConfig(&cfg)
	assert.Zero(t, tc.BreakerFailures)
	assert.Equal(t, 0.5, tc.BreakerFailureRatio)
	assert.Equal(t, cfg.Transport.Timeout.Duration, tc.Timeout)
}

func TestDoctor(t *testing.T) {
	api := newFakeAPI(t)
	a := New(testConfig(t, api), discardLogger())
	defer a.Close()
	deps, err := a.Wire(context.Background(), Options{})
	require.NoError(t, err)

	results := a.Doctor(context.Background(), deps)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.OK(), "%s: %v", r.Name, r.Err)
	}
	assert.Equal(t, "read/write ok", results[2].Detail)
}

func TestDoctorReportsUnreachableAPI(t *testing.T) {
	api := newFakeAPI(t)
	cfg := testConfig(t, api)
	cfg.Polymarket.GammaHost = "http://127.0.0.1:1"
	a := New(cfg, discardLogger())
	defer a.Close()
	deps, err := a.Wire(context.Background(), Options{NoCache: true})
	require.NoError(t, err)

	results := a.Doctor(context.Background(), deps)
	assert.False(t, results[0].OK())
	assert.True(t, results[1].OK())
	assert.Equal(t, "disabled", results[2].Detail)
}

func TestServeStopsOnCancel(t *testing.T) {
	api := newFakeAPI(t)
	cfg := testConfig(t, api)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	a := New(cfg, discardLogger())
	defer a.Close()
	deps, err := a.Wire(context.Background(), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, deps) }()

	url := "http://127.0.0.1:" + strconv.Itoa(cfg.Server.Port) + "/api/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	l := NewLogger(io.Discard, "debug")
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
	l = NewLogger(io.Discard, "bogus")
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Enabled(context.Background(), slog.LevelWarn))
}
