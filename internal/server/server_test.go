package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/alanyoungcy/polysignal/internal/server/handler"
	"github.com/alanyoungcy/polysignal/internal/service"
)

type fakeAnalyzer struct {
	mu     sync.Mutex
	got    []service.Request
	report domain.Report
	err    error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req service.Request) (domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	r := f.report
	r.Ref = req.Ref
	return r, f.err
}

func (f *fakeAnalyzer) Settings() service.Settings { return service.DefaultSettings() }

func (f *fakeAnalyzer) last() service.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got[len(f.got)-1]
}

func newTestServer(t *testing.T, cfg Config, a *fakeAnalyzer, checks ...handler.Check) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(cfg, Handlers{
		Health:  handler.NewHealthHandler(logger, checks...),
		Analyze: handler.NewAnalyzeHandler(a, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
	}, logger)
	return s.Handler()
}

func get(h http.Handler, target string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func stayOutReport() domain.Report {
	return domain.Report{Analyses: []domain.Analysis{{
		RunID:  "run-1",
		Market: domain.Market{Slug: "rain", Question: "Rain?"},
		Result: domain.ScoringResult{Recommendation: domain.StayOut()},
	}}}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, Config{}, &fakeAnalyzer{},
		handler.Check{Name: "cache", Fn: func(context.Context) error { return nil }})

	rec := get(h, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"cache": "ok"}, body["checks"])
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestHealthDegraded(t *testing.T) {
	h := newTestServer(t, Config{}, &fakeAnalyzer{},
		handler.Check{Name: "cache", Fn: func(context.Context) error { return errors.New("db locked") }})

	rec := get(h, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db locked")
}

func TestAnalyzeStayOutIs200(t *testing.T) {
	a := &fakeAnalyzer{report: stayOutReport()}
	h := newTestServer(t, Config{}, a)

	rec := get(h, "/api/analyze?url=https://polymarket.com/market/rain&min_profit=100&concurrency=2&all=true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report domain.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Analyses, 1)
	assert.Equal(t, "run-1", report.Analyses[0].RunID)

	req := a.last()
	assert.Equal(t, "https://polymarket.com/market/rain", req.Ref)
	assert.True(t, req.Selection.All)
	assert.Equal(t, -1, req.Selection.Index)
	require.NotNil(t, req.Settings)
	assert.Equal(t, 100.0, req.Settings.Thresholds.MinProfit)
	assert.Equal(t, 2, req.Settings.Concurrency)
	assert.Equal(t, service.DefaultSettings().Thresholds.WhaleThreshold, req.Settings.Thresholds.WhaleThreshold)
}

func TestAnalyzeBadParameters(t *testing.T) {
	h := newTestServer(t, Config{}, &fakeAnalyzer{})

	for _, target := range []string{
		"/api/analyze",
		"/api/analyze?url=rain&min_profit=lots",
		"/api/analyze?url=rain&market_index=-2",
		"/api/analyze?url=rain&concurrency=0",
		"/api/analyze?url=rain&consensus_threshold=2",
	} {
		rec := get(h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAnalyzeErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"resolution", &domain.ResolutionError{Ref: "x", Reason: "no market"}, http.StatusBadRequest},
		{"fetch", &domain.FetchError{Endpoint: "/events/slug/x", Status: 500, Cause: errors.New("boom")}, http.StatusBadGateway},
		{"circuit", domain.ErrCircuitOpen, http.StatusBadGateway},
		{"other", errors.New("bug"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, Config{}, &fakeAnalyzer{err: tc.err})
			rec := get(h, "/api/analyze?url=x")
			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAnalyzeFatalMarketIs502(t *testing.T) {
	report := stayOutReport()
	report.Analyses[0].Err = errors.New("holders down")
	report.Analyses[0].Error = "holders down"
	h := newTestServer(t, Config{}, &fakeAnalyzer{report: report})

	rec := get(h, "/api/analyze?url=rain")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "holders down")
}

func TestAuthGuardsAnalyzeOnly(t *testing.T) {
	h := newTestServer(t, Config{APIKey: "sekret"}, &fakeAnalyzer{report: stayOutReport()})

	assert.Equal(t, http.StatusOK, get(h, "/api/health").Code)
	assert.Equal(t, http.StatusOK, get(h, "/metrics").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/analyze?url=rain").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/analyze?url=rain", "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/analyze?url=rain", "Authorization", "Bearer sekret").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/analyze?url=rain", "X-API-Key", "sekret").Code)
}

func TestRateLimitPerIP(t *testing.T) {
	h := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 2}, &fakeAnalyzer{report: stayOutReport()})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, get(h, "/api/analyze?url=rain", "X-Real-IP", "10.0.0.1").Code)
	}
	rec := get(h, "/api/analyze?url=rain", "X-Real-IP", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(h, "/api/analyze?url=rain", "X-Real-IP", "10.0.0.2").Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:3000"}}, &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestTimeoutApplies(t *testing.T) {
	slow := &slowAnalyzer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(Config{RequestTimeout: 20 * time.Millisecond}, Handlers{
		Health:  handler.NewHealthHandler(logger),
		Analyze: handler.NewAnalyzeHandler(slow, logger),
	}, logger)

	rec := get(s.Handler(), "/api/analyze?url=rain")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

type slowAnalyzer struct{}

func (slowAnalyzer) Analyze(ctx context.Context, _ service.Request) (domain.Report, error) {
	<-ctx.Done()
	return domain.Report{}, ctx.Err()
}

func (slowAnalyzer) Settings() service.Settings { return service.DefaultSettings() }
