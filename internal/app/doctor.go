package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/polysignal/internal/cache"
	"github.com/alanyoungcy/polysignal/internal/config"
)

// ProbeResult is the outcome of one doctor check.
type ProbeResult struct {
	Name    string
	Target  string
	Detail  string
	Elapsed time.Duration
	Err     error
}

// OK reports whether the probe succeeded.
func (p ProbeResult) OK() bool { return p.Err == nil }

// Doctor probes both upstream APIs directly (bypassing the cache) and does a
// round trip through the configured cache store.
func (a *App) Doctor(ctx context.Context, deps *Dependencies) []ProbeResult {
	gamma := strings.TrimRight(a.cfg.Polymarket.GammaHost, "/") + "/markets?" + url.Values{
		"limit": {"1"},
	}.Encode()
	data := strings.TrimRight(a.cfg.Polymarket.DataHost, "/") + "/v1/leaderboard?" + url.Values{
		"timePeriod": {"ALL"},
		"category":   {"OVERALL"},
		"limit":      {"1"},
	}.Encode()

	return []ProbeResult{
		a.probeHTTP(ctx, deps, "gamma", gamma),
		a.probeHTTP(ctx, deps, "data", data),
		a.probeCache(ctx, deps),
	}
}

func (a *App) probeHTTP(ctx context.Context, deps *Dependencies, name, target string) ProbeResult {
	res := ProbeResult{Name: name, Target: target}
	resp, err := deps.Transport.Get(ctx, target)
	if err != nil {
		res.Err = err
		return res
	}
	res.Elapsed = resp.Duration
	res.Detail = fmt.Sprintf("HTTP %d, %d bytes, %d attempt(s)", resp.Status, len(resp.Body), resp.Attempts)
	return res
}

func (a *App) probeCache(ctx context.Context, deps *Dependencies) ProbeResult {
	res := ProbeResult{Name: "cache", Target: a.cfg.Cache.Backend}
	if a.cfg.Cache.Backend == config.BackendDisk {
		res.Target += " " + a.cfg.Cache.Dir
	}
	if deps.CacheErr != nil {
		res.Err = deps.CacheErr
		return res
	}
	if _, ok := deps.Store.(cache.Nop); ok {
		res.Detail = "disabled"
		return res
	}

	start := time.Now()
	key := cache.Key("polysignal://doctor", url.Values{"t": {start.UTC().Format(time.RFC3339Nano)}})
	want := []byte(`{"doctor":true}`)
	if err := deps.Store.Put(ctx, key, want, time.Minute); err != nil {
		res.Err = fmt.Errorf("put: %w", err)
		return res
	}
	got, ok, err := deps.Store.Get(ctx, key)
	switch {
	case err != nil:
		res.Err = fmt.Errorf("get: %w", err)
	case !ok || string(got) != string(want):
		res.Err = fmt.Errorf("round trip returned %q", got)
	default:
		res.Detail = "read/write ok"
	}
	res.Elapsed = time.Since(start)
	return res
}
