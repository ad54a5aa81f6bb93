package polymarket

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// Observer receives gateway traffic events.
type Observer interface {
	ObserveRequest(api API, host string, status int, d time.Duration)
	ObserveCache(api API, hit bool)
}

// Stats counts requests for one run. It is safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	started  time.Time
	requests int
	hits     int
	misses   int
	httpTime time.Duration
	byHost   map[string]int
}

// NewStats starts a run clock.
func NewStats() *Stats {
	return &Stats{started: time.Now(), byHost: make(map[string]int)}
}

func (s *Stats) ObserveRequest(_ API, host string, _ int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.httpTime += d
	s.byHost[host]++
}

func (s *Stats) ObserveCache(_ API, hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.hits++
	} else {
		s.misses++
	}
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() domain.RequestStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	byHost := make(map[string]int, len(s.byHost))
	for k, v := range s.byHost {
		byHost[k] = v
	}
	return domain.RequestStats{
		HTTPRequests: s.requests,
		CacheHits:    s.hits,
		CacheMisses:  s.misses,
		HTTPTime:     s.httpTime,
		Elapsed:      time.Since(s.started),
		ByHost:       byHost,
	}
}

type statsKey struct{}

// WithStats attaches s to ctx so every gateway call made with the returned
// context is counted in s.
func WithStats(ctx context.Context, s *Stats) context.Context {
	return context.WithValue(ctx, statsKey{}, s)
}

// StatsFrom returns the Stats attached to ctx, or nil.
func StatsFrom(ctx context.Context) *Stats {
	s, _ := ctx.Value(statsKey{}).(*Stats)
	return s
}
