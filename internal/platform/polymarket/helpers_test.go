package polymarket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastTransportConfig() TransportConfig {
	cfg := DefaultTransportConfig()
	cfg.RPS = 0
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.MaxAttempts = 3
	cfg.BreakerFailures = 100
	return cfg
}

// memStore is a map-backed ResponseCache for tests.
type memStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
}

func newMemStore() *memStore {
	return &memStore{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memStore) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl <= 0 {
		return nil
	}
	m.entries[key] = payload
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string][]byte{}
	return nil
}

func (m *memStore) Close() error { return nil }

var errBackend = errors.New("backend down")

// countingServer serves handler and counts requests per path.
type countingServer struct {
	*httptest.Server
	mu     sync.Mutex
	counts map[string]int
}

func newCountingServer(t *testing.T, handler http.HandlerFunc) *countingServer {
	t.Helper()
	cs := &countingServer{counts: map[string]int{}}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.counts[r.URL.Path]++
		cs.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *countingServer) count(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.counts[path]
}

func (cs *countingServer) total() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, c := range cs.counts {
		n += c
	}
	return n
}

func newTestGateway(store *memStore) *Gateway {
	tr := NewTransport(fastTransportConfig(), nil, discardLogger())
	if store == nil {
		return NewGateway(tr, nil, DefaultTTLs(), discardLogger())
	}
	return NewGateway(tr, store, DefaultTTLs(), discardLogger())
}
