package domain

import (
	"context"
	"time"
)

// ResponseCache persists raw upstream responses under deterministic keys.
// Get must never return an entry whose expiry has passed. Implementations are
// safe for concurrent use.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
	Close() error
}

// CachePruner is implemented by caches that can delete expired entries.
type CachePruner interface {
	Prune(ctx context.Context) (int64, error)
}

// CacheEntry is one stored response.
type CacheEntry struct {
	Key       string
	Payload   []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry must be treated as absent at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
