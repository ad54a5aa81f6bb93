package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/alanyoungcy/polysignal/internal/cache"
	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a ResponseCache in the polysignal_cache table. Concurrent writers
// are serialized per key by the upsert.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore wraps an open pool. Migrations must already be applied.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Get returns the payload for key unless it has expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM polysignal_cache WHERE digest = $1 AND expires_at > $2`,
		cache.Digest(key), s.now(),
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &domain.CacheError{Op: "get", Key: key, Cause: err}
	}
	return payload, true, nil
}

// Put upserts payload under key for ttl. A non-positive ttl stores nothing.
func (s *Store) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO polysignal_cache (digest, cache_key, payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (digest) DO UPDATE SET
			payload = EXCLUDED.payload,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at`,
		cache.Digest(key), key, payload, now.Add(ttl), now,
	)
	if err != nil {
		return &domain.CacheError{Op: "put", Key: key, Cause: err}
	}
	return nil
}

// Clear deletes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM polysignal_cache`); err != nil {
		return &domain.CacheError{Op: "clear", Cause: err}
	}
	return nil
}

// Prune deletes expired entries.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM polysignal_cache WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, &domain.CacheError{Op: "prune", Cause: err}
	}
	return tag.RowsAffected(), nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var (
	_ domain.ResponseCache = (*Store)(nil)
	_ domain.CachePruner   = (*Store)(nil)
)
