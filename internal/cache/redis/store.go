package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alanyoungcy/polysignal/internal/cache"
	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by Store.
const DefaultPrefix = "polysignal:cache:"

const scanBatch = 500

// Store is a ResponseCache backed by Redis string keys with native expiry.
//
// Key schema:
//
//	{prefix}{blake2b(key)} - raw response payload, PX = ttl
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewStore wraps rdb. An empty prefix selects DefaultPrefix.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) redisKey(key string) string { return s.prefix + cache.Digest(key) }

// Get returns the payload for key. Redis expires keys itself, so a present
// key is never stale.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, &domain.CacheError{Op: "get", Key: key, Cause: err}
	}
	return data, true, nil
}

// Put stores payload under key for ttl. A non-positive ttl stores nothing.
func (s *Store) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, s.redisKey(key), payload, ttl).Err(); err != nil {
		return &domain.CacheError{Op: "put", Key: key, Cause: err}
	}
	return nil
}

// Clear deletes every key under the store prefix.
func (s *Store) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return &domain.CacheError{Op: "clear", Cause: err}
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return &domain.CacheError{Op: "clear", Cause: err}
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

var _ domain.ResponseCache = (*Store)(nil)
