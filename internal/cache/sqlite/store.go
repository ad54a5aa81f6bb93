// Package sqlite implements the durable on-disk response cache on top of
// modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/polysignal/internal/cache"
	"github.com/alanyoungcy/polysignal/internal/domain"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the cache directory.
const FileName = "cache.db"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	digest     TEXT PRIMARY KEY,
	key        TEXT NOT NULL,
	payload    BLOB NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// Store is a ResponseCache persisted in a single SQLite file. It holds one
// open connection, which serializes every read and write.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or opens the cache database inside dir.
func Open(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create cache dir %s: %w", dir, err)
	}
	return OpenFile(filepath.Join(dir, FileName), opts...)
}

// OpenFile opens the cache database at path. ":memory:" is accepted.
func OpenFile(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the payload stored under key if it has not expired. Stale rows
// are deleted on the way out.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	digest := cache.Digest(key)
	now := s.now().UnixNano()

	var (
		payload   []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM cache_entries WHERE digest = ?`, digest,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &domain.CacheError{Op: "get", Key: key, Cause: err}
	}

	if now >= expiresAt {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE digest = ? AND expires_at <= ?`, digest, now,
		); err != nil {
			return nil, false, &domain.CacheError{Op: "evict", Key: key, Cause: err}
		}
		return nil, false, nil
	}
	return payload, true, nil
}

// Put stores payload under key for ttl. A non-positive ttl stores nothing.
func (s *Store) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (digest, key, payload, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(digest) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		cache.Digest(key), key, payload, now.Add(ttl).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return &domain.CacheError{Op: "put", Key: key, Cause: err}
	}
	return nil
}

// Clear deletes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return &domain.CacheError{Op: "clear", Cause: err}
	}
	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, &domain.CacheError{Op: "prune", Cause: err}
	}
	return res.RowsAffected()
}

// Len returns the number of stored rows, expired or not.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count entries: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ domain.ResponseCache = (*Store)(nil)
	_ domain.CachePruner   = (*Store)(nil)
)
