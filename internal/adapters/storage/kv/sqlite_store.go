package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wikimasters/internal/adapters/storage"
)

// SQLiteStore implements Store on the kv_counter and kv_entry tables.
// It serves single-process deployments that run without Redis.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed key-value store.
// A nil clock defaults to time.Now.
func NewSQLiteStore(db storage.SQLDB, now func() time.Time) *SQLiteStore {
	if now == nil {
		now = time.Now
	}
	return &SQLiteStore{db: db, now: now}
}

// Incr atomically increments the counter at key.
// PRE: key is non-empty
// POST: Returns the post-increment value; the first call for a key returns 1
func (s *SQLiteStore) Incr(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kv_counter (key, value) VALUES (?, 1)
		 ON CONFLICT(key) DO UPDATE SET value = value + 1
		 RETURNING value`, key).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return value, nil
}

// Get returns the live value at key.
// PRE: key is non-empty
// POST: Expired entries are removed and reported as absent
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entry WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	if expiresAt.Valid && s.now().UnixNano() >= expiresAt.Int64 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM kv_entry WHERE key = ? AND expires_at = ?`, key, expiresAt.Int64); err != nil {
			return nil, false, fmt.Errorf("expire %s: %w", key, err)
		}
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores value at key, replacing any previous value and expiry.
// PRE: key is non-empty
// POST: Entry is readable until now+ttl (or indefinitely when ttl <= 0)
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixNano()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entry (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Del removes key from both tables.
func (s *SQLiteStore) Del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entry WHERE key = ?`, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_counter WHERE key = ?`, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}
