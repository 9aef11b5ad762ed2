package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by KVStore.Get for an absent key.
var ErrNotFound = errors.New("key not found")

// KVStore is the durable small-value map: progress markers, the lock
// row, chunk bookkeeping, high-water marks. Every engine component
// that mutates shared state goes through this, never an in-process
// variable.
type KVStore struct {
	db *pgxpool.Pool
}

func NewKVStore(db *pgxpool.Pool) *KVStore {
	return &KVStore{db: db}
}

// Get returns the raw string value for key, or ErrNotFound.
func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// GetOrEmpty is Get but returns "" instead of ErrNotFound, for callers
// that treat an absent key the same as an empty one. Defaults are
// parsed explicitly at the call site, not here.
func (s *KVStore) GetOrEmpty(ctx context.Context, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Set upserts key=value.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// SetMany upserts several keys atomically — a chunk boundary writes
// several KV keys together and must not be observable half-written.
func (s *KVStore) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("setMany begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, value := range values {
		if _, err := tx.Exec(ctx, `
			INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, key, value); err != nil {
			return fmt.Errorf("setMany %q: %w", key, err)
		}
	}
	return tx.Commit(ctx)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// DeleteMany removes several keys in one statement, used to clear
// chunk state on finalize/error/timeout without round-tripping once
// per key.
func (s *KVStore) DeleteMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM kv_store WHERE key = ANY($1)`, keys)
	if err != nil {
		return fmt.Errorf("deleteMany: %w", err)
	}
	return nil
}
