// Package lock implements the single-writer mutex: one authoritative
// row in KVStore, probed through a Redis SetNX fast path first so a
// contended acquisition fails cheaply without round-tripping Postgres.
// The fast path is never the source of truth — only the KVStore row
// is — so a Redis outage degrades to slower lock checks, not incorrect
// ones.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailtriage/internal/model"
	"mailtriage/internal/store"
)

const kvKey = "lock"

// ErrHeld is returned by Acquire when a lock of a different (or the
// same) kind is already held.
var ErrHeld = errors.New("lock already held")

// Manager is the persisted single-writer lock. The Redis client is a
// best-effort fast path only — every method still falls back to the
// Postgres row when Redis is unavailable, since Redis is explicitly
// non-authoritative here.
type Manager struct {
	kv  *store.KVStore
	rdb *redis.Client
}

func New(kv *store.KVStore, rdb *redis.Client) *Manager {
	return &Manager{kv: kv, rdb: rdb}
}

const redisFastPathKey = "mailtriage:lock:fastpath"

// Acquire takes the lock for kind, or returns ErrHeld if any lock
// (active or passive) is already held — at most one lock value can
// exist at a time.
func (m *Manager) Acquire(ctx context.Context, kind model.LockKind, now time.Time) error {
	if m.rdb != nil {
		ok, err := m.rdb.SetNX(ctx, redisFastPathKey, string(kind), 2*time.Minute).Result()
		if err == nil && !ok {
			return ErrHeld
		}
		// Redis error or already-clear: fall through to the authoritative check.
	}

	existing, err := m.Current(ctx)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", kind, err)
	}
	if existing != nil {
		return ErrHeld
	}

	l := model.Lock{Kind: kind, AcquiredAt: now}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("acquire %s: marshal: %w", kind, err)
	}
	if err := m.kv.Set(ctx, kvKey, string(data)); err != nil {
		return fmt.Errorf("acquire %s: %w", kind, err)
	}
	return nil
}

// Release clears the lock unconditionally. Safe to call even if no
// lock is held.
func (m *Manager) Release(ctx context.Context) error {
	if m.rdb != nil {
		_ = m.rdb.Del(ctx, redisFastPathKey).Err()
	}
	return m.kv.Delete(ctx, kvKey)
}

// Current returns the held lock, or nil if none is held.
func (m *Manager) Current(ctx context.Context) (*model.Lock, error) {
	raw, err := m.kv.GetOrEmpty(ctx, kvKey)
	if err != nil {
		return nil, fmt.Errorf("current lock: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var l model.Lock
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("current lock: unmarshal: %w", err)
	}
	return &l, nil
}
