package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlobStore backs a single named JSON document — in this system,
// exactly one: the AccumulatorFile. Writes are atomic replace (insert
// the new row, point the caller at its handle, drop the old row) so a
// crash mid-write never leaves unreadable content.
type BlobStore struct {
	db *pgxpool.Pool
}

func NewBlobStore(db *pgxpool.Pool) *BlobStore {
	return &BlobStore{db: db}
}

// ReadOrInit returns the current content and handle for name, creating
// it with init content if absent.
func (s *BlobStore) ReadOrInit(ctx context.Context, name string, init []byte) (content []byte, handle int64, err error) {
	err = s.db.QueryRow(ctx, `
		SELECT handle, content FROM blobs WHERE name = $1 ORDER BY handle DESC LIMIT 1
	`, name).Scan(&handle, &content)
	if err == nil {
		return content, handle, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, fmt.Errorf("readOrInit %q: %w", name, err)
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO blobs (name, content) VALUES ($1, $2) RETURNING handle
	`, name, init).Scan(&handle)
	if err != nil {
		return nil, 0, fmt.Errorf("readOrInit init %q: %w", name, err)
	}
	return init, handle, nil
}

// Write atomically replaces the blob referenced by handle with
// content, under the same name, and returns the new handle. The new
// row's insert and the old row's delete commit in one transaction, so
// a failure leaves the old row in place.
func (s *BlobStore) Write(ctx context.Context, handle int64, name string, content []byte) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("write %q begin: %w", name, err)
	}
	defer tx.Rollback(ctx)

	var newHandle int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO blobs (name, content) VALUES ($1, $2) RETURNING handle
	`, name, content).Scan(&newHandle); err != nil {
		return 0, fmt.Errorf("write %q insert: %w", name, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM blobs WHERE handle = $1`, handle); err != nil {
		return 0, fmt.Errorf("write %q drop old: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("write %q commit: %w", name, err)
	}
	return newHandle, nil
}

// Trash deletes every row for name — called after a successful digest
// send to clear the accumulator.
func (s *BlobStore) Trash(ctx context.Context, name string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM blobs WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("trash %q: %w", name, err)
	}
	return nil
}
