package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailtriage/internal/model"
)

// RunHistory is the append-only log of terminated active runs, kept
// alongside the single latestRunStats KV snapshot purely for operator
// visibility.
type RunHistory struct {
	db *pgxpool.Pool
}

func NewRunHistory(db *pgxpool.Pool) *RunHistory {
	return &RunHistory{db: db}
}

// Record appends one terminated run.
func (h *RunHistory) Record(ctx context.Context, s model.RunStats) error {
	_, err := h.db.Exec(ctx, `
		INSERT INTO run_history
			(run_id, time_range, status, message, must_do_count, must_know_count, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.RunID, s.TimeRange, string(s.Status), s.Message, s.MustDoCount, s.MustKnowCount, s.StartedAt, s.EndedAt)
	if err != nil {
		return fmt.Errorf("record run history: %w", err)
	}
	return nil
}

// Recent returns the most recent limit runs, newest first.
func (h *RunHistory) Recent(ctx context.Context, limit int) ([]model.RunStats, error) {
	rows, err := h.db.Query(ctx, `
		SELECT run_id, time_range, status, message, must_do_count, must_know_count, started_at, ended_at
		FROM run_history
		ORDER BY ended_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent run history: %w", err)
	}
	defer rows.Close()

	var out []model.RunStats
	for rows.Next() {
		var s model.RunStats
		var status string
		var startedAt, endedAt time.Time
		if err := rows.Scan(&s.RunID, &s.TimeRange, &status, &s.Message, &s.MustDoCount, &s.MustKnowCount, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan run history: %w", err)
		}
		s.Status = model.RunStatus(status)
		s.StartedAt = startedAt
		s.EndedAt = endedAt
		out = append(out, s)
	}
	return out, rows.Err()
}
