// Package trigger implements a small set of named, persisted timers
// that survive process restart. The live half is an in-process ticker
// that polls the persisted table; triggers are treated as a scarce,
// host-managed resource — at steady state exactly one "dispatcher"
// trigger should exist, and every handler dispatch goes through the
// same ensure/reinstate discipline.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// HandlerFunc is the function invoked when a trigger fires; it is
// looked up by the trigger's handler name — e.g. "dispatcher" or
// "chunk_step".
type HandlerFunc func(ctx context.Context) error

// Trigger is one row of the persisted triggers table.
type Trigger struct {
	ID         int64
	Handler    string
	FireAt     time.Time
	Recurring  bool
	IntervalMs int64
}

// Service is the TriggerService: a Postgres-backed registry drained
// by an in-process poll loop. The poll interval is independent of any
// individual trigger's cadence — it just needs to be finer than the
// finest trigger the engine installs (the one-off kickoff, ≈1 minute).
type Service struct {
	db       *pgxpool.Pool
	logger   *zap.Logger
	handlers map[string]HandlerFunc
	poll     time.Duration
}

func New(db *pgxpool.Pool, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		poll:     5 * time.Second,
	}
}

// Register associates a handler name with the function to invoke when
// a trigger bearing that name fires. Must be called before Run.
func (s *Service) Register(handler string, fn HandlerFunc) {
	s.handlers[handler] = fn
}

// List returns every installed trigger, for the dispatcher-hygiene
// checks and the admin API.
func (s *Service) List(ctx context.Context) ([]Trigger, error) {
	rows, err := s.db.Query(ctx, `SELECT id, handler, fire_at, recurring, COALESCE(interval_ms, 0) FROM triggers`)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var out []Trigger
	for rows.Next() {
		var t Trigger
		if err := rows.Scan(&t.ID, &t.Handler, &t.FireAt, &t.Recurring, &t.IntervalMs); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// HasHandler reports whether any trigger for handler is currently
// installed.
func (s *Service) HasHandler(ctx context.Context, handler string) (bool, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM triggers WHERE handler = $1`, handler).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has handler %q: %w", handler, err)
	}
	return count > 0, nil
}

// CreateRecurring installs (or, if one already exists, leaves alone)
// a trigger firing handler every interval. Used for the dispatcher's
// own sole recurring timer.
func (s *Service) CreateRecurring(ctx context.Context, handler string, interval time.Duration) error {
	exists, err := s.HasHandler(ctx, handler)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO triggers (handler, fire_at, recurring, interval_ms)
		VALUES ($1, $2, true, $3)
	`, handler, time.Now().Add(interval), interval.Milliseconds())
	if err != nil {
		return fmt.Errorf("create recurring trigger %q: %w", handler, err)
	}
	return nil
}

// CreateOneOff installs a single-shot trigger firing handler after
// delay — used for the active engine's chunk kickoff.
func (s *Service) CreateOneOff(ctx context.Context, handler string, delay time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO triggers (handler, fire_at, recurring) VALUES ($1, $2, false)
	`, handler, time.Now().Add(delay))
	if err != nil {
		return fmt.Errorf("create one-off trigger %q: %w", handler, err)
	}
	return nil
}

// DeleteHandler removes every trigger installed for handler. Used to
// temporarily free the dispatcher's trigger slot before installing a
// short-fuse one-off.
func (s *Service) DeleteHandler(ctx context.Context, handler string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM triggers WHERE handler = $1`, handler)
	if err != nil {
		return fmt.Errorf("delete trigger %q: %w", handler, err)
	}
	return nil
}

// Run polls for due triggers until ctx is cancelled. Call in a
// goroutine.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Service) fireDue(ctx context.Context) {
	rows, err := s.db.Query(ctx, `
		SELECT id, handler, fire_at, recurring, COALESCE(interval_ms, 0)
		FROM triggers WHERE fire_at <= NOW()
	`)
	if err != nil {
		s.logger.Error("list due triggers", zap.Error(err))
		return
	}
	var due []Trigger
	for rows.Next() {
		var t Trigger
		if err := rows.Scan(&t.ID, &t.Handler, &t.FireAt, &t.Recurring, &t.IntervalMs); err != nil {
			s.logger.Error("scan due trigger", zap.Error(err))
			continue
		}
		due = append(due, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		s.logger.Error("iterate due triggers", zap.Error(err))
		return
	}

	for _, t := range due {
		s.fire(ctx, t)
	}
}

func (s *Service) fire(ctx context.Context, t Trigger) {
	if t.Recurring {
		if _, err := s.db.Exec(ctx, `UPDATE triggers SET fire_at = $1 WHERE id = $2`,
			time.Now().Add(time.Duration(t.IntervalMs)*time.Millisecond), t.ID); err != nil {
			s.logger.Error("reschedule recurring trigger", zap.Int64("id", t.ID), zap.Error(err))
		}
	} else {
		if _, err := s.db.Exec(ctx, `DELETE FROM triggers WHERE id = $1`, t.ID); err != nil {
			s.logger.Error("delete fired one-off trigger", zap.Int64("id", t.ID), zap.Error(err))
		}
	}

	fn, ok := s.handlers[t.Handler]
	if !ok {
		s.logger.Warn("no handler registered for trigger", zap.String("handler", t.Handler))
		return
	}

	go func() {
		if err := fn(ctx); err != nil {
			s.logger.Error("trigger handler failed", zap.String("handler", t.Handler), zap.Error(err))
		}
	}()
}
