// Package engine implements the crash-resilient state machine that
// drives the active and passive scan workflows: a dispatcher tick
// decides which of them (if either) advances, chunked processing fits
// each active step inside a wall-clock budget, and a timezone-anchored
// window gates the daily digest to once per local day.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mailtriage/internal/lock"
	"mailtriage/internal/mailer"
	"mailtriage/internal/mailstore"
	"mailtriage/internal/llmclient"
	"mailtriage/internal/model"
	"mailtriage/internal/store"
	"mailtriage/internal/trigger"
	"mailtriage/internal/util"
	"mailtriage/pkg/config"
	"mailtriage/pkg/outbox"
)

// Clock abstracts wall-clock time and the user's timezone so tests can
// drive the engine through arbitrary instants without sleeping.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// SystemClock is the production Clock, anchored to cfg.TimeZone.
type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(tz string) (*SystemClock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &SystemClock{loc: loc}, nil
}

func (c *SystemClock) Now() time.Time          { return time.Now().In(c.loc) }
func (c *SystemClock) Location() *time.Location { return c.loc }

// Engine wires every capability the dispatcher, active, and passive
// workflows depend on. Nothing here is authoritative state — all of
// it is either a stateless client or a handle onto durable storage.
type Engine struct {
	kv         *store.KVStore
	blob       *store.BlobStore
	runHistory *store.RunHistory
	locks      *lock.Manager
	triggers   *trigger.Service
	mail       mailstore.Store
	llm        llmclient.Client
	mailer     mailer.Mailer
	outboxRepo *outbox.Repository
	db         *pgxpool.Pool
	dedup      *util.Deduper
	cfg        config.TriageConfig
	clock      Clock
	logger     *zap.Logger
}

type Deps struct {
	KV         *store.KVStore
	Blob       *store.BlobStore
	RunHistory *store.RunHistory
	Locks      *lock.Manager
	Triggers   *trigger.Service
	Mail       mailstore.Store
	LLM        llmclient.Client
	Mailer     mailer.Mailer
	OutboxRepo *outbox.Repository
	DB         *pgxpool.Pool
	Dedup      *util.Deduper
	Config     config.TriageConfig
	Clock      Clock
	Logger     *zap.Logger
}

func New(d Deps) *Engine {
	return &Engine{
		kv:         d.KV,
		blob:       d.Blob,
		runHistory: d.RunHistory,
		locks:      d.Locks,
		triggers:   d.Triggers,
		mail:       d.Mail,
		llm:        d.LLM,
		mailer:     d.Mailer,
		outboxRepo: d.OutboxRepo,
		db:         d.DB,
		dedup:      d.Dedup,
		cfg:        d.Config,
		clock:      d.Clock,
		logger:     d.Logger,
	}
}

// RegisterHandlers wires the engine's trigger handlers into ts.
// Call once before ts.Run.
func (e *Engine) RegisterHandlers(ts *trigger.Service) {
	ts.Register(handlerDispatcher, func(ctx context.Context) error {
		return e.Tick(ctx)
	})
	ts.Register(handlerChunkStep, func(ctx context.Context) error {
		return e.Step(ctx)
	})
}

// EnsureDispatcher installs the dispatcher's recurring trigger if it
// is missing. Called from every public entry point that can affect
// triggers, per the trigger-hygiene property.
func (e *Engine) EnsureDispatcher(ctx context.Context) error {
	return e.triggers.CreateRecurring(ctx, handlerDispatcher, DispatcherInterval)
}

// --- small typed helpers over the raw string KV, so the rest of the
// package never marshals by hand. ---

func (e *Engine) kvGetString(ctx context.Context, key string) (string, error) {
	return e.kv.GetOrEmpty(ctx, key)
}

func (e *Engine) kvGetTime(ctx context.Context, key string) (time.Time, bool, error) {
	raw, err := e.kv.GetOrEmpty(ctx, key)
	if err != nil || raw == "" {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %q: %w", key, err)
	}
	return t, true, nil
}

func (e *Engine) kvGetInt(ctx context.Context, key string, def int) (int, error) {
	raw, err := e.kv.GetOrEmpty(ctx, key)
	if err != nil || raw == "" {
		return def, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("parse %q: %w", key, err)
	}
	return n, nil
}

func (e *Engine) kvGetBool(ctx context.Context, key string, def bool) (bool, error) {
	raw, err := e.kv.GetOrEmpty(ctx, key)
	if err != nil || raw == "" {
		return def, err
	}
	return raw == "true", nil
}

func setTime(values map[string]string, key string, t time.Time) {
	values[key] = t.Format(time.RFC3339Nano)
}

func (e *Engine) currentAccumulator(ctx context.Context) (model.AccumulatorFile, int64, error) {
	handleRaw, err := e.kv.GetOrEmpty(ctx, keyAccumulatorHandle)
	if err != nil {
		return model.AccumulatorFile{}, 0, err
	}

	empty, _ := json.Marshal(model.AccumulatorFile{})
	content, handle, err := e.blob.ReadOrInit(ctx, AccumulatorBlobName, empty)
	if err != nil {
		return model.AccumulatorFile{}, 0, fmt.Errorf("read accumulator: %w", err)
	}
	if handleRaw == "" {
		if err := e.kv.Set(ctx, keyAccumulatorHandle, strconv.FormatInt(handle, 10)); err != nil {
			return model.AccumulatorFile{}, 0, err
		}
	}

	var acc model.AccumulatorFile
	if err := json.Unmarshal(content, &acc); err != nil {
		return model.AccumulatorFile{}, 0, fmt.Errorf("unmarshal accumulator: %w", err)
	}
	return acc, handle, nil
}

func (e *Engine) writeAccumulator(ctx context.Context, handle int64, acc model.AccumulatorFile) error {
	content, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("marshal accumulator: %w", err)
	}
	newHandle, err := e.blob.Write(ctx, handle, AccumulatorBlobName, content)
	if err != nil {
		return fmt.Errorf("write accumulator: %w", err)
	}
	return e.kv.Set(ctx, keyAccumulatorHandle, strconv.FormatInt(newHandle, 10))
}

// notify queues a notification job in the outbox, to be delivered by
// cmd/notifier. A failure to enqueue is logged, never propagated —
// losing a notification is never grounds for failing a run that has
// otherwise already completed, errored, or timed out.
func (e *Engine) notify(ctx context.Context, routingKey string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("marshal notification payload", zap.Error(err), zap.String("routingKey", routingKey))
		return
	}
	event := &outbox.Event{RoutingKey: routingKey, Payload: data, Status: "pending"}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		e.logger.Error("begin notify tx", zap.Error(err))
		return
	}
	defer tx.Rollback(ctx)

	if err := e.outboxRepo.InsertEvent(ctx, tx, event); err != nil {
		e.logger.Error("insert outbox event", zap.Error(err), zap.String("routingKey", routingKey))
		return
	}
	if err := tx.Commit(ctx); err != nil {
		e.logger.Error("commit notify tx", zap.Error(err))
	}
}
