package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailtriage/pkg/mq"
	"mailtriage/pkg/trace"
)

// Dispatcher polls the outbox table and publishes pending events to the
// MQ exchange. It is the async half of the transactional outbox: the
// engine only ever writes a row inside its own transaction and never
// talks to RabbitMQ directly.
type Dispatcher struct {
	repo       *Repository
	publisher  *mq.Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

// NewDispatcher builds a Dispatcher with sane defaults (5 retries, 1s
// poll interval, 100 events per batch). Use the With* setters to tune.
func NewDispatcher(repo *Repository, publisher *mq.Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   1 * time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start runs the poll loop until ctx is cancelled. Call it in a
// goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("starting outbox dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.processPendingEvents(ctx)
		}
	}
}

func (d *Dispatcher) processPendingEvents(ctx context.Context) {
	events, err := d.repo.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to get pending events", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	d.logger.Debug("processing pending outbox events", zap.Int("count", len(events)))

	for _, event := range events {
		if err := d.publishEvent(ctx, event); err != nil {
			d.logger.Error("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			if markErr := d.repo.MarkAsFailed(ctx, event.ID, d.maxRetries); markErr != nil {
				d.logger.Error("failed to mark outbox event as failed",
					zap.Int64("event_id", event.ID),
					zap.Error(markErr),
				)
			}
			continue
		}

		if err := d.repo.MarkAsSent(ctx, event.ID); err != nil {
			d.logger.Error("failed to mark outbox event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
		} else {
			d.logger.Debug("outbox event published",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
			)
		}
	}
}

func (d *Dispatcher) publishEvent(ctx context.Context, event *Event) error {
	var payload interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	ctx = trace.WithContext(ctx, traceIDFromPayload(event.Payload))

	if err := d.publisher.PublishWithContext(ctx, event.RoutingKey, payload); err != nil {
		return fmt.Errorf("publish to mq: %w", err)
	}
	return nil
}

// traceIDFromPayload pulls a "trace_id" field out of an arbitrary JSON
// payload, or returns "" if there is none. None of the mq payload types
// has a trace_id field, so for them it returns "" and trace.WithContext
// starts a fresh id.
func traceIDFromPayload(payload json.RawMessage) string {
	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return ""
	}
	id, _ := m["trace_id"].(string)
	return id
}
