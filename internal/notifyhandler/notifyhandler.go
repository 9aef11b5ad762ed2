// Package notifyhandler implements cmd/notifier's MQ handlers: one per
// routing key the worker's outbox emits, each turning its payload into
// a single Mailer.Send call. Splitting "decide" from "notify" across
// processes means a slow or failing mail transport retries at the MQ
// level instead of blocking a dispatcher tick.
package notifyhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"mailtriage/internal/mailer"
	"mailtriage/pkg/mq"
)

// RunCompletedHandler sends the "scan complete" email for a finished
// active run. Passive passes never emit run.completed.
type RunCompletedHandler struct {
	mailer mailer.Mailer
	logger *zap.Logger
}

func NewRunCompletedHandler(m mailer.Mailer, logger *zap.Logger) *RunCompletedHandler {
	return &RunCompletedHandler{mailer: m, logger: logger}
}

func (h *RunCompletedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mq.RunCompletedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return mq.Poison(fmt.Errorf("unmarshal run completed payload: %w", err))
	}

	if err := h.mailer.Send(ctx, p.ToAddress, p.Subject, p.HTMLBody, p.SenderName); err != nil {
		h.logger.Error("send run completed email failed", zap.String("runId", p.RunID), zap.Error(err))
		return err
	}
	h.logger.Info("run completed email sent", zap.String("runId", p.RunID))
	return nil
}

// RunErrorHandler sends the "scan failed" email.
type RunErrorHandler struct {
	mailer mailer.Mailer
	logger *zap.Logger
}

func NewRunErrorHandler(m mailer.Mailer, logger *zap.Logger) *RunErrorHandler {
	return &RunErrorHandler{mailer: m, logger: logger}
}

func (h *RunErrorHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mq.RunErrorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return mq.Poison(fmt.Errorf("unmarshal run error payload: %w", err))
	}

	body := fmt.Sprintf("<p>%s</p>", p.Message)
	if err := h.mailer.Send(ctx, p.ToAddress, p.Subject, body, p.SenderName); err != nil {
		h.logger.Error("send run error email failed", zap.String("runId", p.RunID), zap.Error(err))
		return err
	}
	h.logger.Info("run error email sent", zap.String("runId", p.RunID))
	return nil
}

// RunTimeoutHandler sends the "scan stalled" email for a run the
// dispatcher reaped.
type RunTimeoutHandler struct {
	mailer mailer.Mailer
	logger *zap.Logger
}

func NewRunTimeoutHandler(m mailer.Mailer, logger *zap.Logger) *RunTimeoutHandler {
	return &RunTimeoutHandler{mailer: m, logger: logger}
}

func (h *RunTimeoutHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mq.RunTimeoutPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return mq.Poison(fmt.Errorf("unmarshal run timeout payload: %w", err))
	}

	body := fmt.Sprintf("<p>Scan stalled since %s and was reaped at %s.</p>", p.StalledSince, p.ReapedAt)
	if err := h.mailer.Send(ctx, p.ToAddress, p.Subject, body, p.SenderName); err != nil {
		h.logger.Error("send run timeout email failed", zap.String("runId", p.RunID), zap.Error(err))
		return err
	}
	h.logger.Info("run timeout email sent", zap.String("runId", p.RunID))
	return nil
}

// DigestSentHandler is audit-only: the worker already delivered the
// digest synchronously before emitting this event, so there is
// nothing left to send. It exists so the digest send leaves the same
// trail in the notifier's logs as every other notification.
type DigestSentHandler struct {
	logger *zap.Logger
}

func NewDigestSentHandler(logger *zap.Logger) *DigestSentHandler {
	return &DigestSentHandler{logger: logger}
}

func (h *DigestSentHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mq.DigestSentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return mq.Poison(fmt.Errorf("unmarshal digest sent payload: %w", err))
	}
	h.logger.Info("digest delivered",
		zap.String("localDate", p.LocalDate),
		zap.Int("mustDoCount", p.MustDoCount),
		zap.Int("mustKnowCount", p.MustKnowCount),
	)
	return nil
}
