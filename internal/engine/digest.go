package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/digestrender"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/mq"
)

// maybeSendDailyDigest sends the accumulated findings if the local
// clock is inside the send window and no digest has gone out yet
// today. The send is synchronous (not routed through the outbox) so
// the caller can act on success/failure immediately: clearing the
// accumulator is conditioned on a confirmed delivery.
func (e *Engine) maybeSendDailyDigest(ctx context.Context, now time.Time) error {
	if now.Hour() < DigestWindowStartHour || now.Hour() >= DigestWindowEndHour {
		return nil
	}

	today := now.Format("2006-01-02")
	lastSummary, err := e.kvGetString(ctx, keyPassiveLastSummaryDate)
	if err != nil {
		return err
	}
	if lastSummary == today {
		return nil
	}

	acc, handle, err := e.currentAccumulator(ctx)
	if err != nil {
		return err
	}
	if acc.Empty() {
		return nil
	}

	html := digestrender.Render(acc, e.cfg.AddonName)
	subject := fmt.Sprintf("%s: daily digest", e.cfg.AddonName)

	if err := e.mailer.Send(ctx, e.cfg.NotifyEmail, subject, html, e.cfg.AddonName); err != nil {
		metrics.IncrementDigestSent("failed")
		e.logger.Warn("digest send failed, will retry next pass", zap.Error(err))
		return nil
	}

	if err := e.blob.Trash(ctx, AccumulatorBlobName); err != nil {
		return fmt.Errorf("trash accumulator after send: %w", err)
	}
	if err := e.kv.DeleteMany(ctx, keyAccumulatorHandle); err != nil {
		return err
	}
	_ = handle
	if err := e.kv.Set(ctx, keyPassiveLastSummaryDate, today); err != nil {
		return err
	}

	metrics.IncrementDigestSent("sent")
	e.notify(ctx, mq.RoutingKeyDigestSent, mq.DigestSentPayload{
		LocalDate:     today,
		MustDoCount:   len(acc.MustDo),
		MustKnowCount: len(acc.MustKnow),
		SentAt:        now,
		ToAddress:     e.cfg.NotifyEmail,
		Subject:       subject,
		HTMLBody:      html,
		SenderName:    e.cfg.AddonName,
	})
	return nil
}
