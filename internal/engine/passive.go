package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/mailstore"
	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/mq"
)

// PassivePass runs one hourly background scan: fetch mail newer than
// the high-water mark, classify it, fold findings into the
// accumulator, and check whether the daily digest is due. It takes
// lock{kind=passive} for the whole pass and releases it on return; if
// the lock cannot be taken it returns nil without doing anything.
func (e *Engine) PassivePass(ctx context.Context) error {
	now := e.clock.Now()

	if err := e.locks.Acquire(ctx, model.LockKindPassive, now); err != nil {
		held, _ := e.locks.Current(ctx)
		kind := model.LockKindPassive
		if held != nil {
			kind = held.Kind
		}
		metrics.IncrementLockContention(string(model.LockKindPassive), string(kind))
		return nil // another workflow holds the lock; try again next tick
	}
	defer func() {
		if err := e.locks.Release(ctx); err != nil {
			e.logger.Error("release passive lock", zap.Error(err))
		}
	}()

	lastMsgTs, hasLastMsgTs, err := e.kvGetTime(ctx, keyPassiveLastMsgTs)
	if err != nil {
		return e.passiveError(ctx, now, err)
	}
	lastMsgID, err := e.kvGetString(ctx, keyPassiveLastMsgID)
	if err != nil {
		return e.passiveError(ctx, now, err)
	}

	backstop := now.Add(-PassiveBackstop)
	start := backstop
	if hasLastMsgTs {
		withBuffer := lastMsgTs.Add(PassiveSafetyBuffer)
		if withBuffer.After(start) {
			start = withBuffer
		}
	}
	end := now
	if !start.Before(end) {
		return nil
	}

	threads, err := e.mail.Search(ctx, mailstore.Query{
		After:      start,
		Before:     end,
		UnreadOnly: true,
		InboxOnly:  true,
	}, activeSearchLimit)
	if err != nil {
		return e.passiveError(ctx, now, err)
	}

	threads = e.filterIgnored(threads)
	threads = stopAtLastSeen(threads, lastMsgID)
	threads = e.filterSeen(ctx, threads)
	if len(threads) == 0 {
		return e.maybeSendDailyDigest(ctx, now)
	}

	result, err := e.runBatcher(ctx, threads)
	if err != nil {
		return e.passiveError(ctx, now, err)
	}
	e.archiveUninteresting(ctx, threads, result)

	if len(result.MustDo) > 0 || len(result.MustKnow) > 0 {
		if ts, id, ok := earliestMessage(threads); ok {
			if err := e.advanceHighWaterMark(ctx, ts, id); err != nil {
				return e.passiveError(ctx, now, err)
			}
		}

		if err := e.mergeAccumulator(ctx, result, len(threads), start, end); err != nil {
			return e.passiveError(ctx, now, err)
		}
	}

	return e.maybeSendDailyDigest(ctx, now)
}

// advanceHighWaterMark only moves the mark forward — it never
// regresses, even if called with an older timestamp than what is
// already stored.
func (e *Engine) advanceHighWaterMark(ctx context.Context, ts time.Time, id string) error {
	current, ok, err := e.kvGetTime(ctx, keyPassiveLastMsgTs)
	if err != nil {
		return err
	}
	if ok && !ts.After(current) {
		return nil
	}
	values := map[string]string{keyPassiveLastMsgID: id}
	setTime(values, keyPassiveLastMsgTs, ts)
	return e.kv.SetMany(ctx, values)
}

func (e *Engine) mergeAccumulator(ctx context.Context, result model.ClassifyResult, processed int, windowStart, windowEnd time.Time) error {
	acc, handle, err := e.currentAccumulator(ctx)
	if err != nil {
		return err
	}
	next := model.AccumulatorFile{
		MustDo:         result.MustDo,
		MustKnow:       result.MustKnow,
		TotalProcessed: processed,
	}
	merged := acc.Merge(next, windowStart, windowEnd)
	return e.writeAccumulator(ctx, handle, merged)
}

func (e *Engine) passiveError(ctx context.Context, now time.Time, cause error) error {
	e.logger.Error("passive pass failed", zap.Error(cause))
	e.notify(ctx, mq.RoutingKeyRunError, mq.RunErrorPayload{
		Kind:       "passive",
		Message:    cause.Error(),
		FailedAt:   now,
		ToAddress:  e.cfg.NotifyEmail,
		Subject:    e.cfg.AddonName + ": passive scan failed",
		SenderName: e.cfg.AddonName,
	})
	return nil
}

// filterIgnored drops threads whose latest message looks self-authored
// or whose subject references the addon's own notifications, so the
// engine never feeds its own output back into the classifier.
func (e *Engine) filterIgnored(threads []model.EmailThread) []model.EmailThread {
	addon := strings.ToLower(e.cfg.AddonName)
	self := strings.ToLower(e.cfg.NotifyEmail)

	out := make([]model.EmailThread, 0, len(threads))
	for _, t := range threads {
		latest := t.Latest()
		if self != "" && strings.EqualFold(latest.Sender, self) {
			continue
		}
		if addon != "" && strings.Contains(strings.ToLower(t.Subject), addon) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// filterSeen drops threads whose latest message the Redis dedupe
// cache already marked as handled. It is a best-effort guard layered
// in front of the durable high-water mark: the two overlapping
// windows (backstop vs. last-seen-plus-buffer) mean the same message
// can surface in two consecutive passes before advanceHighWaterMark
// ever persists, and a Redis outage just falls back to letting
// stopAtLastSeen and the LLM's own idempotence absorb the duplicate.
func (e *Engine) filterSeen(ctx context.Context, threads []model.EmailThread) []model.EmailThread {
	if e.dedup == nil {
		return threads
	}
	out := make([]model.EmailThread, 0, len(threads))
	for _, t := range threads {
		if e.dedup.SeenBefore(ctx, dedupHandlerPassive, t.Latest().ID) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// stopAtLastSeen truncates threads at (and excluding) the first one
// whose latest message matches lastMsgID, guarding against
// reprocessing when two passes observe overlapping time windows.
func stopAtLastSeen(threads []model.EmailThread, lastMsgID string) []model.EmailThread {
	if lastMsgID == "" {
		return threads
	}
	for i, t := range threads {
		if t.Latest().ID == lastMsgID {
			return threads[:i]
		}
	}
	return threads
}

// earliestMessage returns the timestamp and id of the oldest message
// across threads — the high-water mark must advance from what was
// actually observed in the pass, not from whatever dates the LLM
// happens to echo back in its findings.
func earliestMessage(threads []model.EmailThread) (time.Time, string, bool) {
	var earliest time.Time
	var id string
	found := false
	for _, t := range threads {
		for _, e := range t.Emails {
			if e.Date.IsZero() {
				continue
			}
			if !found || e.Date.Before(earliest) {
				earliest = e.Date
				id = e.ID
				found = true
			}
		}
	}
	return earliest, id, found
}
