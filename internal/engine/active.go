package engine

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailtriage/internal/digestrender"
	"mailtriage/internal/lock"
	"mailtriage/internal/mailstore"
	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/mq"
)

const activeSearchLimit = 500

var timeRangePattern = regexp.MustCompile(`^(\d+)\s*days?$`)

// ErrLockHeld is returned by Start when another workflow already
// holds the lock.
type ErrLockHeld struct {
	HeldKind model.LockKind
}

func (e ErrLockHeld) Error() string {
	return fmt.Sprintf("another %s workflow is already running", e.HeldKind)
}

// resolveTimeRange turns a symbolic range like "7days" or "1day" into
// a concrete [start,end) window ending at now.
func resolveTimeRange(timeRange string, now time.Time) (time.Time, time.Time, error) {
	m := timeRangePattern.FindStringSubmatch(strings.TrimSpace(timeRange))
	if m == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("unrecognised time range %q", timeRange)
	}
	days, err := strconv.Atoi(m[1])
	if err != nil || days <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("unrecognised time range %q", timeRange)
	}
	end := now
	start := now.Add(-time.Duration(days) * 24 * time.Hour)
	return start, end, nil
}

// Start begins a user-initiated active scan over timeRange (e.g.
// "7days"). It refuses if any lock is already held.
func (e *Engine) Start(ctx context.Context, timeRange string) error {
	now := e.clock.Now()

	start, end, err := resolveTimeRange(timeRange, now)
	if err != nil {
		return err
	}

	if err := e.locks.Acquire(ctx, model.LockKindActive, now); err != nil {
		if err == lock.ErrHeld {
			held, _ := e.locks.Current(ctx)
			kind := model.LockKindActive
			if held != nil {
				kind = held.Kind
			}
			metrics.IncrementLockContention(string(model.LockKindActive), string(kind))
			return ErrLockHeld{HeldKind: kind}
		}
		return fmt.Errorf("start active scan: %w", err)
	}

	if err := e.startLocked(ctx, timeRange, start, end, now); err != nil {
		_ = e.locks.Release(ctx)
		_ = e.EnsureDispatcher(ctx)
		e.notifyError(ctx, "active", now, err)
		return err
	}
	return nil
}

func (e *Engine) startLocked(ctx context.Context, timeRange string, start, end, now time.Time) error {
	chunkTotal := int(math.Max(1, math.Ceil(float64(end.Sub(start))/float64(Chunk))))

	values := map[string]string{
		keyRunID:      uuid.NewString(),
		keyTimeRange:  timeRange,
		keyStatus:     string(model.RunStatusRunning),
		keyStatusMsg:  "starting",
		keyChunkIndex: "0",
		keyChunkTotal: strconv.Itoa(chunkTotal),
	}
	setTime(values, keyStartedAt, now)
	setTime(values, keyChunkWindowStart, start)
	setTime(values, keyChunkWindowEnd, end)
	setTime(values, keyExpectedChunkStartBy, now.Add(KickoffDelay).Add(expectedStartBuffer(KickoffDelay)))

	if err := e.kv.SetMany(ctx, values); err != nil {
		return fmt.Errorf("init chunk state: %w", err)
	}
	if err := e.encodeInFlight(ctx, model.AccumulatorFile{}); err != nil {
		return err
	}

	if err := e.triggers.DeleteHandler(ctx, handlerDispatcher); err != nil {
		return fmt.Errorf("free dispatcher trigger slot: %w", err)
	}
	if err := e.triggers.CreateOneOff(ctx, handlerChunkStep, KickoffDelay); err != nil {
		return fmt.Errorf("install chunk kickoff: %w", err)
	}
	return nil
}

// Step advances the active run by one chunk. Invoked by the chunk
// kickoff one-off or, once the run is underway, by the dispatcher.
func (e *Engine) Step(ctx context.Context) error {
	now := e.clock.Now()

	if err := e.EnsureDispatcher(ctx); err != nil {
		e.logger.Error("ensure dispatcher at chunk start", zap.Error(err))
	}

	if err := e.kv.Set(ctx, keyChunkStartedAt, now.Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if err := e.kv.Delete(ctx, keyExpectedChunkStartBy); err != nil {
		return err
	}

	windowStart, _, err := e.kvGetTime(ctx, keyChunkWindowStart)
	if err != nil {
		return err
	}
	windowEnd, _, err := e.kvGetTime(ctx, keyChunkWindowEnd)
	if err != nil {
		return err
	}
	chunkIndex, err := e.kvGetInt(ctx, keyChunkIndex, 0)
	if err != nil {
		return err
	}
	chunkTotal, err := e.kvGetInt(ctx, keyChunkTotal, 1)
	if err != nil {
		return err
	}

	w0 := windowStart.Add(time.Duration(chunkIndex) * Chunk)
	if !w0.Before(windowEnd) {
		return e.finalizeActiveCompleted(ctx, now)
	}
	w1 := w0.Add(Chunk)
	if w1.After(windowEnd) {
		w1 = windowEnd
	}

	start := time.Now()
	threads, err := e.mail.Search(ctx, mailstore.Query{
		After:      w0,
		Before:     w1,
		UnreadOnly: e.cfg.UnreadOnly,
		InboxOnly:  e.cfg.InboxOnly,
	}, activeSearchLimit)
	if err != nil {
		metrics.RecordChunkDuration("error", time.Since(start))
		return e.failActiveRun(ctx, now, fmt.Errorf("search chunk [%s,%s): %w", w0, w1, err))
	}
	threads = e.filterIgnored(threads)

	result, err := e.runBatcher(ctx, threads)
	if err != nil {
		metrics.RecordChunkDuration("error", time.Since(start))
		return e.failActiveRun(ctx, now, err)
	}
	e.archiveUninteresting(ctx, threads, result)

	acc, err := e.decodeInFlight(ctx)
	if err != nil {
		return e.failActiveRun(ctx, now, err)
	}
	acc.MustDo = append(acc.MustDo, result.MustDo...)
	acc.MustKnow = append(acc.MustKnow, result.MustKnow...)
	acc.TotalProcessed += len(threads)
	if acc.FirstDate.IsZero() {
		acc.FirstDate = w0
	}
	acc.LastDate = w1
	if err := e.encodeInFlight(ctx, acc); err != nil {
		return e.failActiveRun(ctx, now, err)
	}

	metrics.RecordChunkDuration("completed", time.Since(start))

	chunkIndex++
	if err := e.kv.Delete(ctx, keyChunkStartedAt); err != nil {
		return err
	}

	if chunkIndex < chunkTotal {
		values := map[string]string{
			keyChunkIndex: strconv.Itoa(chunkIndex),
			keyStatusMsg:  fmt.Sprintf("chunk %d of %d done", chunkIndex, chunkTotal),
		}
		setTime(values, keyExpectedChunkStartBy, now.Add(DispatcherInterval).Add(expectedStartBuffer(DispatcherInterval)))
		return e.kv.SetMany(ctx, values)
	}

	return e.finalizeActiveCompleted(ctx, now)
}

func (e *Engine) failActiveRun(ctx context.Context, now time.Time, cause error) error {
	if err := e.kv.Delete(ctx, keyChunkStartedAt); err != nil {
		e.logger.Error("clear chunkStartedAt on failure", zap.Error(err))
	}
	stats, err := e.finalizeRun(ctx, model.RunStatusError, cause.Error(), now)
	if err != nil {
		return fmt.Errorf("finalize error run: %w", err)
	}
	metrics.IncrementRunTransition(string(model.RunStatusError))
	e.notify(ctx, mq.RoutingKeyRunError, mq.RunErrorPayload{
		RunID:      stats.RunID,
		Kind:       "active",
		Message:    cause.Error(),
		FailedAt:   now,
		ToAddress:  e.cfg.NotifyEmail,
		Subject:    fmt.Sprintf("%s: scan failed", e.cfg.AddonName),
		SenderName: e.cfg.AddonName,
	})
	if err := e.EnsureDispatcher(ctx); err != nil {
		e.logger.Error("reinstate dispatcher after error", zap.Error(err))
	}
	return cause
}

func (e *Engine) finalizeActiveCompleted(ctx context.Context, now time.Time) error {
	acc, err := e.decodeInFlight(ctx)
	if err != nil {
		return err
	}

	stats, err := e.finalizeRun(ctx, model.RunStatusCompleted, "scan complete", now)
	if err != nil {
		return fmt.Errorf("finalize completed run: %w", err)
	}
	metrics.IncrementRunTransition(string(model.RunStatusCompleted))

	html := digestrender.Render(acc, e.cfg.AddonName)
	e.notify(ctx, mq.RoutingKeyRunCompleted, mq.RunCompletedPayload{
		RunID:         stats.RunID,
		Kind:          "active",
		RangeStart:    acc.FirstDate,
		RangeEnd:      acc.LastDate,
		MustDoCount:   len(acc.MustDo),
		MustKnowCount: len(acc.MustKnow),
		CompletedAt:   now,
		ToAddress:     e.cfg.NotifyEmail,
		Subject:       fmt.Sprintf("%s: scan complete", e.cfg.AddonName),
		HTMLBody:      html,
		SenderName:    e.cfg.AddonName,
	})

	return e.EnsureDispatcher(ctx)
}

func (e *Engine) notifyError(ctx context.Context, kind string, now time.Time, cause error) {
	e.notify(ctx, mq.RoutingKeyRunError, mq.RunErrorPayload{
		Kind:       kind,
		Message:    cause.Error(),
		FailedAt:   now,
		ToAddress:  e.cfg.NotifyEmail,
		Subject:    fmt.Sprintf("%s: scan failed to start", e.cfg.AddonName),
		SenderName: e.cfg.AddonName,
	})
}
