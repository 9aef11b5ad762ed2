package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/mq"
)

// checkAndHandleTimeout reaps a hung active run. It distinguishes "a
// chunk has been running too long" from "the next chunk never
// started" — both land on the same terminal status but are detected
// from different evidence.
func (e *Engine) checkAndHandleTimeout(ctx context.Context, now time.Time) (bool, error) {
	status, err := e.kvGetString(ctx, keyStatus)
	if err != nil {
		return false, err
	}
	if model.RunStatus(status) != model.RunStatusRunning {
		return false, nil
	}

	chunkStartedAt, hasChunkStarted, err := e.kvGetTime(ctx, keyChunkStartedAt)
	if err != nil {
		return false, err
	}
	if hasChunkStarted && now.Sub(chunkStartedAt) > ProcessingTimeout {
		return true, e.transitionToTimeout(ctx, now, chunkStartedAt)
	}

	expectedBy, hasExpected, err := e.kvGetTime(ctx, keyExpectedChunkStartBy)
	if err != nil {
		return false, err
	}
	if hasExpected && now.After(expectedBy) {
		return true, e.transitionToTimeout(ctx, now, expectedBy)
	}

	return false, nil
}

func (e *Engine) transitionToTimeout(ctx context.Context, now, stalledSince time.Time) error {
	stats, err := e.finalizeRun(ctx, model.RunStatusTimeout, "chunk did not make progress in time", now)
	if err != nil {
		return fmt.Errorf("transition to timeout: %w", err)
	}

	metrics.IncrementRunTransition(string(model.RunStatusTimeout))
	e.logger.Warn("active run timed out", zap.String("runId", stats.RunID))

	e.notify(ctx, mq.RoutingKeyRunTimeout, mq.RunTimeoutPayload{
		RunID:        stats.RunID,
		Kind:         "active",
		StalledSince: stalledSince,
		ReapedAt:     now,
		ToAddress:    e.cfg.NotifyEmail,
		Subject:      fmt.Sprintf("%s: scan stalled", e.cfg.AddonName),
		SenderName:   e.cfg.AddonName,
	})

	return e.EnsureDispatcher(ctx)
}

// finalizeRun snapshots the current active-run KV state into RunStats,
// records it to history, clears the active run's KV footprint, and
// releases the lock. Every terminal transition (completed/error/
// timeout) goes through this single path.
func (e *Engine) finalizeRun(ctx context.Context, status model.RunStatus, message string, now time.Time) (model.RunStats, error) {
	runID, err := e.kvGetString(ctx, keyRunID)
	if err != nil {
		return model.RunStats{}, err
	}
	timeRange, err := e.kvGetString(ctx, keyTimeRange)
	if err != nil {
		return model.RunStats{}, err
	}
	startedAt, _, err := e.kvGetTime(ctx, keyStartedAt)
	if err != nil {
		return model.RunStats{}, err
	}

	acc, err := e.decodeInFlight(ctx)
	if err != nil {
		return model.RunStats{}, err
	}

	stats := model.RunStats{
		RunID:         runID,
		TimeRange:     timeRange,
		Status:        status,
		Message:       message,
		MustDoCount:   len(acc.MustDo),
		MustKnowCount: len(acc.MustKnow),
		StartedAt:     startedAt,
		EndedAt:       now,
	}

	if err := e.runHistory.Record(ctx, stats); err != nil {
		e.logger.Error("record run history", zap.Error(err))
	}

	statsJSON, err := jsonMarshal(stats)
	if err != nil {
		return model.RunStats{}, err
	}

	if err := e.kv.Set(ctx, keyLatestRunStats, statsJSON); err != nil {
		return model.RunStats{}, err
	}
	if err := e.kv.DeleteMany(ctx,
		keyStatus, keyStatusMsg, keyRunID, keyStartedAt, keyTimeRange,
		keyChunkWindowStart, keyChunkWindowEnd, keyChunkIndex, keyChunkTotal,
		keyAccumulatedInFlight, keyChunkStartedAt, keyExpectedChunkStartBy,
	); err != nil {
		return model.RunStats{}, err
	}
	if err := e.locks.Release(ctx); err != nil {
		return model.RunStats{}, err
	}

	return stats, nil
}
