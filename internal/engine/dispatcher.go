package engine

import (
	"context"
	"time"

	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

// Tick is the dispatcher's per-invocation contract: reap a hung run if
// one exists, otherwise advance whichever workflow is due. It is the
// sole recurring timer installed on the host.
func (e *Engine) Tick(ctx context.Context) error {
	start := time.Now()
	now := e.clock.Now()
	branch := "idle"
	defer func() { metrics.RecordDispatcherTick(branch, time.Since(start)) }()

	timedOut, err := e.checkAndHandleTimeout(ctx, now)
	if err != nil {
		return err
	}
	if timedOut {
		branch = "timeout"
		return nil
	}

	status, err := e.kvGetString(ctx, keyStatus)
	if err != nil {
		return err
	}
	if model.RunStatus(status) == model.RunStatusRunning {
		branch = "active"
		return e.Step(ctx)
	}

	due, err := e.passivePassDue(ctx, now)
	if err != nil {
		return err
	}
	if due && e.cfg.IsComplete() {
		branch = "passive"
		if err := e.kv.Set(ctx, keyPassiveLastRunAt, now.Format(time.RFC3339Nano)); err != nil {
			return err
		}
		return e.PassivePass(ctx)
	}

	return nil
}

func (e *Engine) passivePassDue(ctx context.Context, now time.Time) (bool, error) {
	lastRun, ok, err := e.kvGetTime(ctx, keyPassiveLastRunAt)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Sub(lastRun) >= DispatcherInterval, nil
}
