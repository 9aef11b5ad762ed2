package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"mailtriage/internal/mailstore"
	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

func (e *Engine) applyLabels(ctx context.Context, result model.ClassifyResult) error {
	var firstErr error
	for _, f := range result.MustDo {
		if err := e.labelFinding(ctx, f, e.cfg.MustDoLabel); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, f := range result.MustKnow {
		if err := e.labelFinding(ctx, f, e.cfg.MustKnowLabel); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// labelFinding resolves f to a concrete message and labels it,
// falling back first to an RFC-822 id lookup and finally to labeling
// the containing thread. Side-effect failures are logged and
// swallowed by the caller — they never fail the run.
func (e *Engine) labelFinding(ctx context.Context, f model.Finding, label string) error {
	if label == "" {
		return nil
	}

	err := e.mail.Label(ctx, f.EmailID, label)
	if err == nil {
		return nil
	}
	if !errors.Is(err, mailstore.ErrNotFound) {
		e.logger.Warn("label by id failed", zap.String("emailId", f.EmailID), zap.Error(err))
	}

	if f.RFC822ID != "" {
		resolved, rerr := e.mail.ResolveByRFC822ID(ctx, f.RFC822ID)
		if rerr == nil {
			return e.mail.Label(ctx, resolved.ID, label)
		}
	}

	if f.ThreadID != "" {
		return e.mail.LabelThread(ctx, f.ThreadID, label)
	}
	return err
}

func (e *Engine) markRead(ctx context.Context, result model.ClassifyResult) {
	mark := func(f model.Finding) {
		if err := e.mail.MarkRead(ctx, f.EmailID); err != nil {
			e.logger.Warn("mark read failed", zap.String("emailId", f.EmailID), zap.Error(err))
		}
	}
	for _, f := range result.MustDo {
		mark(f)
	}
	for _, f := range result.MustKnow {
		mark(f)
	}
}

// archiveUninteresting removes threads with no findings from the
// inbox, after every batch of the current invocation has completed.
// False-positive archival is the highest-cost error this system can
// make, so the guards below are checked unconditionally regardless of
// config.
func (e *Engine) archiveUninteresting(ctx context.Context, threads []model.EmailThread, result model.ClassifyResult) {
	if !e.cfg.RemoveUninterestingFromInbox {
		return
	}

	threadsWithFindings := make(map[string]bool)
	emailsWithFindings := make(map[string]bool)
	collect := func(f model.Finding) {
		if f.ThreadID != "" {
			threadsWithFindings[f.ThreadID] = true
		}
		if f.EmailID != "" {
			emailsWithFindings[f.EmailID] = true
		}
	}
	for _, f := range result.MustDo {
		collect(f)
	}
	for _, f := range result.MustKnow {
		collect(f)
	}

	// Join on EmailID too: the classifier can omit ThreadID on a
	// finding while still naming the message, and an empty ThreadID
	// key must never make every thread archival-eligible.
	hasFinding := func(t model.EmailThread) bool {
		if threadsWithFindings[t.ThreadID] {
			return true
		}
		for _, e := range t.Emails {
			if emailsWithFindings[e.ID] {
				return true
			}
		}
		return false
	}

	for _, t := range threads {
		if hasFinding(t) {
			continue
		}
		if t.HasStarred() {
			metrics.IncrementArchiveSkip("starred")
			continue
		}
		if len(t.Labels) > 0 {
			metrics.IncrementArchiveSkip("labeled")
			continue
		}
		if t.HasImportant() {
			metrics.IncrementArchiveSkip("important")
			continue
		}
		if err := e.mail.RemoveFromInbox(ctx, t.ThreadID); err != nil {
			e.logger.Warn("archive thread failed", zap.String("threadId", t.ThreadID), zap.Error(err))
		}
	}
}
