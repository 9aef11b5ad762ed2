package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/llmclient"
	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

// fixedBatchOverheadTokens approximates the system/user prompt scaffolding
// every batch carries regardless of thread content.
const fixedBatchOverheadTokens = 500

func estimateTokens(t model.EmailThread) int {
	chars := len(t.Subject)
	for _, e := range t.Emails {
		chars += len(e.Subject) + len(e.Sender) + len(e.Body)
	}
	return int(float64(chars)*TokensPerChar) + 50
}

// packBatches groups threads into LLM batches under MaxTokens using a
// cheap char-based estimator. A single thread that alone exceeds the
// budget is submitted by itself rather than dropped.
func packBatches(threads []model.EmailThread) [][]model.EmailThread {
	var batches [][]model.EmailThread
	var current []model.EmailThread
	budget := fixedBatchOverheadTokens

	for _, t := range threads {
		cost := estimateTokens(t)
		if len(current) > 0 && budget+cost > MaxTokens {
			batches = append(batches, current)
			current = nil
			budget = fixedBatchOverheadTokens
		}
		current = append(current, t)
		budget += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// runBatcher submits threads to the LLM in token-budgeted batches,
// applies side effects per batch, and returns the concatenated
// classification result. Ignore-rule filtering must already have been
// applied by the caller.
func (e *Engine) runBatcher(ctx context.Context, threads []model.EmailThread) (model.ClassifyResult, error) {
	var total model.ClassifyResult

	topics := llmclient.TopicConfig{
		MustDoTopics:   e.cfg.MustDoTopics,
		MustKnowTopics: e.cfg.MustKnowTopics,
		MustDoOther:    e.cfg.MustDoOther,
		MustKnowOther:  e.cfg.MustKnowOther,
	}

	for _, batch := range packBatches(threads) {
		start := time.Now()
		result, err := e.llm.Classify(ctx, batch, topics)
		if err != nil {
			return total, fmt.Errorf("classify batch of %d threads: %w", len(batch), err)
		}
		e.logger.Debug("classified batch", zap.Int("threads", len(batch)), zap.Duration("took", time.Since(start)))

		if err := e.applyLabels(ctx, result); err != nil {
			e.logger.Error("apply labels", zap.Error(err))
		}
		if e.cfg.MarkProcessedAsRead {
			e.markRead(ctx, result)
		}

		total.MustDo = append(total.MustDo, result.MustDo...)
		total.MustKnow = append(total.MustKnow, result.MustKnow...)
	}

	metrics.IncrementEmailsClassified("must_do", len(total.MustDo))
	metrics.IncrementEmailsClassified("must_know", len(total.MustKnow))

	return total, nil
}
