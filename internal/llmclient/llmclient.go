// Package llmclient implements an opaque email classifier with a fixed
// JSON contract. Prompt engineering is explicitly out of scope — what
// lives here is the request/response plumbing and the structural
// validation the batcher depends on: a malformed response is always an
// error, never a silently dropped batch.
package llmclient

import (
	"context"

	"mailtriage/internal/model"
)

// TopicConfig is the subset of pkg/config.TriageConfig the classifier
// needs per call.
type TopicConfig struct {
	MustDoTopics   []string
	MustKnowTopics []string
	MustDoOther    bool
	MustKnowOther  bool
}

// Client is the capability the Batcher depends on.
type Client interface {
	// Classify submits one batch of threads and MUST return valid
	// JSON shaped as model.ClassifyResult, or an error.
	Classify(ctx context.Context, threads []model.EmailThread, cfg TopicConfig) (model.ClassifyResult, error)
}
