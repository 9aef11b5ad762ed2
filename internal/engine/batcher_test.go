package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/config"
)

func thread(id string, bodyLen int) model.EmailThread {
	return model.EmailThread{
		ThreadID: id,
		Subject:  "subject-" + id,
		Emails: []model.Email{
			{ID: id + "-1", Subject: "subject-" + id, Sender: "someone@example.com", Body: strings.Repeat("x", bodyLen)},
		},
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 50, estimateTokens(model.EmailThread{}), "empty thread should cost only the flat overhead")

	withBody := thread("t1", 100)
	want := int(float64(len(withBody.Subject)+len(withBody.Emails[0].Subject)+len(withBody.Emails[0].Sender)+100)*TokensPerChar) + 50
	assert.Equal(t, want, estimateTokens(withBody))
}

func TestPackBatches_SplitsOnBudget(t *testing.T) {
	// Each thread's body alone is large enough to exceed MaxTokens on its
	// own, so every thread must land in its own batch.
	big := MaxTokens * 4
	threads := []model.EmailThread{thread("a", big), thread("b", big), thread("c", big)}

	batches := packBatches(threads)
	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Len(t, b, 1)
	}
}

func TestPackBatches_GroupsSmallThreads(t *testing.T) {
	threads := []model.EmailThread{thread("a", 10), thread("b", 10), thread("c", 10)}
	batches := packBatches(threads)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
}

func TestPackBatches_Empty(t *testing.T) {
	assert.Nil(t, packBatches(nil))
}

func TestRunBatcher_AppliesLabelsAndAggregates(t *testing.T) {
	mail := newFakeMailStore()
	llm := &fakeLLMClient{
		results: []model.ClassifyResult{{
			MustDo:   []model.Finding{{EmailID: "e1", ThreadID: "t1"}},
			MustKnow: []model.Finding{{EmailID: "e2", ThreadID: "t1"}},
		}},
	}

	e := &Engine{
		mail:   mail,
		llm:    llm,
		logger: zap.NewNop(),
		cfg: config.TriageConfig{
			MustDoLabel:   "must-do",
			MustKnowLabel: "must-know",
		},
	}

	result, err := e.runBatcher(context.Background(), []model.EmailThread{thread("t1", 10)})
	require.NoError(t, err)
	assert.Len(t, result.MustDo, 1)
	assert.Len(t, result.MustKnow, 1)
	assert.Equal(t, "must-do", mail.labeled["e1"])
	assert.Equal(t, "must-know", mail.labeled["e2"])
}

func TestRunBatcher_PropagatesClassifyError(t *testing.T) {
	mail := newFakeMailStore()
	llm := &fakeLLMClient{errs: []error{errors.New("boom")}}

	e := &Engine{mail: mail, llm: llm, logger: zap.NewNop()}

	_, err := e.runBatcher(context.Background(), []model.EmailThread{thread("t1", 10)})
	require.Error(t, err)
}

func TestRunBatcher_MarksReadWhenConfigured(t *testing.T) {
	mail := newFakeMailStore()
	llm := &fakeLLMClient{
		results: []model.ClassifyResult{{MustDo: []model.Finding{{EmailID: "e1", ThreadID: "t1"}}}},
	}
	e := &Engine{
		mail:   mail,
		llm:    llm,
		logger: zap.NewNop(),
		cfg:    config.TriageConfig{MarkProcessedAsRead: true},
	}

	_, err := e.runBatcher(context.Background(), []model.EmailThread{thread("t1", 10)})
	require.NoError(t, err)
	assert.True(t, mail.read["e1"])
}
