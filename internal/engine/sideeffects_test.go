package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/mailstore"
	"mailtriage/internal/model"
	"mailtriage/pkg/config"
)

func TestLabelFinding_DirectHit(t *testing.T) {
	mail := newFakeMailStore()
	e := &Engine{mail: mail, logger: zap.NewNop()}

	err := e.labelFinding(context.Background(), model.Finding{EmailID: "e1"}, "must-do")
	require.NoError(t, err)
	assert.Equal(t, "must-do", mail.labeled["e1"])
}

func TestLabelFinding_EmptyLabelSkipped(t *testing.T) {
	mail := newFakeMailStore()
	e := &Engine{mail: mail, logger: zap.NewNop()}

	err := e.labelFinding(context.Background(), model.Finding{EmailID: "e1"}, "")
	require.NoError(t, err)
	assert.Empty(t, mail.labeled)
}

func TestLabelFinding_FallsBackToRFC822ID(t *testing.T) {
	mail := newFakeMailStore()
	mail.labelErr = mailstore.ErrNotFound
	mail.resolved["rfc-1"] = model.Email{ID: "resolved-1"}
	mail.labelOK["resolved-1"] = true

	e := &Engine{mail: mail, logger: zap.NewNop()}

	err := e.labelFinding(context.Background(), model.Finding{EmailID: "missing", RFC822ID: "rfc-1"}, "must-do")
	require.NoError(t, err)
	assert.Equal(t, "must-do", mail.labeled["resolved-1"])
}

func TestLabelFinding_FallsBackToThreadWhenRFC822Unresolvable(t *testing.T) {
	mail := newFakeMailStore()
	mail.labelErr = mailstore.ErrNotFound

	e := &Engine{mail: mail, logger: zap.NewNop()}

	err := e.labelFinding(context.Background(), model.Finding{EmailID: "missing", ThreadID: "t1"}, "must-do")
	require.NoError(t, err)
	assert.Equal(t, "must-do", mail.threadLabeled["t1"])
}

func TestArchiveUninteresting_SkipsThreadsWithFindings(t *testing.T) {
	mail := newFakeMailStore()
	e := &Engine{mail: mail, logger: zap.NewNop(), cfg: config.TriageConfig{RemoveUninterestingFromInbox: true}}

	threads := []model.EmailThread{
		{ThreadID: "has-finding"},
		{ThreadID: "no-finding"},
	}
	result := model.ClassifyResult{MustDo: []model.Finding{{ThreadID: "has-finding"}}}

	e.archiveUninteresting(context.Background(), threads, result)

	assert.False(t, mail.archived["has-finding"], "thread with a finding should not be archived")
	assert.True(t, mail.archived["no-finding"], "thread with no findings should be archived")
}

func TestArchiveUninteresting_JoinsOnEmailIDWhenThreadIDMissing(t *testing.T) {
	mail := newFakeMailStore()
	e := &Engine{mail: mail, logger: zap.NewNop(), cfg: config.TriageConfig{RemoveUninterestingFromInbox: true}}

	threads := []model.EmailThread{
		{ThreadID: "has-finding", Emails: []model.Email{{ID: "e1"}}},
		{ThreadID: "no-finding", Emails: []model.Email{{ID: "e2"}}},
	}
	// The finding names the email but not its thread.
	result := model.ClassifyResult{MustDo: []model.Finding{{EmailID: "e1"}}}

	e.archiveUninteresting(context.Background(), threads, result)

	assert.False(t, mail.archived["has-finding"], "thread containing the found email must not be archived even without a ThreadID match")
	assert.True(t, mail.archived["no-finding"])
}

func TestArchiveUninteresting_DisabledByConfig(t *testing.T) {
	mail := newFakeMailStore()
	e := &Engine{mail: mail, logger: zap.NewNop(), cfg: config.TriageConfig{RemoveUninterestingFromInbox: false}}

	e.archiveUninteresting(context.Background(), []model.EmailThread{{ThreadID: "t1"}}, model.ClassifyResult{})

	assert.Empty(t, mail.archived, "archival disabled by config must not archive anything")
}

func TestArchiveUninteresting_GuardsStarred(t *testing.T) {
	mail := newFakeMailStore()
	e := &Engine{mail: mail, logger: zap.NewNop(), cfg: config.TriageConfig{RemoveUninterestingFromInbox: true}}

	threads := []model.EmailThread{{
		ThreadID: "starred-thread",
		Emails:   []model.Email{{ID: "m1", Starred: true}},
	}}
	e.archiveUninteresting(context.Background(), threads, model.ClassifyResult{})

	assert.False(t, mail.archived["starred-thread"], "starred thread must never be archived")
}

func TestArchiveUninteresting_GuardsUserLabel(t *testing.T) {
	mail := newFakeMailStore()
	e := &Engine{mail: mail, logger: zap.NewNop(), cfg: config.TriageConfig{RemoveUninterestingFromInbox: true}}

	threads := []model.EmailThread{{ThreadID: "labeled-thread", Labels: []string{"important-to-me"}}}
	e.archiveUninteresting(context.Background(), threads, model.ClassifyResult{})

	assert.False(t, mail.archived["labeled-thread"], "thread with a user label must never be archived")
}

func TestArchiveUninteresting_GuardsProviderImportant(t *testing.T) {
	mail := newFakeMailStore()
	e := &Engine{mail: mail, logger: zap.NewNop(), cfg: config.TriageConfig{RemoveUninterestingFromInbox: true}}

	threads := []model.EmailThread{{
		ThreadID: "important-thread",
		Emails:   []model.Email{{ID: "m1", Important: true}},
	}}
	e.archiveUninteresting(context.Background(), threads, model.ClassifyResult{})

	assert.False(t, mail.archived["important-thread"], "provider-important thread must never be archived")
}

func TestMarkRead_MarksBothBuckets(t *testing.T) {
	mail := newFakeMailStore()
	e := &Engine{mail: mail, logger: zap.NewNop()}

	e.markRead(context.Background(), model.ClassifyResult{
		MustDo:   []model.Finding{{EmailID: "e1"}},
		MustKnow: []model.Finding{{EmailID: "e2"}},
	})

	assert.True(t, mail.read["e1"])
	assert.True(t, mail.read["e2"])
}
