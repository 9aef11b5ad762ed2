package notifyhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/pkg/mq"
)

type fakeMailer struct {
	err   error
	sends int
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, htmlBody, senderName string) error {
	m.sends++
	return m.err
}

func TestRunCompletedHandler_MalformedPayloadIsPoison(t *testing.T) {
	h := NewRunCompletedHandler(&fakeMailer{}, zap.NewNop())

	err := h.Handle(context.Background(), json.RawMessage(`{not json`))
	require.Error(t, err)
	var poison *mq.PoisonErr
	assert.True(t, errors.As(err, &poison), "malformed payload must be poison so the consumer dead-letters it instead of retrying forever")
}

func TestRunCompletedHandler_SendFailureIsNotPoison(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp unavailable")}
	h := NewRunCompletedHandler(mailer, zap.NewNop())

	payload, _ := json.Marshal(mq.RunCompletedPayload{RunID: "r1", ToAddress: "a@b.com"})
	err := h.Handle(context.Background(), payload)
	require.Error(t, err)
	var poison *mq.PoisonErr
	assert.False(t, errors.As(err, &poison), "a transient send failure should be retried, not dead-lettered")
	assert.Equal(t, 1, mailer.sends)
}

func TestRunErrorHandler_MalformedPayloadIsPoison(t *testing.T) {
	h := NewRunErrorHandler(&fakeMailer{}, zap.NewNop())

	err := h.Handle(context.Background(), json.RawMessage(`not json at all`))
	require.Error(t, err)
	var poison *mq.PoisonErr
	assert.True(t, errors.As(err, &poison))
}

func TestRunTimeoutHandler_MalformedPayloadIsPoison(t *testing.T) {
	h := NewRunTimeoutHandler(&fakeMailer{}, zap.NewNop())

	err := h.Handle(context.Background(), json.RawMessage(`[]`))
	require.Error(t, err)
	var poison *mq.PoisonErr
	assert.True(t, errors.As(err, &poison))
}

func TestDigestSentHandler_MalformedPayloadIsPoison(t *testing.T) {
	h := NewDigestSentHandler(zap.NewNop())

	err := h.Handle(context.Background(), json.RawMessage(`{"must_do_count": "not-an-int"}`))
	require.Error(t, err)
	var poison *mq.PoisonErr
	assert.True(t, errors.As(err, &poison))
}

func TestDigestSentHandler_ValidPayloadSucceeds(t *testing.T) {
	h := NewDigestSentHandler(zap.NewNop())

	payload, _ := json.Marshal(mq.DigestSentPayload{LocalDate: "2024-01-15", MustDoCount: 2})
	err := h.Handle(context.Background(), payload)
	require.NoError(t, err)
}
