package mq

import (
	"encoding/json"
	"time"
)

// Routing keys for the notification events the worker emits through the
// outbox and the notifier consumes. A topic exchange means a future
// consumer can bind on "run.*" without touching these constants.
const (
	RoutingKeyRunCompleted = "run.completed"
	RoutingKeyRunError     = "run.error"
	RoutingKeyRunTimeout   = "run.timeout"
	RoutingKeyDigestSent   = "digest.sent"
)

// RunCompletedPayload reports an active scan run that reached a
// terminal "completed" state (passive passes never emit it). It carries the fully rendered email so
// the notifier only has to call Mailer.Send.
type RunCompletedPayload struct {
	RunID         string    `json:"run_id"`
	Kind          string    `json:"kind"` // "active" or "passive"
	RangeStart    time.Time `json:"range_start"`
	RangeEnd      time.Time `json:"range_end"`
	MustDoCount   int       `json:"must_do_count"`
	MustKnowCount int       `json:"must_know_count"`
	CompletedAt   time.Time `json:"completed_at"`
	ToAddress     string    `json:"to_address"`
	Subject       string    `json:"subject"`
	HTMLBody      string    `json:"html_body"`
	SenderName    string    `json:"sender_name"`
}

// RunErrorPayload reports a run that reached a terminal "error" state.
type RunErrorPayload struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	FailedAt   time.Time `json:"failed_at"`
	ToAddress  string    `json:"to_address"`
	Subject    string    `json:"subject"`
	SenderName string    `json:"sender_name"`
}

// RunTimeoutPayload reports a run reaped by the stall/timeout check
// because no progress was observed for longer than the stall window.
type RunTimeoutPayload struct {
	RunID        string    `json:"run_id"`
	Kind         string    `json:"kind"`
	StalledSince time.Time `json:"stalled_since"`
	ReapedAt     time.Time `json:"reaped_at"`
	ToAddress    string    `json:"to_address"`
	Subject      string    `json:"subject"`
	SenderName   string    `json:"sender_name"`
}

// DigestSentPayload reports the once-per-local-day digest send that
// drains the accumulator.
type DigestSentPayload struct {
	LocalDate     string    `json:"local_date"` // YYYY-MM-DD in the configured timezone
	MustDoCount   int       `json:"must_do_count"`
	MustKnowCount int       `json:"must_know_count"`
	SentAt        time.Time `json:"sent_at"`
	ToAddress     string    `json:"to_address"`
	Subject       string    `json:"subject"`
	HTMLBody      string    `json:"html_body"`
	SenderName    string    `json:"sender_name"`
}

// Event is the envelope carried inside the AMQP body so a single queue
// can, in principle, multiplex several payload shapes.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent marshals payload and wraps it with its routing-key type so a
// consumer that multiplexes several payload shapes off one queue can
// dispatch on Type before unmarshaling Data.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: data}, nil
}
