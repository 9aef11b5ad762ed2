// Package trace carries a per-run correlation id through context, HTTP
// headers, and MQ payloads so log lines and notification jobs for the
// same dispatcher tick can be joined after the fact.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type ctxKey int

const traceIDKey ctxKey = iota

// New generates a fresh correlation id.
func New() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext returns the correlation id carried by ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithContext attaches id to ctx, generating one if id is empty.
func WithContext(ctx context.Context, id string) context.Context {
	if id == "" {
		id = New()
	}
	return context.WithValue(ctx, traceIDKey, id)
}

// HeaderName is the HTTP header the LLM and MailStore HTTP clients set
// to propagate the correlation id on their outgoing requests.
func HeaderName() string {
	return "X-Trace-ID"
}
