// Package mailer implements sending one rendered email: send(to,
// subject, htmlBody, senderName). Run-terminal notifications (active
// scan completed/failed, reaped timeout) go through the outbox and
// cmd/notifier drains the job and calls Send, so a slow or down mail
// transport degrades to "retried later" instead of blocking a
// dispatcher tick. The daily digest is the one exception: the engine
// calls Send itself, synchronously, because clearing the accumulator
// is conditioned on a confirmed delivery.
package mailer

import "context"

// Mailer is the capability both the engine (digest send) and
// cmd/notifier (run notifications) depend on.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, senderName string) error
}
