// Package mailstore defines the mail provider capability the engine
// depends on, plus an HTTP adapter that speaks it over a REST API with
// a small search query grammar. Any concrete mail provider sits behind
// that same HTTP contract; provider-specific glue is explicitly out of
// scope.
package mailstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mailtriage/internal/model"
)

// Store is the capability the engine consumes. search's query grammar
// recognises after:<unix>, before:<unix>, is:unread, in:inbox,
// rfc822msgid:<id> — built with Query below rather than handed to
// callers as a raw string.
type Store interface {
	Search(ctx context.Context, query Query, limit int) ([]model.EmailThread, error)
	MarkRead(ctx context.Context, emailID string) error
	Label(ctx context.Context, emailID, label string) error
	LabelThread(ctx context.Context, threadID, label string) error
	RemoveFromInbox(ctx context.Context, threadID string) error
	ResolveByRFC822ID(ctx context.Context, rfc822ID string) (model.Email, error)
}

// Query builds the MailStore search grammar.
type Query struct {
	After      time.Time
	Before     time.Time
	UnreadOnly bool
	InboxOnly  bool
	RFC822ID   string
}

// String renders the grammar MailStore.search expects.
func (q Query) String() string {
	var parts []string
	if !q.After.IsZero() {
		parts = append(parts, "after:"+strconv.FormatInt(q.After.Unix(), 10))
	}
	if !q.Before.IsZero() {
		parts = append(parts, "before:"+strconv.FormatInt(q.Before.Unix(), 10))
	}
	if q.UnreadOnly {
		parts = append(parts, "is:unread")
	}
	if q.InboxOnly {
		parts = append(parts, "in:inbox")
	}
	if q.RFC822ID != "" {
		parts = append(parts, "rfc822msgid:"+q.RFC822ID)
	}
	return strings.Join(parts, " ")
}

// ErrNotFound is returned by ResolveByRFC822ID when no message
// matches.
var ErrNotFound = fmt.Errorf("message not found")
