package engine

import (
	"context"

	"mailtriage/internal/llmclient"
	"mailtriage/internal/mailstore"
	"mailtriage/internal/model"
)

// fakeMailStore is an in-memory mailstore.Store for tests that never
// touch a real mail provider.
type fakeMailStore struct {
	labeled       map[string]string // emailID -> label
	threadLabeled map[string]string // threadID -> label
	read          map[string]bool
	archived      map[string]bool
	resolved      map[string]model.Email // rfc822ID -> email
	labelErr      error                  // returned by Label, unless the emailID is in labelOK
	labelOK       map[string]bool
}

func newFakeMailStore() *fakeMailStore {
	return &fakeMailStore{
		labeled:       map[string]string{},
		threadLabeled: map[string]string{},
		read:          map[string]bool{},
		archived:      map[string]bool{},
		resolved:      map[string]model.Email{},
		labelOK:       map[string]bool{},
	}
}

func (f *fakeMailStore) Search(ctx context.Context, q mailstore.Query, limit int) ([]model.EmailThread, error) {
	return nil, nil
}

func (f *fakeMailStore) MarkRead(ctx context.Context, emailID string) error {
	f.read[emailID] = true
	return nil
}

func (f *fakeMailStore) Label(ctx context.Context, emailID, label string) error {
	if f.labelErr != nil && !f.labelOK[emailID] {
		return f.labelErr
	}
	f.labeled[emailID] = label
	return nil
}

func (f *fakeMailStore) LabelThread(ctx context.Context, threadID, label string) error {
	f.threadLabeled[threadID] = label
	return nil
}

func (f *fakeMailStore) RemoveFromInbox(ctx context.Context, threadID string) error {
	f.archived[threadID] = true
	return nil
}

func (f *fakeMailStore) ResolveByRFC822ID(ctx context.Context, rfc822ID string) (model.Email, error) {
	e, ok := f.resolved[rfc822ID]
	if !ok {
		return model.Email{}, mailstore.ErrNotFound
	}
	return e, nil
}

// fakeLLMClient returns preset results in call order.
type fakeLLMClient struct {
	results []model.ClassifyResult
	errs    []error
	calls   []int // batch sizes observed
}

func (f *fakeLLMClient) Classify(ctx context.Context, threads []model.EmailThread, cfg llmclient.TopicConfig) (model.ClassifyResult, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, len(threads))
	if idx < len(f.errs) && f.errs[idx] != nil {
		return model.ClassifyResult{}, f.errs[idx]
	}
	if idx < len(f.results) {
		return f.results[idx], nil
	}
	return model.ClassifyResult{}, nil
}
