package mailstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mailtriage/internal/model"
	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/trace"
)

// HTTPStore is the concrete Store adapter: a circuit-breaker-wrapped
// HTTP client against the mail provider's REST façade. A slow or
// broken provider must not wedge a chunk past its budget, so every
// call carries a hard client-side timeout well under
// PROCESSING_TIMEOUT in addition to the breaker.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	cb      *circuitbreaker.CircuitBreaker
}

func NewHTTPStore(baseURL string) *HTTPStore {
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}
	return &HTTPStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 20 * time.Second},
		cb:      circuitbreaker.New(cbConfig),
	}
}

func (s *HTTPStore) Search(ctx context.Context, query Query, limit int) ([]model.EmailThread, error) {
	var threads []model.EmailThread
	err := s.call(ctx, "/search", map[string]any{
		"query": query.String(),
		"limit": limit,
	}, &threads)
	if err != nil {
		return nil, fmt.Errorf("mailstore search: %w", err)
	}
	return threads, nil
}

func (s *HTTPStore) MarkRead(ctx context.Context, emailID string) error {
	return s.call(ctx, "/mark-read", map[string]any{"emailId": emailID}, nil)
}

func (s *HTTPStore) Label(ctx context.Context, emailID, label string) error {
	return s.call(ctx, "/label", map[string]any{"emailId": emailID, "label": label}, nil)
}

func (s *HTTPStore) LabelThread(ctx context.Context, threadID, label string) error {
	return s.call(ctx, "/label-thread", map[string]any{"threadId": threadID, "label": label}, nil)
}

func (s *HTTPStore) RemoveFromInbox(ctx context.Context, threadID string) error {
	return s.call(ctx, "/remove-inbox", map[string]any{"threadId": threadID}, nil)
}

func (s *HTTPStore) ResolveByRFC822ID(ctx context.Context, rfc822ID string) (model.Email, error) {
	var email model.Email
	err := s.call(ctx, "/resolve", map[string]any{"rfc822Id": rfc822ID}, &email)
	if err != nil {
		return model.Email{}, fmt.Errorf("mailstore resolve %q: %w", rfc822ID, err)
	}
	return email, nil
}

func (s *HTTPStore) call(ctx context.Context, path string, body any, out any) error {
	start := time.Now()
	err := s.cb.Execute(func() error {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName(), traceID)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			metrics.RecordHTTPRequestDuration("POST", "mailstore"+path, "error", time.Since(start))
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			metrics.RecordHTTPRequestDuration("POST", "mailstore"+path, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("mailstore %s: %w", path, ErrNotFound)
			}
			return fmt.Errorf("mailstore %s: status %d", path, resp.StatusCode)
		}
		metrics.RecordHTTPRequestDuration("POST", "mailstore"+path, "200", time.Since(start))

		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
	if err != nil {
		return fmt.Errorf("mailstore call %s: %w", path, err)
	}
	return nil
}
