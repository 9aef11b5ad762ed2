package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mailtriage/internal/model"
	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/trace"
)

// OpenAIClient is the concrete Client: a chat-completion call against
// an OpenAI-compatible endpoint, asked to return a JSON object shaped
// like model.ClassifyResult. The system/user prompt text itself is
// deliberately minimal — prompt engineering is out of scope; this is
// just enough instruction to get a parseable contract back.
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	cb      *circuitbreaker.CircuitBreaker
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1",
		client:  &http.Client{Timeout: 90 * time.Second},
		cb: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    2,
			Timeout:             30 * time.Second,
			HalfOpenMaxRequests: 2,
		}),
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Classify(ctx context.Context, threads []model.EmailThread, cfg TopicConfig) (model.ClassifyResult, error) {
	var result model.ClassifyResult
	start := time.Now()

	err := c.cb.Execute(func() error {
		body, err := json.Marshal(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt(cfg)},
				{Role: "user", Content: userPrompt(threads)},
			},
			ResponseFormat: map[string]string{"type": "json_object"},
		})
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName(), traceID)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("llm api error %d", resp.StatusCode)
		}

		var cr chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return fmt.Errorf("decode response envelope: %w", err)
		}
		if len(cr.Choices) == 0 {
			return fmt.Errorf("llm response had no choices")
		}

		return decodeClassifyResult(cr.Choices[0].Message.Content, &result)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordLLMCallLatency(status, time.Since(start))

	if err != nil {
		return model.ClassifyResult{}, fmt.Errorf("classify: %w", err)
	}
	return result, nil
}

// decodeClassifyResult parses and structurally validates the model's
// JSON body. An unparseable or field-missing payload is a hard error —
// the batch fails rather than silently dropping findings.
func decodeClassifyResult(raw string, out *model.ClassifyResult) error {
	var parsed struct {
		MustDo   *[]model.Finding `json:"mustDo"`
		MustKnow *[]model.Finding `json:"mustKnow"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fmt.Errorf("malformed classify JSON: %w", err)
	}
	if parsed.MustDo == nil || parsed.MustKnow == nil {
		return fmt.Errorf("malformed classify JSON: mustDo and mustKnow arrays are required")
	}
	out.MustDo = *parsed.MustDo
	out.MustKnow = *parsed.MustKnow
	return nil
}

func systemPrompt(cfg TopicConfig) string {
	var b strings.Builder
	b.WriteString("You classify email threads into \"must do\" and \"must know\" buckets. ")
	b.WriteString("Respond only with a JSON object: {\"mustDo\":[...],\"mustKnow\":[...]}. ")
	if len(cfg.MustDoTopics) > 0 {
		b.WriteString("Must-do topics: " + strings.Join(cfg.MustDoTopics, ", ") + ". ")
	}
	if len(cfg.MustKnowTopics) > 0 {
		b.WriteString("Must-know topics: " + strings.Join(cfg.MustKnowTopics, ", ") + ". ")
	}
	if cfg.MustDoOther {
		b.WriteString("You may tag additional must-do topics not listed above. ")
	}
	if cfg.MustKnowOther {
		b.WriteString("You may tag additional must-know topics not listed above. ")
	}
	return b.String()
}

func userPrompt(threads []model.EmailThread) string {
	b, _ := json.Marshal(threads)
	return string(b)
}
