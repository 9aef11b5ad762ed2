package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != "" {
		t.Errorf("Classify(nil) = %q, want empty", got)
	}
}

func TestClassify_Timeout(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != ErrorKindTimeout {
		t.Errorf("Classify(DeadlineExceeded) = %q, want %q", got, ErrorKindTimeout)
	}
	wrapped := fmt.Errorf("chunk step: %w", context.DeadlineExceeded)
	if got := Classify(wrapped); got != ErrorKindTimeout {
		t.Errorf("Classify(wrapped deadline) = %q, want %q", got, ErrorKindTimeout)
	}
}

func TestClassify_TransientProvider(t *testing.T) {
	urlErr := &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}
	if got := Classify(urlErr); got != ErrorKindTransientProvider {
		t.Errorf("Classify(url.Error) = %q, want %q", got, ErrorKindTransientProvider)
	}

	if got := Classify(errors.New("mailstore: search failed")); got != ErrorKindTransientProvider {
		t.Errorf("Classify(mailstore error) = %q, want %q", got, ErrorKindTransientProvider)
	}
}

func TestClassify_Configuration(t *testing.T) {
	if got := Classify(errors.New("missing openai api key")); got != ErrorKindConfiguration {
		t.Errorf("Classify(missing api key) = %q, want %q", got, ErrorKindConfiguration)
	}
}

func TestClassify_LLMMalformed(t *testing.T) {
	var syntaxErr *json.SyntaxError
	err := json.Unmarshal([]byte("{not json"), &struct{}{})
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("setup error: expected a json.SyntaxError from this malformed payload, got %v (%T)", err, err)
	}
	if got := Classify(err); got != ErrorKindLLMMalformed {
		t.Errorf("Classify(syntax error) = %q, want %q", got, ErrorKindLLMMalformed)
	}

	if got := Classify(errors.New("malformed classify JSON from batch 3")); got != ErrorKindLLMMalformed {
		t.Errorf("Classify(malformed classify JSON) = %q, want %q", got, ErrorKindLLMMalformed)
	}
}

func TestClassify_Unknown(t *testing.T) {
	if got := Classify(errors.New("something unexpected")); got != ErrorKindUnknown {
		t.Errorf("Classify(generic) = %q, want %q", got, ErrorKindUnknown)
	}
}
