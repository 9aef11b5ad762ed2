// Package util holds small engine-local helpers that don't belong to
// any single component: error-kind classification and the passive-pass
// dedupe cache layered on top of the high-water mark.
package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"
)

// ErrorKind is one of the rows in the engine's error handling table.
type ErrorKind string

const (
	ErrorKindConfiguration     ErrorKind = "configuration"
	ErrorKindTransientProvider ErrorKind = "transient_provider"
	ErrorKindLLMMalformed      ErrorKind = "llm_malformed"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindSideEffect        ErrorKind = "side_effect"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// Classify maps an error to the policy row it falls under. Unlike a
// generic retry classifier, this engine never retries in-run — an
// error always propagates up and fails the run. The engine's terminal
// transitions do not call Classify; it only labels an error.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}

	errStr := err.Error()

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || strings.Contains(errStr, "malformed classify JSON") {
		return ErrorKindLLMMalformed
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return ErrorKindTransientProvider
	}
	if strings.Contains(errStr, "mailstore") {
		return ErrorKindTransientProvider
	}

	if strings.Contains(errStr, "missing") && strings.Contains(errStr, "api key") {
		return ErrorKindConfiguration
	}

	return ErrorKindUnknown
}
