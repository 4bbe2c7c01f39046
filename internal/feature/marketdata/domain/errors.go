// Package domain defines domain-level errors for the marketdata feature.
package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors for market data operations.
var (
	// ErrNotFound indicates that the upstream returned a well-formed response without the requested entity.
	ErrNotFound = errors.New("not found")

	// ErrCacheMiss is returned by cache tiers when no usable entry exists.
	// Tiers that are unreachable also report a miss rather than an error.
	ErrCacheMiss = errors.New("cache miss")

	// ErrNoAdapters indicates that the orchestrator has no registered adapters.
	ErrNoAdapters = errors.New("no adapters registered")

	// ErrInvalidCode indicates a stock code that is not a 6-digit domestic code.
	ErrInvalidCode = errors.New("invalid stock code")
)

// ErrorKind classifies failures so callers can branch without string matching.
type ErrorKind string

const (
	KindTransport         ErrorKind = "transport"
	KindParse             ErrorKind = "parse"
	KindNotFound          ErrorKind = "not_found"
	KindFallbackExhausted ErrorKind = "fallback_exhausted"
	KindCacheUnavailable  ErrorKind = "cache_unavailable"
	KindInvalidRequest    ErrorKind = "invalid_request"
)

// Error is a classified failure with the adapter and operation that produced it.
type Error struct {
	Kind    ErrorKind
	Adapter string
	Op      string
	// Attempts is the number of calls made before giving up. Zero when unknown.
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Adapter != "" {
		b.WriteString(e.Adapter)
		b.WriteString(" ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " (after %d attempts)", e.Attempts)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransportError wraps a network-level failure.
func NewTransportError(adapter, op string, err error) *Error {
	return &Error{Kind: KindTransport, Adapter: adapter, Op: op, Err: err}
}

// NewParseError wraps a decode failure of an upstream payload.
func NewParseError(adapter, op string, err error) *Error {
	return &Error{Kind: KindParse, Adapter: adapter, Op: op, Err: err}
}

// NewNotFoundError reports a missing entity. The result matches ErrNotFound with errors.Is.
func NewNotFoundError(adapter, op, what string) *Error {
	return &Error{Kind: KindNotFound, Adapter: adapter, Op: op, Err: fmt.Errorf("%s: %w", what, ErrNotFound)}
}

// NewInvalidRequestError reports malformed caller input.
func NewInvalidRequestError(op string, err error) *Error {
	return &Error{Kind: KindInvalidRequest, Op: op, Err: err}
}

// AdapterFailure is the last error one adapter returned during a fallback traversal.
type AdapterFailure struct {
	Adapter string
	Err     error
}

// FallbackExhaustedError is returned when every adapter failed for one request.
type FallbackExhaustedError struct {
	Op       string
	Failures []AdapterFailure
}

func (e *FallbackExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s: %v", e.Op, ErrNoAdapters)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Adapter, f.Err))
	}
	return fmt.Sprintf("%s: all adapters failed: %s", e.Op, strings.Join(parts, "; "))
}

// Unwrap exposes each adapter's error to errors.Is / errors.As.
func (e *FallbackExhaustedError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+1)
	if len(e.Failures) == 0 {
		out = append(out, ErrNoAdapters)
	}
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// KindOf returns the classification of err. Unclassified errors are reported as transport
// failures when they look like network errors, otherwise as an empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var fe *FallbackExhaustedError
	if errors.As(err, &fe) {
		return KindFallbackExhausted
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if looksLikeNetworkFailure(err) {
		return KindTransport
	}
	return ""
}

// retryableMarkers are message fragments that identify network-level failures.
var retryableMarkers = []string{
	"network",
	"timeout",
	"timed out",
	"econnrefused",
	"connection refused",
	"connection reset",
	"fetch failed",
}

// IsRetryable reports whether another attempt against the same adapter may succeed.
// Only transport failures qualify. Caller cancellation never does.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == KindTransport
	}
	return looksLikeNetworkFailure(err)
}

func looksLikeNetworkFailure(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
