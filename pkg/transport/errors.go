package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCanceled is returned when the caller's context is canceled before the
// completion resolves.
var ErrCanceled = errors.New("completion request canceled")

// TransportError is returned once every attempt has failed on a network error
// or a non-success HTTP status. Cause holds the last failure.
type TransportError struct {
	Attempts int
	Status   int // last HTTP status, 0 when the last failure was not an HTTP response
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("completion request failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// TimeoutError is returned when the whole request, streaming included, exceeds its bound.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Timeout <= 0 {
		return "completion request timed out"
	}
	return fmt.Sprintf("completion request timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// StatusError describes a non-success HTTP response from the completion endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d", e.Status)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// ParseError describes a response body or stream frame that could not be decoded.
// Frame-level parse errors are logged and skipped.
type ParseError struct {
	Data string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable fragment %q: %v", e.Data, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
