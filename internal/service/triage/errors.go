package triage

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrRequestInFlight is returned when a conversation already has a
	// pending assessment; sends are single-flight per conversation.
	ErrRequestInFlight = errors.New("assessment already in flight for this conversation")

	// ErrEmptyMessage rejects blank input before any network work happens.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong rejects input over the accepted length.
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

// UpstreamError wraps a failed backend call with enough detail to decide
// whether a retry is worthwhile.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream triage backend: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream triage backend: %s", e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class is transient: timeouts,
// server-side errors, and rate limiting. Validation failures are not.
func (e *UpstreamError) Retryable() bool {
	if e.StatusCode == 429 || e.StatusCode >= 500 {
		return true
	}
	if e.StatusCode >= 400 {
		return false
	}
	return isTimeout(e.Err)
}

// retryable classifies any assessor error.
func retryable(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable()
	}
	return isTimeout(err)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
