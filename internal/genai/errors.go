package genai

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned on a 429 from the generation API. RetryAfter is
// the server-suggested wait, already clamped to the configured ceiling.
// QuotaExhausted means the quota limit itself is zero; waiting will not help
// and the caller should fail the job instead of parking it.
type RateLimitError struct {
	RetryAfter     time.Duration
	QuotaExhausted bool
	Message        string
}

func (e *RateLimitError) Error() string {
	if e.QuotaExhausted {
		return fmt.Sprintf("generation quota exhausted: %s", e.Message)
	}
	return fmt.Sprintf("generation rate limited (retry after %s): %s", e.RetryAfter, e.Message)
}

// CapabilityError is returned when the API answers 2xx with text instead of
// an image. That points at a model or config mismatch, not transient load,
// so it is never retried.
type CapabilityError struct {
	Text string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("model returned text instead of an image: %.120s", e.Text)
}

// APIError covers every other non-2xx response. Only server-side failures
// are considered retryable.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation api status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// IsRetryable classifies an error for the transient-failure retry path.
// Rate limiting is handled separately by parking the job, so it is excluded
// here on purpose.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return false
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	// Anything else is a transport-level failure (timeout, connection reset).
	return true
}
