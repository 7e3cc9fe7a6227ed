package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// RateLimitError indicates the provider rejected the call with a rate
// limit or overload response. Callers back off and retry.
type RateLimitError struct {
	StatusCode int
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("llm: rate limited (status %d): %v", e.StatusCode, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates the call timed out before the provider responded.
// Callers back off and retry.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("llm: request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// classifyErr wraps provider failures in typed errors so the agent can
// distinguish retryable throttling and timeouts from hard failures.
// wrapped carries the eris context; raw is inspected for the SDK error.
func classifyErr(wrapped, raw error) error {
	var apierr *sdk.Error
	if errors.As(raw, &apierr) {
		switch apierr.StatusCode {
		case 429, 529:
			return &RateLimitError{StatusCode: apierr.StatusCode, Err: wrapped}
		case 408, 504:
			return &TimeoutError{Err: wrapped}
		}
		return wrapped
	}

	if errors.Is(raw, context.DeadlineExceeded) {
		return &TimeoutError{Err: wrapped}
	}
	var netErr net.Error
	if errors.As(raw, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: wrapped}
	}

	return wrapped
}
