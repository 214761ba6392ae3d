package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for registry calls. Retry
// and circuit breaker decisions are made on the category, never on messages.
type ErrorCategory string

const (
	// ErrorNotFound means the registry has no record for the identifier. Terminal.
	ErrorNotFound ErrorCategory = "not_found"
	// ErrorTimeout means an outbound call exceeded its deadline.
	ErrorTimeout ErrorCategory = "timeout"
	// ErrorProviderOutage covers connection failures and 5xx answers.
	ErrorProviderOutage ErrorCategory = "provider_outage"
	// ErrorRateLimited means the registry answered 429.
	ErrorRateLimited ErrorCategory = "rate_limited"
	// ErrorBadData means a response arrived but its structure was not the expected one.
	ErrorBadData ErrorCategory = "bad_data"
	// ErrorInternal is anything else, including caller cancellation.
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError carries a categorized registry failure.
type ProviderError struct {
	Category     ErrorCategory
	Jurisdiction Jurisdiction
	Message      string
	Underlying   error
	Retryable    bool
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("registry %s [%s]: %s: %v", e.Jurisdiction, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("registry %s [%s]: %s", e.Jurisdiction, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError sets Retryable for timeout, provider_outage and rate_limited.
func NewProviderError(category ErrorCategory, j Jurisdiction, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:     category,
		Jurisdiction: j,
		Message:      message,
		Underlying:   underlying,
		Retryable:    IsRetryableCategory(category),
	}
}

func IsRetryableCategory(c ErrorCategory) bool {
	return c == ErrorTimeout || c == ErrorProviderOutage || c == ErrorRateLimited
}

func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory returns the category of err. Deadline errors that were never
// wrapped count as timeouts, everything else unknown is internal.
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorInternal
}

// FailureMessage is the text stored on a failed LookupResult for err.
// Timeouts always read "timeout" so operators can tell them apart.
func FailureMessage(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Category == ErrorTimeout {
			return "timeout"
		}
		return pe.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}
