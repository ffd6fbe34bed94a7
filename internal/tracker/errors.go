package tracker

import (
	"errors"
	"fmt"
	"time"
)

// FailureReason categorizes why a status fetch did not yield an outcome.
type FailureReason string

const (
	// ReasonTransient marks failures worth retrying: network errors,
	// timeouts, 408, 429, and 5xx responses.
	ReasonTransient FailureReason = "transient"
	// ReasonPermanent marks failures that retrying cannot fix, such as
	// authentication and other non-retryable 4xx responses.
	ReasonPermanent FailureReason = "permanent"
	// ReasonUnsupported means no real provider exists for the courier.
	ReasonUnsupported FailureReason = "unsupported"
	// ReasonCircuitOpen means the courier's circuit tripped earlier in the
	// cycle and the fetch was skipped without any attempt.
	ReasonCircuitOpen FailureReason = "circuit_open"
)

// ProviderError wraps a fetch failure with its classification.
type ProviderError struct {
	Reason FailureReason
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Reason extracts the failure classification from err. Errors that are not
// ProviderError, including context cancellation, are treated as transient.
func Reason(err error) FailureReason {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Reason
	}
	return ReasonTransient
}

// httpStatusError preserves the response code and any Retry-After value so
// the retry loop can classify the failure and honor server pacing.
type httpStatusError struct {
	status     int
	retryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

func (e *httpStatusError) transient() bool {
	switch {
	case e.status == 408, e.status == 429:
		return true
	case e.status >= 500:
		return true
	default:
		return false
	}
}
