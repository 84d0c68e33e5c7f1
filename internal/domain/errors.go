package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in QUEUED status")

	// ErrSubscriptionNotFound is returned for unknown webhook subscription ids
	ErrSubscriptionNotFound = errors.New("webhook subscription not found")

	// ErrFailureNotFound is returned for unknown dead-letter ids
	ErrFailureNotFound = errors.New("delivery failure not found")

	// ErrMaxAttemptsExceeded marks a job as terminally failed
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")
)

// ValidationError rejects a malformed job payload at the enqueue
// boundary. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid payload: " + e.Reason
	}
	return fmt.Sprintf("invalid payload: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a field-scoped validation error.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a payload validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RetryableError wraps transient failures that should consume a retry
// attempt and put the job back on the queue.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError marks err as retryable.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err should trigger a requeue.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
