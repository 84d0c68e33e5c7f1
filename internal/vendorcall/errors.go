package vendorcall

import (
	"errors"
	"fmt"
)

// ErrCapExceeded fails a call fast before any network dispatch when the
// provider's daily budget would be exceeded.
var ErrCapExceeded = errors.New("vendor daily spend cap exceeded")

// ErrUnknownProvider is returned for providers without configuration.
var ErrUnknownProvider = errors.New("unknown vendor provider")

// TransientError covers timeouts, connection errors, HTTP 429 and 5xx.
// The gateway retries these per its backoff policy.
type TransientError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient vendor error: %s returned %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("transient vendor error: %s: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError covers non-429 4xx responses. Never retried.
type PermanentError struct {
	Provider   string
	StatusCode int
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent vendor error: %s returned %d", e.Provider, e.StatusCode)
}

// IsTransient reports whether err should be retried by the gateway.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
