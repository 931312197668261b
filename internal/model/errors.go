package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means the backend has no contact with the requested id.
	ErrNotFound = errors.New("contact not found")

	// ErrConflict means an enrichment job is already running for the contact.
	// Callers treat it as a soft success.
	ErrConflict = errors.New("enrichment already in progress")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// TransportError is a failed round trip to the backend: network failure,
// unexpected status, or an undecodable body.
type TransportError struct {
	Op  string // e.g. "fetch contact 42"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
