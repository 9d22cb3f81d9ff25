package secrets

import (
	"errors"
	"fmt"
)

var (
	ErrSecretNotFound         = errors.New("secret not found")
	ErrMalformedReference     = errors.New("malformed secret reference")
	ErrStoreUnavailable       = errors.New("secret store unavailable")
	ErrUnsupportedPersistence = errors.New("unsupported secret persistence")
)

// SecretResolutionError reports that a configuration could not be fully
// hydrated. The coordinate is kept for callers but left out of the message.
type SecretResolutionError struct {
	Coordinate string
	Err        error
}

func (e *SecretResolutionError) Error() string {
	return fmt.Sprintf("secret resolution failed: %v", e.Err)
}

func (e *SecretResolutionError) Unwrap() error { return e.Err }

// IsRetryable is false: a missing or malformed secret does not fix itself.
func (e *SecretResolutionError) IsRetryable() bool { return false }

func resolutionError(coordinate string, kind error, format string, args ...any) *SecretResolutionError {
	msg := fmt.Sprintf(format, args...)
	return &SecretResolutionError{Coordinate: coordinate, Err: fmt.Errorf("%w: %s", kind, msg)}
}
