// Package objectstore provides the minimal S3/MinIO operations used for secret
// persistence and state archival, with a local-disk implementation for tests.
package objectstore

import (
	"errors"
	"fmt"
)

const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeBucketNotFound      = "E_BUCKET_NOT_FOUND"
	CodeObjectNotFound      = "E_OBJECT_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodeWriteFailed         = "E_WRITE_FAILED"
	CodeReadFailed          = "E_READ_FAILED"
)

// Error wraps object store failures with a code and a retryability hint.
type Error struct {
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports the retryability hint, used by the retry policy.
func (e *Error) IsRetryable() bool { return e.Retryable }

func wrapError(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// IsNotFound reports whether err means the bucket or object does not exist.
func IsNotFound(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == CodeObjectNotFound || e.Code == CodeBucketNotFound
}
