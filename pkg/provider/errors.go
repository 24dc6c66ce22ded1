package provider

import (
	"errors"
	"fmt"
)

// Reasons an export could not be stored. A *SinkError wraps one of them when
// the backend failure was recognized.
var (
	ErrNotFound           = errors.New("object not found")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnavailable        = errors.New("storage unavailable")
	ErrInvalidKey         = errors.New("invalid key")
	ErrInvalidDestination = errors.New("invalid destination")
)

// SinkError reports a failed sink operation on one address.
type SinkError struct {
	Op       string
	Sink     ProviderType
	Location string
	Err      error
}

func (e *SinkError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("%s %s: %v", e.Sink, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Sink, e.Op, e.Location, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means nothing is stored under the key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied reports whether the sink refused the caller.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrInvalidCredentials)
}

// Hint suggests a fix for a failed export, or "" when there is none.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrBucketNotFound):
		return "check the bucket name in the s3:// destination"
	case errors.Is(err, ErrInvalidCredentials):
		return "check the AWS credentials (casegen doctor --provider s3)"
	case errors.Is(err, ErrAccessDenied):
		return "the credentials in use may not write to this destination"
	case errors.Is(err, ErrUnavailable):
		return "the storage service is busy or down, retry later"
	case errors.Is(err, ErrInvalidKey):
		return "export names must stay inside the destination"
	}
	return ""
}
