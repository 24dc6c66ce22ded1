package gateway

import "errors"

// ErrEmptyResponse is returned when a successful envelope carries no payload
// for an operation that requires one.
var ErrEmptyResponse = errors.New("empty response payload")

// ValidationError is a client-side required-field check that failed before
// any request was sent.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

// IsValidation returns true if err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
