package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError indicates that no response was received: DNS failure,
// connection refused, timeout, or cancellation.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError indicates the server answered outside the 2xx range.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: http status %d", e.Method, e.URL, e.Status)
}

// APIError is the user-facing failure of an API call. It is produced either
// from an HTTPError (Status set, message from the fixed status table) or from
// an envelope whose code signals failure despite a 2xx transport status.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Code is the envelope code. Zero when the failure came from HTTP status.
	Code int

	// Message is safe to show to users.
	Message string

	// Err is the underlying HTTPError, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error (code %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// DecodeError indicates a successful response whose payload could not be
// decoded into the requested type.
type DecodeError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return "decode " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusMessage maps an HTTP status to the fixed user-facing message table.
func StatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusInternalServerError:
		return "internal server error"
	default:
		return "network error"
	}
}

// asAPIError re-raises an HTTPError as an APIError. Other errors pass through.
func asAPIError(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return &APIError{
			Status:  httpErr.Status,
			Message: StatusMessage(httpErr.Status),
			Err:     httpErr,
		}
	}
	return err
}

// IsNetwork returns true if no response was received.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsNotFound returns true if the server reported 404.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsAPI returns true if the error is an APIError.
func IsAPI(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// UserMessage returns text suitable for showing to a user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if IsNetwork(err) {
		return StatusMessage(0)
	}
	return err.Error()
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}
