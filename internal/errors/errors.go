// Package errors maps casegen failures to CLI exit codes and to the JSON
// error envelope of the local viewer API.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/poller"
	"github.com/3leaps/casegen/pkg/transport"
	"github.com/3leaps/casegen/pkg/view"
)

// Generic exit statuses not covered by a more specific foundry code.
const (
	exitSuccess = 0
	exitFailure = 1
)

// Error codes of the HTTP envelope.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeUpstream           = "UPSTREAM_ERROR"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeJobFailed          = "JOB_FAILED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// AppError is an error with a code and an exit status.
type AppError struct {
	Code     string
	Message  string
	ExitCode int
	Err      error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewExternalServiceError reports an unavailable dependency.
func NewExternalServiceError(message string) *AppError {
	return &AppError{Code: CodeServiceUnavailable, Message: message, ExitCode: foundry.ExitExternalServiceUnavailable}
}

// WrapInternal wraps err as an internal failure.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	_ = ctx
	return &AppError{Code: CodeInternal, Message: message, ExitCode: exitFailure, Err: err}
}

// HTTPError is the body of an error response.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the envelope every error response uses.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// WriteError writes an error envelope with status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	resp := HTTPErrorResponse{Error: HTTPError{Code: code, Message: message, Details: details}}
	if r != nil {
		resp.Error.RequestID = r.Header.Get(RequestIDHeader)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// RespondWithError classifies err and writes the matching envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	WriteError(w, r, status, code, transport.UserMessage(err), nil)
}

// Classify maps err to an HTTP status and envelope code.
func Classify(err error) (int, string) {
	var appErr *AppError
	switch {
	case stderrors.As(err, &appErr) && appErr.Code == CodeServiceUnavailable:
		return http.StatusServiceUnavailable, appErr.Code
	case gateway.IsValidation(err):
		return http.StatusBadRequest, CodeBadRequest
	case transport.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case poller.IsTimeout(err):
		return http.StatusGatewayTimeout, CodeUpstreamTimeout
	case view.IsJobFailed(err):
		return http.StatusConflict, CodeJobFailed
	case transport.IsNetwork(err), transport.IsAPI(err):
		return http.StatusBadGateway, CodeUpstream
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	var appErr *AppError
	switch {
	case err == nil:
		return exitSuccess
	case stderrors.As(err, &appErr) && appErr.ExitCode != 0:
		return appErr.ExitCode
	case gateway.IsValidation(err):
		return foundry.ExitInvalidArgument
	case stderrors.Is(err, context.Canceled):
		return foundry.ExitSignalInt
	case transport.IsNetwork(err), transport.IsAPI(err), poller.IsTimeout(err):
		return foundry.ExitExternalServiceUnavailable
	default:
		return exitFailure
	}
}
