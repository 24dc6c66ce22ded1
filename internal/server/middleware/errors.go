// Package middleware provides the HTTP middleware of the viewer API.
package middleware

import (
	"fmt"
	"net/http"

	apperrors "github.com/3leaps/casegen/internal/errors"
	"github.com/3leaps/casegen/internal/observability"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery turns a panic into a 500 error envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				msg := fmt.Sprintf("panic: %v", rec)
				observability.CLILogger.Error("Handler panicked",
					zap.String("path", r.URL.Path),
					zap.String("request_id", r.Header.Get(apperrors.RequestIDHeader)),
					zap.Any("panic", rec))
				writeErrorResponse(w, r, apperrors.CodeInternal, msg, nil, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is Recovery under the name the router chain uses.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, code, message string, details map[string]any, status int) {
	apperrors.WriteError(w, r, status, code, message, details)
}
