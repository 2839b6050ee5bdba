// Package apperr defines the error kinds surfaced to API callers and the
// envelope they are rendered into at the gateway edge.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindAuthentication Kind = "AuthenticationError"
	KindNotFound       Kind = "NotFoundError"
	KindRateLimit      Kind = "RateLimitError"
	KindDatabase       Kind = "DatabaseError"
	KindInternal       Kind = "InternalError"
)

// Error is an error carrying a Kind and an HTTP-appropriate message. It is
// the only error type handlers need to construct directly; storage failures
// arrive already wrapped as KindDatabase, and any other error that is not an
// *Error maps to KindInternal at the edge.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds; only meaningful for KindRateLimit
	wrapped    error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// StatusCode returns the HTTP status associated with the error's kind.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindDatabase, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a 400-class error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Authentication builds a 401-class error.
func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// NotFound builds a 404-class error for the named resource.
func NotFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// RateLimit builds a 429-class error carrying the caller's retry-after window.
func RateLimit(retryAfter int) *Error {
	return &Error{Kind: KindRateLimit, Message: "rate limit exceeded", RetryAfter: retryAfter}
}

// Database wraps a storage-layer failure as a 500-class error.
func Database(err error) *Error {
	return &Error{Kind: KindDatabase, Message: "database error", wrapped: err}
}

// Internal wraps an unexpected failure as a 500-class error.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", wrapped: err}
}

// As reports whether err (or something it wraps) is an *Error, and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
