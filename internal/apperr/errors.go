// Package apperr defines the error kinds shared by nomee services and mapped
// onto HTTP statuses at the transport boundary.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal"
)

var (
	// ErrNotFound means the resource is missing or not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated means the request carried no verified identity.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden means the caller is known but may not act.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict means the write collides with existing state.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports a problem with one input field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid creates a ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RateLimitError is returned when a limiter rejects a request.
type RateLimitError struct {
	ResetAt time.Time
}

// Error implements the error interface
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// CodedError attaches a stable machine-readable code to an error. Clients
// switch on Code; Err decides the HTTP status.
type CodedError struct {
	Code string
	Err  error
}

// Error implements the error interface
func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap allows errors.Is and errors.As to see the underlying error
func (e *CodedError) Unwrap() error {
	return e.Err
}

// WithCode wraps err with code.
func WithCode(code string, err error) *CodedError {
	return &CodedError{Code: code, Err: err}
}

// Code returns the first code attached to err, or "".
func Code(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// KindOf classifies err.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		re *RateLimitError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &re):
		return KindRateLimited
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
