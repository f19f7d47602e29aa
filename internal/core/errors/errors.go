package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	HttpInternalError       = "internal_error"
	HttpInvalidJsonError    = "invalid_json"
	HttpValidationError     = "validation_failed"
	HttpRateLimitedError    = "rate_limited"
	HttpNotFoundError       = "not_found"
	HttpPayloadTooLargeErr  = "payload_too_large"
	HttpInvalidQueryError   = "invalid_query"
	msgInternalPersistError = "internal error"
)

// ErrorResponse is the error response body shared by every endpoint.
type ErrorResponse struct {
	Error     string      `json:"error"`
	ErrorType string      `json:"error_type"`
	Field     string      `json:"field,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

var (
	// ErrValidation marks malformed, missing, or out-of-range input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited means the client must back off.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound marks an unknown site, funnel, goal, or alert reference.
	ErrNotFound = errors.New("not found")
	// ErrPersistence marks a storage failure. Its detail is never shown to clients.
	ErrPersistence = errors.New("persistence failure")
)

// FieldError is one field-level violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// ValidationError carries one or more field-level violations.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}

// Add appends a violation.
func (e *ValidationError) Add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Empty reports whether no violations were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns nil when there are no violations, so it can be returned as an error directly.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.String()
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FirstField returns the field name of the first violation.
func (e *ValidationError) FirstField() string {
	if len(e.Fields) == 0 {
		return ""
	}
	return e.Fields[0].Field
}

// RateLimitedError tells the client when it may retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// NotFoundf wraps ErrNotFound with a message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Persistence wraps a storage error so callers can map it to a generic 500.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Response maps an error onto an HTTP status and a client-safe body.
// Persistence and unknown errors collapse to a generic internal error.
func Response(err error) (int, ErrorResponse) {
	var (
		verr *ValidationError
		rerr *RateLimitedError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{
			Error:     verr.Error(),
			ErrorType: HttpValidationError,
			Field:     verr.FirstField(),
			Details:   verr.Fields,
		}
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), ErrorType: HttpValidationError}
	case errors.As(err, &rerr):
		return http.StatusTooManyRequests, ErrorResponse{
			Error:     "rate limit exceeded",
			ErrorType: HttpRateLimitedError,
			Details:   map[string]interface{}{"retry_after_seconds": int(rerr.RetryAfter.Seconds() + 0.999)},
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded", ErrorType: HttpRateLimitedError}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), ErrorType: HttpNotFoundError}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: msgInternalPersistError, ErrorType: HttpInternalError}
	}
}
