package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound        = errors.New("resource not found")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrConflict        = errors.New("resource conflict")
	ErrPolicyViolation = errors.New("policy violation")
	ErrRetryable       = errors.New("temporarily unavailable")
	ErrInternal        = errors.New("internal server error")
	ErrValidation      = errors.New("validation error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError. Details carry the conflicting state
// (e.g. the open session's punch-in time) so callers can correct and retry.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// StateConflict rejects an operation that contradicts current session or
// workflow state. The code names the violated rule (ALREADY_PUNCHED_IN,
// NO_OPEN_SESSION, NOT_PENDING, ...). Never retried automatically: repeating
// the call without correction reproduces the same conflict.
func StateConflict(code, message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// PolicyViolation rejects an operation that breaks a configured leave policy
// rule (notice period, consecutive-day cap, insufficient balance).
func PolicyViolation(rule, message string) *AppError {
	return &AppError{
		Err:        ErrPolicyViolation,
		Code:       rule,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// Retryable signals a transient storage condition (lock timeout, serialization
// failure) that survived internal retries. Callers may retry after backoff.
func Retryable(message string) *AppError {
	return &AppError{
		Err:        ErrRetryable,
		Code:       "RETRYABLE",
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// CodeOf returns the AppError code, or empty string for non-application errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
