// Package apperrors provides error code definitions shared by the server
// API, the device transport, and the queue drain classifier.
package apperrors

import (
	"errors"
	"fmt"
)

// Code represents a unique machine-readable error code.
type Code string

const (
	// General errors
	ErrInternal   Code = "INTERNAL_ERROR"
	ErrValidation Code = "VALIDATION_ERROR"
	ErrNotFound   Code = "NOT_FOUND"

	// Coordinate and geofence errors
	ErrInvalidCoordinates Code = "INVALID_COORDINATES"
	ErrTooFarFromStore    Code = "TOO_FAR_FROM_STORE"

	// Visit lifecycle errors
	ErrStoreNotFound     Code = "STORE_NOT_FOUND"
	ErrRepNotFound       Code = "REP_NOT_FOUND"
	ErrVisitNotFound     Code = "VISIT_NOT_FOUND"
	ErrActiveVisitExists Code = "ACTIVE_VISIT_EXISTS"
	ErrAlreadyCheckedOut Code = "ALREADY_CHECKED_OUT"
	ErrVisitTooShort     Code = "VISIT_TOO_SHORT"

	// Storage errors
	ErrStorage    Code = "STORAGE_FAILURE"
	ErrConstraint Code = "CONSTRAINT_VIOLATION"
	ErrQueueFull  Code = "QUEUE_FULL"

	// Transport errors
	ErrUnreachable    Code = "NETWORK_UNREACHABLE"
	ErrTimeout        Code = "REQUEST_TIMEOUT"
	ErrServerError    Code = "SERVER_ERROR"
	ErrRemoteRejected Code = "REMOTE_REJECTED"
)

// AppError represents an application error with code, message and
// optional machine-readable details (measured distance, thresholds, ...)
// so user messages can be actionable.
type AppError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a detail entry and returns the error for chaining.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code Code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code, unwrapping as needed.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the error code from an error chain.
// Errors without an AppError in the chain report ErrInternal.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// DetailsOf extracts the detail map from an error chain, or nil.
func DetailsOf(err error) map[string]interface{} {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}

// IsRetryable classifies an error for the queue drain loop: transient
// transport failures are retryable, business rejections and validation
// failures can never succeed as-is.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrUnreachable, ErrTimeout, ErrServerError:
		return true
	default:
		return false
	}
}
