package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrUnauthenticated = New("UNAUTHENTICATED", http.StatusUnauthorized, "authentication required")
	ErrForbidden       = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound        = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrInvalidState    = New("INVALID_STATE", http.StatusUnprocessableEntity, "transition not permitted from current state")
	ErrExpired         = New("EXPIRED", http.StatusUnauthorized, "credential has expired")
	ErrInvalidCode     = New("INVALID_CODE", http.StatusUnauthorized, "verification code is incorrect")
	ErrLocked          = New("LOCKED", http.StatusTooManyRequests, "account temporarily locked")
	ErrRateLimited     = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests")
	ErrValidation      = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrConflict        = New("CONFLICT", http.StatusConflict, "concurrent update lost the race")
	ErrInactiveAccount = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrInternal        = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same taxonomy code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
