// Package apperr holds the user-facing failures of the API. Each error knows
// the HTTP status it maps to and the message that is safe to show a client.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an expected, client-visible failure.
type Error struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so that errors produced by WithMessage or Wrap still
// satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// StatusCode returns the HTTP status of the error.
func (e *Error) StatusCode() int {
	return e.Status
}

// WithMessage returns a copy of e carrying a more specific client message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Status: e.Status, Message: msg, Err: e.Err}
}

// Wrap returns a copy of e that records cause for logging.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Status: e.Status, Message: e.Message, Err: cause}
}

func newError(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Authentication failures.
var (
	ErrMissingToken       = newError("MISSING_TOKEN", http.StatusUnauthorized, "No token provided, authorization denied")
	ErrInvalidToken       = newError("INVALID_TOKEN", http.StatusUnauthorized, "Token is not valid")
	ErrAccountNotFound    = newError("ACCOUNT_NOT_FOUND", http.StatusUnauthorized, "Account no longer exists")
	ErrInvalidCredentials = newError("INVALID_CREDENTIALS", http.StatusUnauthorized, "Invalid email or password")
)

// Authorization failures.
var (
	ErrAccountDeactivated   = newError("ACCOUNT_DEACTIVATED", http.StatusForbidden, "Account has been deactivated")
	ErrForbidden            = newError("FORBIDDEN", http.StatusForbidden, "You do not have permission to access this resource")
	ErrVerificationRequired = newError("VERIFICATION_REQUIRED", http.StatusForbidden, "Account must be verified by an administrator")
	ErrNotOwner             = newError("NOT_OWNER", http.StatusForbidden, "Only the assigned doctor can update this appointment")
)

// Business-rule and request-shape failures.
var (
	ErrInvalidRequest    = newError("INVALID_REQUEST", http.StatusBadRequest, "Invalid request")
	ErrDoctorUnavailable = newError("DOCTOR_UNAVAILABLE", http.StatusBadRequest, "Doctor is not available for booking")
	ErrDateInPast        = newError("DATE_IN_PAST", http.StatusBadRequest, "Appointment must be scheduled in the future")
	ErrSlotTaken         = newError("SLOT_TAKEN", http.StatusBadRequest, "This time slot is already booked")
	ErrInvalidTransition = newError("INVALID_TRANSITION", http.StatusBadRequest, "Invalid appointment status transition")
	ErrTooLateToCancel   = newError("TOO_LATE_TO_CANCEL", http.StatusBadRequest, "Appointments cannot be cancelled less than 24 hours in advance")
)

// Lookup failures.
var (
	ErrNotFound = newError("NOT_FOUND", http.StatusNotFound, "Resource not found")
	ErrConflict = newError("CONFLICT", http.StatusConflict, "Resource already exists")
)

// As extracts the *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// NotFound builds a 404 naming the missing resource.
func NotFound(resource string) *Error {
	return ErrNotFound.WithMessage(resource + " not found")
}

// Invalid builds a 400 with a specific message.
func Invalid(msg string) *Error {
	return ErrInvalidRequest.WithMessage(msg)
}
