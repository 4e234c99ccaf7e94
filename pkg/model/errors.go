package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure.
type ErrorCode string

const (
	ErrConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrIdentity      ErrorCode = "IDENTITY_ERROR"
	ErrCapacity      ErrorCode = "CAPACITY_ERROR"
	ErrProtocol      ErrorCode = "PROTOCOL_ERROR"
	ErrDeadlock      ErrorCode = "DEADLOCK"
	ErrValidation    ErrorCode = "VALIDATION_ERROR"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrInternal      ErrorCode = "INTERNAL_ERROR"
)

// ThreadError is returned by every failing scheduler operation.
// The operation leaves scheduler state unchanged.
type ThreadError struct {
	Op      string
	Code    ErrorCode
	TID     ThreadID
	Message string
}

func (e *ThreadError) Error() string {
	return fmt.Sprintf("thread library error: %s: %s", e.Op, e.Message)
}

// Is matches any *ThreadError carrying the same code, so callers can write
// errors.Is(err, &ThreadError{Code: ErrIdentity}).
func (e *ThreadError) Is(target error) bool {
	var te *ThreadError
	if !errors.As(target, &te) {
		return false
	}
	return te.Code == e.Code && (te.Op == "" || te.Op == e.Op)
}

// NewThreadError builds a ThreadError with a formatted message.
func NewThreadError(op string, code ErrorCode, tid ThreadID, format string, args ...any) *ThreadError {
	return &ThreadError{Op: op, Code: code, TID: tid, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first ThreadError or APIError in err's chain,
// or "" if there is none.
func CodeOf(err error) ErrorCode {
	var te *ThreadError
	if errors.As(err, &te) {
		return te.Code
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// APIError is a structured error returned by the inspector API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a thread state transition is invalid.
type InvalidTransitionError struct {
	TID  ThreadID
	From ThreadState
	To   ThreadState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid thread state transition: %s → %s (thread %d)", e.From, e.To, e.TID)
}
