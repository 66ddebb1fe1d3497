// Package apperr defines the structured error type shared by the scheduling,
// video and record services. Handlers translate it into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_state_transition"
	KindAccessDenied      Kind = "access_denied"
	KindConflict          Kind = "conflict"
	KindDataAccess        Kind = "data_access"
)

// Error is the structured failure returned by service operations.
type Error struct {
	Kind    Kind           `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind, and on Code when the target carries one, so the
// sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithDetail attaches a key/value to the error and returns it.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrAccessDenied      = &Error{Kind: KindAccessDenied}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrDataAccess        = &Error{Kind: KindDataAccess}
)

// Validation reports input rejected before any persistence attempt.
func Validation(field, message string) *Error {
	return (&Error{Kind: KindValidation, Code: "invalid_" + field, Message: message}).WithDetail("field", field)
}

// NotFound reports a missing record, or one the caller may not see.
func NotFound(resource, id string) *Error {
	return (&Error{
		Kind:    KindNotFound,
		Code:    resource + "_not_found",
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}).WithDetail("id", id)
}

// InvalidTransition reports a lifecycle move that the current status forbids.
func InvalidTransition(action, from string) *Error {
	return (&Error{
		Kind:    KindInvalidTransition,
		Code:    "cannot_" + action,
		Message: fmt.Sprintf("cannot %s: appointment is %s", strings.ReplaceAll(action, "_", " "), from),
	}).WithDetail("status", from)
}

// AccessDenied reports a caller who can see a record but may not change it.
func AccessDenied(message string) *Error {
	return &Error{Kind: KindAccessDenied, Code: "access_denied", Message: message}
}

// Conflict reports a write that collides with existing state.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// DataAccess wraps a storage or upstream failure.
func DataAccess(op string, cause error) *Error {
	return &Error{Kind: KindDataAccess, Code: "data_access", Message: op + " failed", Cause: cause}
}

// KindOf returns the Kind of err, or KindDataAccess for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDataAccess
}
