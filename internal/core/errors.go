package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Handlers map them to HTTP statuses with errors.Is / errors.As.
var (
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
	ErrRemote     = errors.New("remote service failure")

	ErrNotFound        = errors.New("not found")
	ErrDoubtNotFound   = fmt.Errorf("doubt %w", ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("payment %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
)

// ReasonNotSubscribed is the PermissionError reason for callers without an approved payment.
const ReasonNotSubscribed = "not subscribed"

// ValidationError reports rejected input. It never reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PermissionError reports a caller that may not perform the operation.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string { return "permission denied: " + e.Reason }

func (e *PermissionError) Unwrap() error { return ErrPermission }

// NotSubscribed reports whether the denial came from the subscription gate.
func (e *PermissionError) NotSubscribed() bool { return e.Reason == ReasonNotSubscribed }

func denied(reason string) error {
	return &PermissionError{Reason: reason}
}

// RemoteError wraps a failure of the identity provider or a store.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

// Unwrap exposes both ErrRemote and the underlying cause.
func (e *RemoteError) Unwrap() []error { return []error{ErrRemote, e.Err} }

func remote(op string, err error) error {
	return &RemoteError{Op: op, Err: err}
}
