package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrLoginInProgress      = errors.New("login already in progress")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrGatewayClosed        = errors.New("gateway closed")
	ErrSessionClosed        = errors.New("session closed")
	ErrPaymentInProgress    = errors.New("payment in progress")
	ErrNoPendingPayment     = errors.New("no pending payment")
	ErrPaymentCancelled     = errors.New("payment cancelled")
	ErrInvalidTransition    = errors.New("invalid payment transition")
	ErrVehicleNotFound      = errors.New("vehicle not found")
)

// ValidationError is raised before any network call for bad operator input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ServerError is a non-2xx answer to a command.
type ServerError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: server returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Detail)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// ConnectionError wraps transport failures (dial, request, stream drop).
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
