package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks an operation attempted with an unsatisfied gate
	ErrValidation = errors.New("validation failed")
	// ErrDispatch marks a batch that could not be submitted or confirmed
	ErrDispatch = errors.New("dispatch failed")
	// ErrProtocol marks an unexpected status or shape from a collaborator
	ErrProtocol = errors.New("protocol error")
	// ErrTimeout marks a polling budget that ran out
	ErrTimeout = errors.New("timed out")
	// ErrTokenMismatch marks arithmetic across different assets
	ErrTokenMismatch = errors.New("token mismatch")
)

// ValidationError reports which operation was rejected and why
type ValidationError struct {
	Op     string
	Reason string
}

// NewValidationError creates a validation error for op
func NewValidationError(op, reason string) *ValidationError {
	return &ValidationError{Op: op, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ProtocolError carries the unexpected status and body unmodified
type ProtocolError struct {
	Source string
	Status int
	Body   string
}

func (e *ProtocolError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Source, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Source, e.Status, e.Body)
}

// Unwrap lets errors.Is match ErrProtocol
func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}
