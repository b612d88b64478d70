package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Client-caused failures
	ErrValidation        = errors.New("invalid study design")
	ErrBadInput          = errors.New("computation rejected input")
	ErrTimeout           = errors.New("request timed out during computation")
	ErrResourceExhausted = errors.New("insufficient resources")
	ErrInterrupted       = errors.New("computation interrupted")

	// Server-caused failures
	ErrInternal = errors.New("exception during computation")
)

// ValidationError is a client-caused rejection of a study design. Message is
// human readable and may enumerate several causes.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a validation error with a formatted message
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// EngineValidationError is raised by the computation engine when it rejects
// the assembled bundle.
type EngineValidationError struct {
	Message string
}

func (e *EngineValidationError) Error() string {
	return e.Message
}

func (e *EngineValidationError) Unwrap() error {
	return ErrBadInput
}

// NewEngineValidationError creates an engine rejection with a formatted message
func NewEngineValidationError(format string, args ...interface{}) error {
	return &EngineValidationError{Message: fmt.Sprintf(format, args...)}
}

// Error checking helpers
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsEngineValidationError(err error) bool {
	var ev *EngineValidationError
	return errors.As(err, &ev)
}

func IsResourceExhausted(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
