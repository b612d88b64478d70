package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error. Message is the
// caller-facing text; Cause carries the full detail for server-side logs.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// IsClientError reports whether the error was caused by the request rather than the server
func IsClientError(err error) bool {
	switch GetCode(err) {
	case CodeValidationError, CodeBadInput, CodeTimeout:
		return true
	}
	return false
}

// ClientMessage returns the text safe to show a caller
func ClientMessage(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return internalMessage
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeBadInput        = "BAD_INPUT"
	CodeTimeout         = "TIMEOUT"
	CodeInternalError   = "INTERNAL_ERROR"
)

// MaxMessageLength is the longest caller-facing bad-input message kept intact
const MaxMessageLength = 50

// TruncationMarker replaces the tail of a truncated message
const TruncationMarker = " ... (more text deleted) ..."

const (
	internalMessage      = "Exception during computation"
	timeoutMessage       = "Request timed out during computation"
	memoryMessage        = "Insufficient memory to process this study design"
	interruptedMessage   = "Computation interrupted"
	invalidDesignMessage = "Invalid study design"
)

// Truncate caps a message at MaxMessageLength characters followed by TruncationMarker
func Truncate(message string) string {
	runes := []rune(message)
	if len(runes) <= MaxMessageLength {
		return message
	}
	return string(runes[:MaxMessageLength]) + TruncationMarker
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

// ValidationError keeps the full, possibly enumerated, validator message
func ValidationError(cause error) *AppError {
	return &AppError{Code: CodeValidationError, Message: cause.Error(), Cause: cause}
}

// BadInput truncates the cause's message for the caller
func BadInput(cause error) *AppError {
	return &AppError{Code: CodeBadInput, Message: Truncate(cause.Error()), Cause: cause}
}

// InsufficientMemory hides the raw exhaustion report behind a fixed message
func InsufficientMemory(cause error) *AppError {
	return &AppError{Code: CodeBadInput, Message: memoryMessage, Cause: cause}
}

func Timeout(cause error) *AppError {
	return &AppError{Code: CodeTimeout, Message: timeoutMessage, Cause: cause}
}

func Interrupted(cause error) *AppError {
	return &AppError{Code: CodeBadInput, Message: interruptedMessage, Cause: cause}
}

func InvalidDesign() *AppError {
	return New(CodeBadInput, invalidDesignMessage)
}

// InternalError never exposes its cause to the caller
func InternalError(cause error) *AppError {
	return &AppError{Code: CodeInternalError, Message: internalMessage, Cause: cause}
}
