package errors

import (
	"fmt"
)

// ErrorCode represents a categorized error type
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"

	// Cryptographic errors
	ErrCodeInvalidKeyLength     ErrorCode = "INVALID_KEY_LENGTH"
	ErrCodeMalformedEnvelope    ErrorCode = "MALFORMED_ENVELOPE"
	ErrCodeCorruptedBase64      ErrorCode = "CORRUPTED_BASE64"
	ErrCodeKeyDerivationFailed  ErrorCode = "KEY_DERIVATION_FAILED"
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"

	// Worker protocol errors
	ErrCodeUnknownOperation ErrorCode = "UNKNOWN_OPERATION"
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeWorkerStopped    ErrorCode = "WORKER_STOPPED"

	// Validation errors
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// GetUserMessage extracts a user-friendly message from an error.
// Errors without an explicit user message fall back to a generic line so
// internal detail never reaches callers by accident.
func GetUserMessage(err error) string {
	if appErr, ok := err.(*AppError); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "An internal error occurred"
}
