package errors

import (
	"context"
	"fmt"

	"pastecrypt/internal/tracing"
)

// Common error creators for frequent use cases

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewRequestError creates an error for a request rejected before dispatch
func NewRequestError(field, message string) *AppError {
	return New(ErrCodeInvalidRequest, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid request: %s", message))
}

// NewUnknownOperationError creates an error for an unrecognized operation tag
func NewUnknownOperationError(operation string) *AppError {
	return New(ErrCodeUnknownOperation, fmt.Sprintf("unknown operation %q", operation)).
		WithContext("operation", operation).
		WithUserMessage("Unknown operation")
}

// NewInternalError wraps an unexpected failure without exposing its detail
func NewInternalError(err error) *AppError {
	return Wrap(err, ErrCodeInternalError, "unexpected internal failure")
}

// Context helpers

// FromContext extracts error context from a context.Context if present
func FromContext(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	errorCtx := make(map[string]interface{})

	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		errorCtx["request_id"] = requestID
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		errorCtx["trace_id"] = traceID
	}
	if operation := tracing.GetOperation(ctx); operation != "" {
		errorCtx["operation"] = operation
	}

	return errorCtx
}

// WithContextFromRequest adds request context to an error
func WithContextFromRequest(err *AppError, ctx context.Context) *AppError {
	if err == nil || ctx == nil {
		return err
	}

	contextMap := FromContext(ctx)
	for k, v := range contextMap {
		err = err.WithContext(k, v)
	}

	return err
}
