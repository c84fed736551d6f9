package worker

import (
	"errors"
	"fmt"

	apperrors "pastecrypt/internal/errors"
)

var (
	// ErrNotRunning is returned by Submit when the worker is not started.
	ErrNotRunning = errors.New("worker: not running")

	// ErrUnknownOperation marks a request kind outside the protocol. The
	// dispatch switch fails safe with it instead of panicking.
	ErrUnknownOperation = errors.New("worker: unknown operation")
)

// OperationError is the client-side surface of a failed response: the
// worker's user-safe message tied to the request it answers.
type OperationError struct {
	RequestID string
	Message   string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("worker: request %s failed: %s", e.RequestID, e.Message)
}

// toAppError classifies a dispatch failure, folding the worker's own
// sentinels in ahead of the shared taxonomy.
func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, ErrUnknownOperation):
		return apperrors.Wrap(err, apperrors.ErrCodeUnknownOperation, "unknown operation").
			WithUserMessage("Unknown operation")
	case errors.Is(err, ErrNotRunning):
		return apperrors.Wrap(err, apperrors.ErrCodeWorkerStopped, "worker stopped before the request ran").
			WithUserMessage("Worker stopped")
	default:
		return apperrors.Classify(err)
	}
}

// NewFailureResponse builds the terminal failure event for a request. The
// carried message is always the user-safe form; internal detail stays in
// logs and spans.
func NewFailureResponse(requestID string, err error) *Response {
	return &Response{
		RequestID: requestID,
		Success:   false,
		Error:     apperrors.GetUserMessage(toAppError(err)),
	}
}
