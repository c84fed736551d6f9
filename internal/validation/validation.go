package validation

import (
	"fmt"

	"pastecrypt/internal/constants"
	"pastecrypt/internal/errors"
)

// Boundary checks for request transport fields. Key material, salts, and
// envelopes are deliberately not validated here: the engine rejects those
// itself, and its failures share one user-visible message so callers cannot
// probe which part of the input was wrong.

// ValidateRequestID validates a correlation id. Every event for a request is
// routed by this value, so it must be present, bounded, and printable.
func ValidateRequestID(requestID string) error {
	if requestID == "" {
		return errors.NewRequestError("requestId", "requestId is required")
	}

	if len(requestID) > constants.MaxRequestIDLength {
		return errors.NewRequestError("requestId",
			fmt.Sprintf("requestId too long (max %d characters)", constants.MaxRequestIDLength))
	}

	// Control characters would corrupt log lines and span attributes
	for _, char := range requestID {
		if char < 0x20 || char == 0x7f {
			return errors.NewRequestError("requestId", "requestId contains control characters")
		}
	}

	return nil
}

// ValidatePayloadSize validates the prospective ciphertext size supplied to
// key derivation.
func ValidatePayloadSize(size int64) error {
	if size < 0 {
		return errors.NewRequestError("payloadSize", "payloadSize cannot be negative")
	}
	return nil
}
