package errors

import (
	"errors"

	"pastecrypt/pkg/codec"
	"pastecrypt/pkg/engine"
	"pastecrypt/pkg/envelope"
	"pastecrypt/pkg/kdf"
)

// User-facing messages. Key length mismatches, authentication failures, and
// malformed payloads share one line so callers cannot be used as an oracle to
// distinguish a wrong password from tampering.
const (
	UserMsgInvalidKeyOrData = "Invalid key or corrupted data"
	UserMsgDerivationFailed = "Key derivation failed"
)

// Classify converts any error into an *AppError carrying the taxonomy code
// and a user-safe message. Existing AppErrors pass through unchanged; errors
// outside the taxonomy become INTERNAL_ERROR with the generic user message.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, engine.ErrInvalidKeyLength):
		return Wrap(err, ErrCodeInvalidKeyLength, "invalid key length").WithUserMessage(UserMsgInvalidKeyOrData)
	case errors.Is(err, engine.ErrAuthenticationFailed):
		return Wrap(err, ErrCodeAuthenticationFailed, "decryption failed").WithUserMessage(UserMsgInvalidKeyOrData)
	case errors.Is(err, envelope.ErrMalformed):
		return Wrap(err, ErrCodeMalformedEnvelope, "malformed envelope").WithUserMessage(UserMsgInvalidKeyOrData)
	case errors.Is(err, codec.ErrCorruptedData):
		return Wrap(err, ErrCodeCorruptedBase64, "corrupted base64 data").WithUserMessage(UserMsgInvalidKeyOrData)
	case errors.Is(err, kdf.ErrDerivationFailed):
		return Wrap(err, ErrCodeKeyDerivationFailed, "key derivation failed").WithUserMessage(UserMsgDerivationFailed)
	default:
		return Wrap(err, ErrCodeInternalError, "internal error")
	}
}
