package constants

// Cipher and envelope dimensions. Envelopes written by one party are sliced
// by fixed offsets on the other, so these values must never drift.
const (
	// KeySize is the secret key length required by the cipher, in bytes.
	KeySize = 32
	// NonceSize is the cipher nonce length in bytes.
	NonceSize = 24
	// SaltSize is the KDF salt length in bytes.
	SaltSize = 16
)

// Key derivation iteration policy. The iteration count is not stored in the
// envelope; encryptor and decryptor classify the payload size independently
// and must agree. The classification input is the ciphertext length on both
// sides.
const (
	// KDFIterations applies to payloads below LargePayloadBytes.
	KDFIterations = 100000
	// KDFIterationsLarge bounds derivation latency for large payloads.
	KDFIterationsLarge = 10000
	// LargePayloadBytes is the size threshold selecting KDFIterationsLarge.
	LargePayloadBytes = 1 << 20
)

// Chunked processing values
const (
	// DefaultCodecChunkSize is divisible by both 3 and 4 so every encode and
	// decode chunk stands alone as a valid base64 unit.
	DefaultCodecChunkSize = 192 * 1024
	// ProgressTotal is the denominator of all progress reports.
	ProgressTotal = 100
)

// Worker defaults
const (
	DefaultWorkerQueueSize    = 16
	DefaultEventBufferSize    = 64
	DefaultShutdownTimeoutSec = 5
)

// Request field limits
const (
	// MaxRequestIDLength bounds the correlation id; ids appear in logs and
	// span attributes.
	MaxRequestIDLength = 128
)

// Privacy settings
const (
	DefaultMaskVisibleChars = 4
	DefaultMaskMaxStars     = 8
)

// File permissions
const (
	// DefaultFilePermissions for files written by the CLI (owner read/write only)
	DefaultFilePermissions = 0600
)
