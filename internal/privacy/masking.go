package privacy

import (
	"fmt"
	"strings"

	"pastecrypt/internal/constants"
)

// MaskSecret hides key material, passwords, and other secrets for logging.
// The output carries no characters of the input, and its length is capped so
// even the secret's length is only coarsely visible.
// Example: "hunter2hunter2" -> "********"
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}

	n := len(secret)
	if n > constants.DefaultMaskMaxStars {
		n = constants.DefaultMaskMaxStars
	}
	return strings.Repeat("*", n)
}

// MaskRequestID masks a request ID showing only the last 4 characters.
// Request IDs are not secret, but full IDs clutter shared logs; the suffix is
// enough to correlate entries by eye.
// Example: "req_9f31c2d44abc" -> "************4abc"
func MaskRequestID(requestID string) string {
	return maskString(requestID, constants.DefaultMaskVisibleChars)
}

// MaskKeyMaterial annotates masked key material with its encoded length so
// log readers can distinguish "no key" from "wrong key" without seeing bytes.
// Example: 44-char base64 key -> "********(44 chars)"
func MaskKeyMaterial(keyB64 string) string {
	if keyB64 == "" {
		return ""
	}
	return fmt.Sprintf("%s(%d chars)", MaskSecret(keyB64), len(keyB64))
}

// TruncateForLog shortens payload text (envelopes, plaintext previews are
// never logged; envelope text is ciphertext and safe to excerpt) to keep log
// lines bounded.
// Example: long envelope -> "AbCd...WxYz (52318 chars)"
func TruncateForLog(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}

	head := max / 2
	tail := max - head
	return fmt.Sprintf("%s...%s (%d chars)", s[:head], s[len(s)-tail:], len(s))
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
