package integration_test

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"strings"
)

// TestFixtures produces deterministic test data so failures reproduce
// byte-for-byte across runs.
type TestFixtures struct {
	rng *rand.Rand
}

// NewTestFixtures creates a fixture factory with a fixed seed.
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{rng: rand.New(rand.NewSource(0x70617374))}
}

// Key returns base64 key material of the standard 32-byte length, derived
// from a label so distinct labels give distinct keys.
func (f *TestFixtures) Key(label string) string {
	sum := sha256.Sum256([]byte(label))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ShortKey returns base64 key material one byte short of the required
// length, for exercising key-length rejection.
func (f *TestFixtures) ShortKey() string {
	sum := sha256.Sum256([]byte("short"))
	return base64.StdEncoding.EncodeToString(sum[:31])
}

// TextPayload returns printable text of exactly n bytes.
func (f *TestFixtures) TextPayload(n int) string {
	const sample = "The quick brown fox jumps over the lazy dog. 0123456789. "
	var b strings.Builder
	b.Grow(n)
	for b.Len() < n {
		remaining := n - b.Len()
		if remaining < len(sample) {
			b.WriteString(sample[:remaining])
		} else {
			b.WriteString(sample)
		}
	}
	return b.String()
}

// BinaryPayload returns n pseudo-random bytes from the seeded source,
// including NUL and high-bit values that are invalid UTF-8.
func (f *TestFixtures) BinaryPayload(n int) []byte {
	out := make([]byte, n)
	f.rng.Read(out)
	return out
}

// UnicodePayload returns text spanning multi-byte code points and combining
// marks.
func (f *TestFixtures) UnicodePayload() string {
	return "pásté → 秘密のメモ 🔐 źáĺ"
}

// WireRequest builds the flat JSON form of a worker request. Fields follow
// the wire names; zero values are omitted by the worker's parser anyway, so
// every field can always be set.
type WireRequest struct {
	Operation         string `json:"operation"`
	RequestID         string `json:"requestId"`
	Password          string `json:"password,omitempty"`
	Salt              string `json:"salt,omitempty"`
	PayloadSize       int64  `json:"payloadSize,omitempty"`
	Plaintext         string `json:"plaintext,omitempty"`
	Key               string `json:"key,omitempty"`
	PasswordDerived   bool   `json:"isPasswordDerived,omitempty"`
	Data              string `json:"data,omitempty"`
	PasswordProtected bool   `json:"isPasswordProtected,omitempty"`
}

// JSON marshals the request to its wire bytes.
func (r WireRequest) JSON() []byte {
	raw, err := json.Marshal(r)
	if err != nil {
		panic(err) // fixed struct, cannot fail
	}
	return raw
}

// Envelope corruption helpers. Each takes valid base64 envelope text and
// returns a transformed variant; the Recoverable ones must still decrypt,
// the Fatal ones must not.

// ToURLSafeAlphabet swaps the standard base64 alphabet for the URL-safe one.
func ToURLSafeAlphabet(envelope string) string {
	return strings.NewReplacer("+", "-", "/", "_").Replace(envelope)
}

// StripPadding removes trailing '=' characters.
func StripPadding(envelope string) string {
	return strings.TrimRight(envelope, "=")
}

// InjectWhitespace scatters newlines and spaces through the text, the shape
// of an envelope pasted from a wrapped terminal.
func InjectWhitespace(envelope string) string {
	var b strings.Builder
	for i, ch := range envelope {
		if i > 0 && i%64 == 0 {
			b.WriteString("\r\n")
		}
		if i > 0 && i%97 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// InjectGarbage inserts characters outside every base64 alphabet.
func InjectGarbage(envelope string) string {
	if len(envelope) < 10 {
		return "?" + envelope
	}
	mid := len(envelope) / 2
	return envelope[:mid] + "?*" + envelope[mid:] + "!"
}

// TruncateTail drops the final quarter of the text, destroying the
// authentication tag.
func TruncateTail(envelope string) string {
	return envelope[:len(envelope)*3/4]
}

// FlipCiphertextByte alters one character inside the ciphertext region,
// leaving the base64 framing valid but the authenticator broken.
func FlipCiphertextByte(envelope string) string {
	// Past the nonce: 24 nonce bytes occupy the first 32 base64 chars.
	i := len(envelope) / 2
	b := []byte(envelope)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}
