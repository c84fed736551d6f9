// Package engine performs authenticated symmetric encryption and decryption
// of text payloads, producing and consuming the base64 envelope format.
//
// The cipher is NaCl secretbox (XSalsa20 + Poly1305): 32-byte keys, a fresh
// random 24-byte nonce per encryption, and a 16-byte authentication tag.
// Tampering, truncation, and wrong keys all surface as the same
// ErrAuthenticationFailed and never as partial plaintext.
package engine

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"pastecrypt/internal/constants"
	"pastecrypt/pkg/codec"
	"pastecrypt/pkg/envelope"
	"pastecrypt/pkg/kdf"
)

// Overhead is the ciphertext expansion of the cipher: the Poly1305 tag.
const Overhead = secretbox.Overhead

var (
	// ErrInvalidKeyLength is returned before any cipher work when supplied
	// key material does not decode to exactly constants.KeySize bytes.
	ErrInvalidKeyLength = errors.New("engine: invalid key length")

	// ErrAuthenticationFailed is the single error for every decryption
	// verification failure. Wrong key, wrong password, tampered or truncated
	// ciphertext all produce this same value so callers cannot be used as an
	// oracle to tell them apart.
	ErrAuthenticationFailed = errors.New("engine: decryption failed: invalid key or corrupted data")
)

// Engine encrypts and decrypts payloads. The zero value is not usable; call
// New. Engines are stateless between calls and safe for sequential reuse;
// key, salt, and nonce buffers live only for one operation.
type Engine struct {
	random    io.Reader
	chunkSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom replaces the nonce source, which defaults to crypto/rand.Reader.
// Anything other than a CSPRNG outside of tests breaks nonce uniqueness.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		if r != nil {
			e.random = r
		}
	}
}

// WithChunkSize sets the chunk size in bytes for progress-reporting stages.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// New returns an Engine with the default random source and chunk size.
func New(opts ...Option) *Engine {
	e := &Engine{
		random:    rand.Reader,
		chunkSize: constants.DefaultCodecChunkSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Encrypt seals plaintext under the base64 key material and returns the
// envelope as base64 text. When passwordDerived is true, saltB64 must carry
// the salt that derived the key; it is prepended to the envelope so the key
// can be re-derived at decryption time. Empty plaintext is valid and
// round-trips to the empty string.
func (e *Engine) Encrypt(plaintext, keyB64 string, passwordDerived bool, saltB64 string) (string, error) {
	return e.EncryptWithProgress(plaintext, keyB64, passwordDerived, saltB64, nil)
}

// EncryptWithProgress is Encrypt with percent progress callbacks.
func (e *Engine) EncryptWithProgress(plaintext, keyB64 string, passwordDerived bool, saltB64 string, fn ProgressFunc) (string, error) {
	t := newTracker(fn)
	t.step(0)

	key, err := decodeKey(keyB64)
	if err != nil {
		return "", err
	}

	var salt []byte
	if passwordDerived {
		salt, err = codec.DecodeLenient(saltB64)
		if err != nil {
			return "", fmt.Errorf("%w: salt: %v", envelope.ErrMalformed, err)
		}
		if len(salt) != constants.SaltSize {
			return "", fmt.Errorf("%w: salt must be %d bytes, got %d", envelope.ErrMalformed, constants.SaltSize, len(salt))
		}
	}
	t.step(encryptKeyReady)

	payload := copyString(plaintext, e.chunkSize, t.band(encryptKeyReady, encryptPayloadReady))
	t.step(encryptPayloadReady)

	var nonce [constants.NonceSize]byte
	if _, err := io.ReadFull(e.random, nonce[:]); err != nil {
		return "", fmt.Errorf("engine: nonce generation: %w", err)
	}
	t.step(encryptNonceReady)

	sealed := secretbox.Seal(nil, payload, &nonce, &key)
	t.step(encryptSealed)

	env := envelope.Assemble(salt, nonce[:], sealed)
	t.step(encryptAssembled)

	text := codec.EncodeChunked(env, e.chunkSize, t.band(encryptAssembled, constants.ProgressTotal))
	t.done()
	return text, nil
}

// Decrypt opens the base64 envelope text and returns the plaintext. When
// passwordProtected is true, keyMaterial is the password and the key is
// re-derived from the envelope's salt with the iteration count classified
// from the ciphertext length; otherwise keyMaterial is the base64 key.
func (e *Engine) Decrypt(envelopeText, keyMaterial string, passwordProtected bool) (string, error) {
	return e.DecryptWithProgress(envelopeText, keyMaterial, passwordProtected, nil)
}

// DecryptWithProgress is Decrypt with percent progress callbacks.
func (e *Engine) DecryptWithProgress(envelopeText, keyMaterial string, passwordProtected bool, fn ProgressFunc) (string, error) {
	t := newTracker(fn)
	t.step(0)

	data, err := codec.DecodeLenientChunked(envelopeText, e.chunkSize, t.band(0, decryptDecoded))
	if err != nil {
		return "", err
	}
	t.step(decryptDecoded)

	env, err := envelope.Disassemble(data, passwordProtected)
	if err != nil {
		return "", err
	}
	t.step(decryptDisassembled)

	var key [constants.KeySize]byte
	if passwordProtected {
		copy(key[:], kdf.DeriveKey(keyMaterial, env.Salt, int64(len(env.Ciphertext))))
	} else {
		if key, err = decodeKey(keyMaterial); err != nil {
			return "", err
		}
	}
	t.step(decryptKeyReady)

	var nonce [constants.NonceSize]byte
	copy(nonce[:], env.Nonce)

	plaintext, ok := secretbox.Open(nil, env.Ciphertext, &nonce, &key)
	if !ok {
		return "", ErrAuthenticationFailed
	}
	t.step(decryptOpened)

	text := copyBytes(plaintext, e.chunkSize, t.band(decryptOpened, constants.ProgressTotal))
	t.done()
	return text, nil
}

// decodeKey decodes base64 key material and validates its length before any
// cipher work sees it.
func decodeKey(keyB64 string) ([constants.KeySize]byte, error) {
	var key [constants.KeySize]byte
	raw, err := codec.DecodeLenient(keyB64)
	if err != nil {
		return key, fmt.Errorf("engine: key decode: %w", err)
	}
	if len(raw) != constants.KeySize {
		return key, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(raw), constants.KeySize)
	}
	copy(key[:], raw)
	return key, nil
}

// copyString converts s to bytes chunk by chunk so large payloads drive
// progress during the copy.
func copyString(s string, chunkSize int, fn codec.ProgressFunc) []byte {
	if fn == nil || len(s) <= chunkSize {
		return []byte(s)
	}
	out := make([]byte, 0, len(s))
	total := int64(len(s))
	for start := 0; start < len(s); start += chunkSize {
		end := start + chunkSize
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[start:end]...)
		fn(int64(end), total)
	}
	return out
}

// copyBytes is the inverse copy, bytes to string.
func copyBytes(b []byte, chunkSize int, fn codec.ProgressFunc) string {
	if fn == nil || len(b) <= chunkSize {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	total := int64(len(b))
	for start := 0; start < len(b); start += chunkSize {
		end := start + chunkSize
		if end > len(b) {
			end = len(b)
		}
		sb.Write(b[start:end])
		fn(int64(end), total)
	}
	return sb.String()
}
