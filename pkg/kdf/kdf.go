package kdf

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"pastecrypt/internal/constants"
	"pastecrypt/pkg/codec"
)

// ErrDerivationFailed is returned when a key cannot be derived: malformed or
// wrong-length salt, or a failing random source. A partial key is never
// returned.
var ErrDerivationFailed = errors.New("kdf: key derivation failed")

// Derived carries a derived key together with the salt that produced it, both
// in standard base64 for transport.
type Derived struct {
	Key  string `json:"key"`
	Salt string `json:"salt"`
}

// IterationsFor returns the PBKDF2 iteration count for a payload of the given
// size. Large payloads trade iteration strength for interactive latency. The
// count is not stored alongside the ciphertext, so both sides must classify
// from the same basis: the ciphertext length.
func IterationsFor(payloadSize int64) int {
	if payloadSize >= constants.LargePayloadBytes {
		return constants.KDFIterationsLarge
	}
	return constants.KDFIterations
}

// GenerateSalt returns a fresh random salt of constants.SaltSize bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, constants.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: random source: %v", ErrDerivationFailed, err)
	}
	return salt, nil
}

// DeriveKey stretches a password and raw salt into a constants.KeySize byte
// key using PBKDF2-SHA-256. payloadSize selects the iteration count via
// IterationsFor. The empty password is as valid as any other.
func DeriveKey(password string, salt []byte, payloadSize int64) []byte {
	return pbkdf2.Key([]byte(password), salt, IterationsFor(payloadSize), constants.KeySize, sha256.New)
}

// Derive derives a key from password. An empty saltB64 generates a fresh
// random salt; otherwise the salt is decoded leniently and must be exactly
// constants.SaltSize bytes. Same password, salt, and size class always yield
// the same key.
func Derive(password, saltB64 string, payloadSize int64) (*Derived, error) {
	var salt []byte
	if saltB64 == "" {
		var err error
		if salt, err = GenerateSalt(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if salt, err = codec.DecodeLenient(saltB64); err != nil {
			return nil, fmt.Errorf("%w: salt decode: %v", ErrDerivationFailed, err)
		}
		if len(salt) != constants.SaltSize {
			return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrDerivationFailed, constants.SaltSize, len(salt))
		}
	}

	key := DeriveKey(password, salt, payloadSize)
	return &Derived{
		Key:  codec.Encode(key),
		Salt: codec.Encode(salt),
	}, nil
}
