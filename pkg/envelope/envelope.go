package envelope

import (
	"errors"
	"fmt"

	"pastecrypt/internal/constants"
)

// ErrMalformed is returned for input shorter than the fixed envelope header.
var ErrMalformed = errors.New("envelope: malformed envelope")

// Envelope is the decoded layout of the single transmitted blob. Salt is nil
// for direct-key envelopes. Fields alias the slice given to Disassemble.
type Envelope struct {
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

// Assemble concatenates the envelope parts in wire order: salt (optional),
// nonce, ciphertext. A nil or empty salt produces the direct-key form. The
// layout carries no marker byte; which form a blob uses travels out of band.
func Assemble(salt, nonce, ciphertext []byte) []byte {
	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out
}

// Disassemble splits data at fixed offsets. passwordDerived selects the
// salted layout. Input shorter than the header fails with ErrMalformed before
// any slicing. Zero remaining ciphertext bytes are tolerated here; whether
// that decrypts is the cipher's concern.
func Disassemble(data []byte, passwordDerived bool) (*Envelope, error) {
	header := constants.NonceSize
	if passwordDerived {
		header += constants.SaltSize
	}
	if len(data) < header {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(data), header)
	}

	env := &Envelope{}
	if passwordDerived {
		env.Salt = data[:constants.SaltSize]
		data = data[constants.SaltSize:]
	}
	env.Nonce = data[:constants.NonceSize]
	env.Ciphertext = data[constants.NonceSize:]
	return env, nil
}
