package worker

import (
	"encoding/json"
	"fmt"

	apperrors "pastecrypt/internal/errors"
)

// Operation identifies a worker request kind.
type Operation string

const (
	OpDeriveKey Operation = "deriveKey"
	OpEncrypt   Operation = "encrypt"
	OpDecrypt   Operation = "decrypt"
)

// Request is the sealed set of request variants. The marker method keeps
// implementations inside this package; dispatch still fails safe on a
// foreign value instead of panicking.
type Request interface {
	Op() Operation
	RequestID() string
	isRequest()
}

// DeriveKeyRequest asks for a key derived from a password. An empty Salt
// generates a fresh one. PayloadSize is the prospective ciphertext length
// and selects the iteration class; both sides of a round trip must pass the
// same basis.
type DeriveKeyRequest struct {
	ID          string `json:"requestId"`
	Password    string `json:"password"`
	Salt        string `json:"salt,omitempty"`
	PayloadSize int64  `json:"payloadSize,omitempty"`
}

func (r DeriveKeyRequest) Op() Operation     { return OpDeriveKey }
func (r DeriveKeyRequest) RequestID() string { return r.ID }
func (DeriveKeyRequest) isRequest()          {}

// EncryptRequest seals plaintext under base64 key material. When
// PasswordDerived is set, Salt must carry the salt that derived the key.
type EncryptRequest struct {
	ID              string `json:"requestId"`
	Plaintext       string `json:"plaintext"`
	Key             string `json:"key"`
	PasswordDerived bool   `json:"isPasswordDerived,omitempty"`
	Salt            string `json:"salt,omitempty"`
}

func (r EncryptRequest) Op() Operation     { return OpEncrypt }
func (r EncryptRequest) RequestID() string { return r.ID }
func (EncryptRequest) isRequest()          {}

// DecryptRequest opens an envelope. When PasswordProtected is set, Key
// carries the password instead of base64 key material.
type DecryptRequest struct {
	ID                string `json:"requestId"`
	Envelope          string `json:"data"`
	Key               string `json:"key"`
	PasswordProtected bool   `json:"isPasswordProtected,omitempty"`
}

func (r DecryptRequest) Op() Operation     { return OpDecrypt }
func (r DecryptRequest) RequestID() string { return r.ID }
func (DecryptRequest) isRequest()          {}

// Event is the sealed set of worker output messages: zero or more *Progress
// followed by exactly one *Response per request.
type Event interface {
	isEvent()
}

// Progress reports percent completion for one request. Total is always 100;
// Processed never decreases and reaches 100 exactly once, before the
// response.
type Progress struct {
	Operation Operation `json:"operation"`
	RequestID string    `json:"requestId"`
	Processed int64     `json:"processed"`
	Total     int64     `json:"total"`
}

func (*Progress) isEvent() {}

// MarshalJSON nests the payload under a "progress" key, the wire shape
// callers multiplex on.
func (p *Progress) MarshalJSON() ([]byte, error) {
	type payload Progress
	return json.Marshal(struct {
		Progress *payload `json:"progress"`
	}{(*payload)(p)})
}

// Response is the terminal event for one request. Result holds the envelope
// text (encrypt), the plaintext (decrypt), or *kdf.Derived (deriveKey).
type Response struct {
	RequestID string      `json:"requestId"`
	Success   bool        `json:"success"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func (*Response) isEvent() {}

// wireRequest is the flat JSON form shared by every request variant.
type wireRequest struct {
	Operation         string `json:"operation"`
	RequestID         string `json:"requestId"`
	Password          string `json:"password"`
	Salt              string `json:"salt"`
	PayloadSize       int64  `json:"payloadSize"`
	Plaintext         string `json:"plaintext"`
	Key               string `json:"key"`
	PasswordDerived   bool   `json:"isPasswordDerived"`
	Data              string `json:"data"`
	PasswordProtected bool   `json:"isPasswordProtected"`
}

// ParseRequest decodes the wire form of a request. Unrecognized operation
// tags return ErrUnknownOperation; the request is never partially decoded
// into the wrong variant.
func ParseRequest(raw []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, apperrors.NewRequestError("body", "malformed request JSON")
	}

	switch Operation(w.Operation) {
	case OpDeriveKey:
		return DeriveKeyRequest{
			ID:          w.RequestID,
			Password:    w.Password,
			Salt:        w.Salt,
			PayloadSize: w.PayloadSize,
		}, nil
	case OpEncrypt:
		return EncryptRequest{
			ID:              w.RequestID,
			Plaintext:       w.Plaintext,
			Key:             w.Key,
			PasswordDerived: w.PasswordDerived,
			Salt:            w.Salt,
		}, nil
	case OpDecrypt:
		return DecryptRequest{
			ID:                w.RequestID,
			Envelope:          w.Data,
			Key:               w.Key,
			PasswordProtected: w.PasswordProtected,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, w.Operation)
	}
}
