package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"pastecrypt/internal/constants"
)

// ErrCorruptedData is returned when no recovery stage can extract bytes from
// malformed base64 input.
var ErrCorruptedData = errors.New("codec: corrupted base64 data")

// ProgressFunc receives (processed, total) counts while a chunked operation
// runs. processed equals total exactly once, on the final chunk.
type ProgressFunc func(processed, total int64)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// sextet maps an input byte to its 6-bit value, or -1 outside the alphabet.
var sextet [256]int8

func init() {
	for i := range sextet {
		sextet[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		sextet[alphabet[i]] = int8(i)
	}
}

// Encode returns the standard base64 encoding of data.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode is the strict inverse of Encode.
func Decode(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}

// DecodeLenient decodes base64 text that may be malformed or produced by a
// foreign encoder. Recovery stages are attempted in order, each only after
// the previous attempt fails:
//
//  1. URL-safe alphabet substitution ('-' to '+', '_' to '/')
//  2. padding repair (append '=' until the length is a multiple of 4)
//  3. stripping of any byte outside the base64 alphabet, then re-padding
//  4. a pure bit-manipulation fallback decoder
//
// Input that survives no stage returns ErrCorruptedData; partial or wrong
// bytes are never returned.
func DecodeLenient(text string) ([]byte, error) {
	if b, err := Decode(text); err == nil {
		return b, nil
	}

	candidate := substituteURLSafe(text)
	if b, err := Decode(candidate); err == nil {
		return b, nil
	}

	candidate = pad(candidate)
	if b, err := Decode(candidate); err == nil {
		return b, nil
	}

	stripped := stripInvalid(candidate)
	if stripped == "" {
		return nil, fmt.Errorf("%w: no base64 alphabet bytes in input", ErrCorruptedData)
	}
	if b, err := Decode(pad(stripped)); err == nil {
		return b, nil
	}

	if b := decodeBits(stripped); len(b) > 0 {
		return b, nil
	}
	return nil, fmt.Errorf("%w: unrecoverable input", ErrCorruptedData)
}

// EncodeChunked is Encode with progress reporting. The result is identical to
// Encode for every chunk size; chunk sizes are aligned down to a multiple of
// 3 so no chunk emits interior padding.
func EncodeChunked(data []byte, chunkSize int, fn ProgressFunc) string {
	if fn == nil || len(data) == 0 {
		return Encode(data)
	}

	chunkSize = alignChunk(chunkSize, 3)
	total := int64(len(data))

	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(data)))
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		b.WriteString(base64.StdEncoding.EncodeToString(data[start:end]))
		fn(int64(end), total)
	}
	return b.String()
}

// DecodeLenientChunked is DecodeLenient with progress reporting. The repair
// chain runs over the whole input first; chunking then drives proportional
// progress across the recovered candidate.
func DecodeLenientChunked(text string, chunkSize int, fn ProgressFunc) ([]byte, error) {
	if fn == nil {
		return DecodeLenient(text)
	}
	if text == "" {
		return []byte{}, nil
	}

	chunkSize = alignChunk(chunkSize, 4)

	candidate, viaBits, err := repair(text)
	if err != nil {
		return nil, err
	}
	if viaBits {
		return decodeBitsChunked(candidate, chunkSize, fn), nil
	}

	// The standard decoder skips CR and LF wherever they appear, but chunk
	// boundaries must land on 4-character quanta, so drop them up front.
	if strings.ContainsAny(candidate, "\r\n") {
		candidate = strings.NewReplacer("\r", "", "\n", "").Replace(candidate)
	}

	total := int64(len(candidate))
	out := make([]byte, 0, base64.StdEncoding.DecodedLen(len(candidate)))
	for start := 0; start < len(candidate); start += chunkSize {
		end := start + chunkSize
		if end > len(candidate) {
			end = len(candidate)
		}
		chunk, err := base64.StdEncoding.DecodeString(candidate[start:end])
		if err != nil {
			// The candidate decodes as a whole but not on these boundaries;
			// the bit decoder produces the identical result.
			return decodeBitsChunked(candidate, chunkSize, fn), nil
		}
		out = append(out, chunk...)
		fn(int64(end), total)
	}
	return out, nil
}

// repair runs the recovery chain and returns the final decodable candidate
// without decoding it fully. viaBits reports that only the bit-manipulation
// fallback can decode the candidate.
func repair(text string) (candidate string, viaBits bool, err error) {
	if decodable(text) {
		return text, false, nil
	}

	candidate = substituteURLSafe(text)
	if decodable(candidate) {
		return candidate, false, nil
	}

	candidate = pad(candidate)
	if decodable(candidate) {
		return candidate, false, nil
	}

	stripped := stripInvalid(candidate)
	if stripped == "" {
		return "", false, fmt.Errorf("%w: no base64 alphabet bytes in input", ErrCorruptedData)
	}
	if candidate = pad(stripped); decodable(candidate) {
		return candidate, false, nil
	}

	if len(decodeBits(stripped)) == 0 {
		return "", false, fmt.Errorf("%w: unrecoverable input", ErrCorruptedData)
	}
	return stripped, true, nil
}

func decodable(s string) bool {
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

func substituteURLSafe(s string) string {
	if !strings.ContainsAny(s, "-_") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '-':
			return '+'
		case '_':
			return '/'
		}
		return r
	}, s)
}

func pad(s string) string {
	if rem := len(s) % 4; rem != 0 {
		return s + strings.Repeat("=", 4-rem)
	}
	return s
}

func stripInvalid(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if sextet[s[i]] >= 0 {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// decodeBits recovers bytes by direct bit manipulation, accepting inputs the
// standard decoder rejects (stray padding, lengths with leftover bits).
// Bytes outside the alphabet are skipped; trailing bits short of a full byte
// are dropped.
func decodeBits(text string) []byte {
	out := make([]byte, 0, len(text)*3/4)
	var acc uint32
	var bits uint
	for i := 0; i < len(text); i++ {
		v := sextet[text[i]]
		if v < 0 {
			continue
		}
		acc = acc<<6 | uint32(v)
		bits += 6
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
		}
	}
	return out
}

func decodeBitsChunked(text string, chunkSize int, fn ProgressFunc) []byte {
	out := make([]byte, 0, len(text)*3/4)
	total := int64(len(text))
	var acc uint32
	var bits uint
	for start := 0; start < len(text); start += chunkSize {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		for i := start; i < end; i++ {
			v := sextet[text[i]]
			if v < 0 {
				continue
			}
			acc = acc<<6 | uint32(v)
			bits += 6
			if bits >= 8 {
				bits -= 8
				out = append(out, byte(acc>>bits))
			}
		}
		fn(int64(end), total)
	}
	return out
}

// alignChunk rounds chunkSize down to a multiple of unit, substituting the
// default for unset values and clamping tiny values up to one unit.
func alignChunk(chunkSize, unit int) int {
	if chunkSize <= 0 {
		chunkSize = constants.DefaultCodecChunkSize
	}
	if chunkSize < unit {
		return unit
	}
	return chunkSize - chunkSize%unit
}
