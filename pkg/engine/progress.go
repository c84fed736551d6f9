package engine

import (
	"pastecrypt/internal/constants"
	"pastecrypt/pkg/codec"
)

// ProgressFunc receives percent progress. total is always
// constants.ProgressTotal; processed never decreases and reaches the total
// exactly once, as the final call.
type ProgressFunc func(processed, total int64)

// Progress checkpoints, in percent. Chunked stages (base64, text copies)
// interpolate proportionally inside their band; atomic stages (the cipher
// call, the KDF call) jump between checkpoints.
const (
	encryptKeyReady     int64 = 5
	encryptPayloadReady int64 = 25
	encryptNonceReady   int64 = 30
	encryptSealed       int64 = 70
	encryptAssembled    int64 = 80

	decryptDecoded      int64 = 30
	decryptDisassembled int64 = 35
	decryptKeyReady     int64 = 60
	decryptOpened       int64 = 85
)

// tracker filters raw stage progress into a strictly increasing percent
// stream, which keeps the reported sequence monotonic regardless of how
// stages overlap or repeat.
type tracker struct {
	fn   ProgressFunc
	last int64
}

func newTracker(fn ProgressFunc) *tracker {
	return &tracker{fn: fn, last: -1}
}

func (t *tracker) step(percent int64) {
	if t.fn == nil {
		return
	}
	if percent > constants.ProgressTotal {
		percent = constants.ProgressTotal
	}
	if percent <= t.last {
		return
	}
	t.last = percent
	t.fn(percent, constants.ProgressTotal)
}

// band maps a chunked stage's byte counts into the [lo, hi] percent range.
func (t *tracker) band(lo, hi int64) codec.ProgressFunc {
	if t.fn == nil {
		return nil
	}
	return func(processed, total int64) {
		if total <= 0 {
			t.step(hi)
			return
		}
		t.step(lo + (hi-lo)*processed/total)
	}
}

func (t *tracker) done() {
	t.step(constants.ProgressTotal)
}
