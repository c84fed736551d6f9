package integration_test

import (
	"context"
	"testing"

	"pastecrypt/pkg/engine"
	"pastecrypt/pkg/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLargePayloadProgressOrdering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multi-megabyte payload in short mode")
	}

	env := NewProtocolEnvironment(t)
	fixtures := NewTestFixtures()

	key := fixtures.Key("large")
	payload := fixtures.TextPayload(5 << 20)

	encID := NextRequestID("enc-large")
	require.NoError(t, env.Submit(WireRequest{
		Operation: "encrypt",
		RequestID: encID,
		Plaintext: payload,
		Key:       key,
	}.JSON()))

	sealed := RequireStringResult(t, env.Recorder().WaitResponse(t, encID))
	RequireProgressComplete(t, env.Recorder().Progress(encID))
	requireResponseLast(t, env, encID)

	decID := NextRequestID("dec-large")
	require.NoError(t, env.Submit(WireRequest{
		Operation: "decrypt",
		RequestID: decID,
		Data:      sealed,
		Key:       key,
	}.JSON()))

	plain := RequireStringResult(t, env.Recorder().WaitResponse(t, decID))
	RequireProgressComplete(t, env.Recorder().Progress(decID))
	requireResponseLast(t, env, decID)
	assert.Equal(t, payload, plain)
}

// requireResponseLast asserts that the terminal response is the last event
// recorded for a request, in particular after the 100-percent progress event.
func requireResponseLast(t *testing.T, env *TestEnvironment, requestID string) {
	t.Helper()

	last := -1
	responseAt := -1
	events := env.Recorder().Events()
	for i, ev := range events {
		switch e := ev.(type) {
		case *worker.Progress:
			if e.RequestID == requestID {
				last = i
			}
		case *worker.Response:
			if e.RequestID == requestID {
				responseAt = i
			}
		}
	}
	require.GreaterOrEqual(t, responseAt, 0, "no response recorded for %s", requestID)
	require.Greater(t, responseAt, last, "response for %s arrived before its final progress", requestID)
}

func TestIterationClassBoundaryRoundTrips(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping KDF-heavy boundary cases in short mode")
	}

	env := NewClientEnvironment(t)
	ctx := context.Background()
	fixtures := NewTestFixtures()

	// Payload sizes straddling the iteration-class threshold: the ciphertext
	// of the first lands one byte below 1 MiB, the second exactly on it. Both
	// must round-trip, which proves the encrypting and decrypting sides
	// classify the same way even though the count never travels with the
	// envelope.
	for _, plaintextLen := range []int{1<<20 - engine.Overhead - 1, 1<<20 - engine.Overhead} {
		payload := fixtures.TextPayload(plaintextLen)

		size := int64(plaintextLen + engine.Overhead)
		derived, err := env.Client().DeriveKey(ctx, "boundary", "", size)
		require.NoError(t, err)

		sealed, err := env.Client().Encrypt(ctx, payload, derived.Key, true, derived.Salt)
		require.NoError(t, err)

		plain, err := env.Client().Decrypt(ctx, sealed, "boundary", true)
		require.NoError(t, err)
		require.Equal(t, payload, plain, "plaintext of %d bytes", plaintextLen)
	}
}

func TestLenientRecoveryEndToEnd(t *testing.T) {
	env := NewClientEnvironment(t)
	fixtures := NewTestFixtures()
	ctx := context.Background()

	key := fixtures.Key("lenient")
	payload := fixtures.TextPayload(4096)

	sealed, err := env.Client().Encrypt(ctx, payload, key, false, "")
	require.NoError(t, err)

	recoverable := []struct {
		name    string
		corrupt func(string) string
	}{
		{"url-safe alphabet", ToURLSafeAlphabet},
		{"stripped padding", StripPadding},
		{"embedded whitespace", InjectWhitespace},
		{"garbage characters", InjectGarbage},
		{"all of the above", func(s string) string {
			return InjectWhitespace(InjectGarbage(StripPadding(ToURLSafeAlphabet(s))))
		}},
	}

	for _, tc := range recoverable {
		t.Run("recovers "+tc.name, func(t *testing.T) {
			plain, err := env.Client().Decrypt(ctx, tc.corrupt(sealed), key, false)
			require.NoError(t, err)
			assert.Equal(t, payload, plain)
		})
	}

	fatal := []struct {
		name    string
		corrupt func(string) string
	}{
		{"truncated tail", TruncateTail},
		{"flipped ciphertext", FlipCiphertextByte},
	}

	for _, tc := range fatal {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			_, err := env.Client().Decrypt(ctx, tc.corrupt(sealed), key, false)
			require.Error(t, err)
			var opErr *worker.OperationError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, "Invalid key or corrupted data", opErr.Message)
		})
	}
}
