package integration_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"

	"pastecrypt/pkg/engine"
	"pastecrypt/pkg/kdf"
	"pastecrypt/pkg/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptFlowWithDirectKey(t *testing.T) {
	env := NewClientEnvironment(t)
	fixtures := NewTestFixtures()
	ctx := context.Background()

	// Key material is the SHA-256 of "hello", the canonical smoke scenario.
	key := fixtures.Key("hello")

	sealed, err := env.Client().Encrypt(ctx, "hello", key, false, "")
	require.NoError(t, err)

	// The envelope is nonce plus ciphertext: 24 + len + 16 bytes.
	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	assert.Len(t, raw, 24+len("hello")+16)

	plain, err := env.Client().Decrypt(ctx, sealed, key, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)
}

func TestBinaryPayloadRoundTrip(t *testing.T) {
	env := NewClientEnvironment(t)
	fixtures := NewTestFixtures()
	ctx := context.Background()

	key := fixtures.Key("binary")

	// Invalid UTF-8 must survive byte-exact; the engine never re-encodes
	// plaintext.
	payload := string(fixtures.BinaryPayload(4096))

	sealed, err := env.Client().Encrypt(ctx, payload, key, false, "")
	require.NoError(t, err)

	plain, err := env.Client().Decrypt(ctx, sealed, key, false)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)

	t.Run("unicode", func(t *testing.T) {
		payload := fixtures.UnicodePayload()
		sealed, err := env.Client().Encrypt(ctx, payload, key, false, "")
		require.NoError(t, err)
		plain, err := env.Client().Decrypt(ctx, sealed, key, false)
		require.NoError(t, err)
		assert.Equal(t, payload, plain)
	})
}

func TestDeriveKeyFlows(t *testing.T) {
	env := NewClientEnvironment(t)
	ctx := context.Background()

	derived, err := env.Client().DeriveKey(ctx, "open sesame", "", 1024)
	require.NoError(t, err)

	key, err := base64.StdEncoding.DecodeString(derived.Key)
	require.NoError(t, err)
	require.Len(t, key, 32)

	salt, err := base64.StdEncoding.DecodeString(derived.Salt)
	require.NoError(t, err)
	require.Len(t, salt, 16)

	t.Run("same salt reproduces the key", func(t *testing.T) {
		again, err := env.Client().DeriveKey(ctx, "open sesame", derived.Salt, 1024)
		require.NoError(t, err)
		assert.Equal(t, derived.Key, again.Key)
		assert.Equal(t, derived.Salt, again.Salt)
	})

	t.Run("different password yields a different key", func(t *testing.T) {
		other, err := env.Client().DeriveKey(ctx, "open Sesame", derived.Salt, 1024)
		require.NoError(t, err)
		assert.NotEqual(t, derived.Key, other.Key)
	})

	t.Run("fresh salts never repeat", func(t *testing.T) {
		first, err := env.Client().DeriveKey(ctx, "pw", "", 0)
		require.NoError(t, err)
		second, err := env.Client().DeriveKey(ctx, "pw", "", 0)
		require.NoError(t, err)
		assert.NotEqual(t, first.Salt, second.Salt)
		assert.NotEqual(t, first.Key, second.Key)
	})
}

func TestPasswordFlowSurvivesWorkerRestart(t *testing.T) {
	fixtures := NewTestFixtures()
	ctx := context.Background()
	payload := fixtures.TextPayload(2048)

	// Seal with a password on one worker.
	first := NewClientEnvironment(t)
	sealed, err := first.Client().Encrypt(ctx, payload, "", false, "")
	require.Error(t, err, "empty key material must be rejected")

	// Derivation classifies by prospective ciphertext length, which is the
	// plaintext plus the authentication overhead.
	size := int64(len(payload) + engine.Overhead)
	derived, err := first.Client().DeriveKey(ctx, "travel light", "", size)
	require.NoError(t, err)

	sealed, err = first.Client().Encrypt(ctx, payload, derived.Key, true, derived.Salt)
	require.NoError(t, err)
	first.Cleanup()

	// A completely fresh worker opens it with only the password and the
	// isPasswordProtected flag: everything else travels in the envelope.
	second := NewClientEnvironment(t)
	plain, err := second.Client().Decrypt(ctx, sealed, "travel light", true)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)

	t.Run("wrong password is indistinguishable from corruption", func(t *testing.T) {
		_, err := second.Client().Decrypt(ctx, sealed, "travel heavy", true)
		require.Error(t, err)
		var opErr *worker.OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "Invalid key or corrupted data", opErr.Message)
	})
}

func TestWireProtocolRoundTrip(t *testing.T) {
	env := NewProtocolEnvironment(t)
	fixtures := NewTestFixtures()

	key := fixtures.Key("wire")
	payload := fixtures.TextPayload(1 << 16)

	encID := NextRequestID("enc")
	require.NoError(t, env.Submit(WireRequest{
		Operation: "encrypt",
		RequestID: encID,
		Plaintext: payload,
		Key:       key,
	}.JSON()))

	sealed := RequireStringResult(t, env.Recorder().WaitResponse(t, encID))
	RequireProgressComplete(t, env.Recorder().Progress(encID))

	decID := NextRequestID("dec")
	require.NoError(t, env.Submit(WireRequest{
		Operation: "decrypt",
		RequestID: decID,
		Data:      sealed,
		Key:       key,
	}.JSON()))

	plain := RequireStringResult(t, env.Recorder().WaitResponse(t, decID))
	RequireProgressComplete(t, env.Recorder().Progress(decID))
	assert.Equal(t, payload, plain)
}

func TestWireProtocolDeriveKey(t *testing.T) {
	env := NewProtocolEnvironment(t)

	id := NextRequestID("derive")
	require.NoError(t, env.Submit(WireRequest{
		Operation:   "deriveKey",
		RequestID:   id,
		Password:    "hunter2",
		PayloadSize: 512,
	}.JSON()))

	result := RequireSuccess(t, env.Recorder().WaitResponse(t, id))
	derived, ok := result.(*kdf.Derived)
	require.True(t, ok, "result is %T, not *kdf.Derived", result)

	key, err := base64.StdEncoding.DecodeString(derived.Key)
	require.NoError(t, err)
	assert.Len(t, key, 32)
	RequireProgressComplete(t, env.Recorder().Progress(id))
}

func TestUnknownOperationRejectedAtParse(t *testing.T) {
	env := NewProtocolEnvironment(t)

	err := env.Submit(WireRequest{
		Operation: "compress",
		RequestID: NextRequestID("bogus"),
	}.JSON())
	require.Error(t, err)
	assert.ErrorIs(t, err, worker.ErrUnknownOperation)
	assert.Contains(t, err.Error(), "compress")

	// The worker is still healthy afterwards.
	id := NextRequestID("after")
	require.NoError(t, env.Submit(WireRequest{
		Operation: "deriveKey",
		RequestID: id,
		Password:  "still alive",
	}.JSON()))
	RequireSuccess(t, env.Recorder().WaitResponse(t, id))
}

func TestInterleavedRequestsCorrelate(t *testing.T) {
	env := NewProtocolEnvironment(t, worker.WithQueueSize(32))
	fixtures := NewTestFixtures()

	key := fixtures.Key("interleaved")
	const n = 8

	// Queue every encrypt before reading any response; the worker processes
	// them one at a time while events for different requests interleave in
	// the recorder.
	payloads := make(map[string]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("enc-%d", i)
		payloads[id] = fixtures.TextPayload(8192 + i)
		require.NoError(t, env.Submit(WireRequest{
			Operation: "encrypt",
			RequestID: id,
			Plaintext: payloads[id],
			Key:       key,
		}.JSON()))
	}

	sealed := make(map[string]string, n)
	for id := range payloads {
		sealed[id] = RequireStringResult(t, env.Recorder().WaitResponse(t, id))
		RequireProgressComplete(t, env.Recorder().Progress(id))
	}

	// Each envelope opens back to the payload submitted under the same id.
	for id, envl := range sealed {
		decID := "dec-" + id
		require.NoError(t, env.Submit(WireRequest{
			Operation: "decrypt",
			RequestID: decID,
			Data:      envl,
			Key:       key,
		}.JSON()))
		assert.Equal(t, payloads[id], RequireStringResult(t, env.Recorder().WaitResponse(t, decID)))
	}
}

func TestConcurrentClientsShareOneWorker(t *testing.T) {
	env := NewClientEnvironment(t, worker.WithQueueSize(32))
	fixtures := NewTestFixtures()
	ctx := context.Background()

	key := fixtures.Key("concurrent")
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf("goroutine %d payload", i)
			sealed, err := env.Client().Encrypt(ctx, payload, key, false, "")
			if err != nil {
				errs[i] = err
				return
			}
			plain, err := env.Client().Decrypt(ctx, sealed, key, false)
			if err != nil {
				errs[i] = err
				return
			}
			if plain != payload {
				errs[i] = fmt.Errorf("payload %d mismatched: %q", i, plain)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d", i)
	}
}

func TestFailureMessagesAreOracleSafe(t *testing.T) {
	env := NewProtocolEnvironment(t)
	fixtures := NewTestFixtures()

	key := fixtures.Key("oracle")
	sealed, err := sealViaProtocol(t, env, "the payload", key)
	require.NoError(t, err)

	// Every distinguishable failure cause maps to the same user-visible
	// message, so a caller cannot probe which part of the input was wrong.
	cases := []struct {
		name string
		req  WireRequest
	}{
		{
			name: "wrong key",
			req:  WireRequest{Operation: "decrypt", Data: sealed, Key: fixtures.Key("not the key")},
		},
		{
			name: "key one byte short",
			req:  WireRequest{Operation: "decrypt", Data: sealed, Key: fixtures.ShortKey()},
		},
		{
			name: "authentication tag destroyed",
			req:  WireRequest{Operation: "decrypt", Data: TruncateTail(sealed), Key: key},
		},
		{
			name: "ciphertext bit flipped",
			req:  WireRequest{Operation: "decrypt", Data: FlipCiphertextByte(sealed), Key: key},
		},
		{
			name: "no base64 content at all",
			req:  WireRequest{Operation: "decrypt", Data: "!!! ???", Key: key},
		},
		{
			name: "envelope shorter than a nonce",
			req:  WireRequest{Operation: "decrypt", Data: "AAAA", Key: key},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.RequestID = NextRequestID("oracle")
			require.NoError(t, env.Submit(tc.req.JSON()))

			resp := env.Recorder().WaitResponse(t, tc.req.RequestID)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Result)
			assert.Equal(t, "Invalid key or corrupted data", resp.Error)
		})
	}
}

// sealViaProtocol encrypts a payload over the wire protocol and returns the
// envelope text.
func sealViaProtocol(t *testing.T, env *TestEnvironment, payload, key string) (string, error) {
	t.Helper()

	id := NextRequestID("seal")
	if err := env.Submit(WireRequest{
		Operation: "encrypt",
		RequestID: id,
		Plaintext: payload,
		Key:       key,
	}.JSON()); err != nil {
		return "", err
	}
	return RequireStringResult(t, env.Recorder().WaitResponse(t, id)), nil
}
