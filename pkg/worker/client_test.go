package worker

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pastecrypt/internal/constants"
	"pastecrypt/pkg/engine"
)

func startClient(t *testing.T, opts ...Option) (*Worker, *Client) {
	t.Helper()

	w := New(nil, opts...)
	require.NoError(t, w.Start(context.Background()))
	c := NewClient(w)
	t.Cleanup(func() {
		_ = w.Stop()
		select {
		case <-c.done:
		case <-time.After(30 * time.Second):
			t.Fatal("client routing loop never exited")
		}
	})
	return w, c
}

func TestClientDirectKeyRoundTrip(t *testing.T) {
	_, c := startClient(t)
	ctx := context.Background()
	key := testKeyB64(t)

	sealed, err := c.Encrypt(ctx, "hello client", key, false, "")
	require.NoError(t, err)

	plaintext, err := c.Decrypt(ctx, sealed, key, false)
	require.NoError(t, err)
	assert.Equal(t, "hello client", plaintext)
}

func TestClientPasswordFlow(t *testing.T) {
	_, c := startClient(t)
	ctx := context.Background()
	plaintext := "the password flow"
	payloadSize := int64(len(plaintext) + engine.Overhead)

	derived, err := c.DeriveKey(ctx, "correct horse", "", payloadSize)
	require.NoError(t, err)
	require.NotEmpty(t, derived.Key)
	require.NotEmpty(t, derived.Salt)

	sealed, err := c.Encrypt(ctx, plaintext, derived.Key, true, derived.Salt)
	require.NoError(t, err)

	recovered, err := c.Decrypt(ctx, sealed, "correct horse", true)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)

	t.Run("wrong password surfaces the generic message", func(t *testing.T) {
		_, err := c.Decrypt(ctx, sealed, "incorrect horse", true)
		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "Invalid key or corrupted data", opErr.Message)
		assert.NotEmpty(t, opErr.RequestID)
	})
}

func TestClientOperationError(t *testing.T) {
	_, c := startClient(t)

	_, err := c.Decrypt(context.Background(), "!!!", testKeyB64(t), false)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "Invalid key or corrupted data", opErr.Message)
	assert.Contains(t, opErr.Error(), opErr.RequestID)
}

func TestClientProgressOption(t *testing.T) {
	_, c := startClient(t)

	payload := make([]byte, 2<<20)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	var mu sync.Mutex
	var events []Progress
	_, err = c.Encrypt(context.Background(), string(payload), testKeyB64(t), false, "",
		WithProgress(func(p Progress) {
			mu.Lock()
			events = append(events, p)
			mu.Unlock()
		}))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Processed, events[i-1].Processed)
	}
	assert.Equal(t, int64(constants.ProgressTotal), events[len(events)-1].Processed)
	assert.Equal(t, OpEncrypt, events[0].Operation)
}

func TestClientAbandonsCallOnContextExpiry(t *testing.T) {
	gate := make(chan struct{})
	_, c := startClient(t,
		WithEngine(engine.New(engine.WithRandom(&gatedReader{gate: gate}))),
		WithShutdownTimeout(30*time.Second),
	)
	key := testKeyB64(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Encrypt(ctx, "slow payload", key, false, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned operation still runs to completion inside the worker;
	// its late events are dropped by requestId and the client stays usable.
	close(gate)
	sealed, err := c.Encrypt(context.Background(), "next payload", key, false, "")
	require.NoError(t, err)
	assert.NotEmpty(t, sealed)
}

func TestClientConcurrentCallsCorrelate(t *testing.T) {
	_, c := startClient(t)
	key := testKeyB64(t)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plaintext := fmt.Sprintf("caller %d payload %d", i, i*i)

			sealed, err := c.Encrypt(context.Background(), plaintext, key, false, "")
			if err != nil {
				errs <- err
				return
			}
			recovered, err := c.Decrypt(context.Background(), sealed, key, false)
			if err != nil {
				errs <- err
				return
			}
			if recovered != plaintext {
				errs <- fmt.Errorf("caller %d got someone else's plaintext: %q", i, recovered)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestClientPendingCallFailsOnWorkerStop(t *testing.T) {
	gate := make(chan struct{})
	w := New(nil,
		WithEngine(engine.New(engine.WithRandom(&gatedReader{gate: gate}))),
		WithQueueSize(4),
		WithShutdownTimeout(30*time.Second),
	)
	require.NoError(t, w.Start(context.Background()))
	c := NewClient(w)
	key := testKeyB64(t)

	// Occupy the worker, then queue a second call behind it.
	inFlight := make(chan error, 1)
	go func() {
		_, err := c.Encrypt(context.Background(), "in flight", key, false, "")
		inFlight <- err
	}()
	require.Eventually(t, func() bool { return w.Stats().QueueDepth == 0 && len(c.callIDs()) == 1 },
		5*time.Second, time.Millisecond)

	queued := make(chan error, 1)
	go func() {
		_, err := c.Encrypt(context.Background(), "queued", key, false, "")
		queued <- err
	}()
	require.Eventually(t, func() bool { return len(c.callIDs()) == 2 }, 5*time.Second, time.Millisecond)

	stopErr := make(chan error, 1)
	go func() { stopErr <- w.Stop() }()
	close(gate)

	require.NoError(t, <-stopErr)
	assert.NoError(t, <-inFlight, "in-flight call completes")

	err := <-queued
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr, "queued call fails with the worker's drain response")
	assert.Equal(t, "Worker stopped", opErr.Message)

	_, err = c.Encrypt(context.Background(), "after stop", key, false, "")
	assert.ErrorIs(t, err, ErrNotRunning)
}

// callIDs exposes the in-flight request ids for test synchronization.
func (c *Client) callIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.calls))
	for id := range c.calls {
		ids = append(ids, id)
	}
	return ids
}

func TestClientUnknownResultTypeGuard(t *testing.T) {
	// A deriveKey response carries *kdf.Derived; the string accessors must
	// reject it rather than mis-cast.
	resp := &Response{RequestID: "r", Success: true, Result: 42}
	_, err := stringResult(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected result type")
}
