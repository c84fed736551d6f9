package integration_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"pastecrypt/pkg/engine"
	"pastecrypt/pkg/worker"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestEnvironment owns one running worker plus the plumbing a test needs to
// talk to it. Client mode wraps the worker in a worker.Client; protocol mode
// leaves the raw Submit/Events channels exposed through an EventRecorder.
// The two modes are exclusive because each consumes the events channel.
type TestEnvironment struct {
	t      *testing.T
	worker *worker.Worker
	client *worker.Client
	rec    *EventRecorder
}

// NewClientEnvironment starts a worker and wraps it in a Client.
func NewClientEnvironment(t *testing.T, opts ...worker.Option) *TestEnvironment {
	env := newEnvironment(t, opts...)
	env.client = worker.NewClient(env.worker)
	return env
}

// NewProtocolEnvironment starts a worker and an EventRecorder draining its
// events channel, for tests that drive the wire protocol directly.
func NewProtocolEnvironment(t *testing.T, opts ...worker.Option) *TestEnvironment {
	env := newEnvironment(t, opts...)
	env.rec = NewEventRecorder(env.worker.Events())
	return env
}

func newEnvironment(t *testing.T, opts ...worker.Option) *TestEnvironment {
	t.Helper()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(io.Discard)

	env := &TestEnvironment{t: t}

	defaults := []worker.Option{worker.WithEngine(engine.New())}
	w := worker.New(logger, append(defaults, opts...)...)
	require.NoError(t, w.Start(context.Background()))

	env.worker = w
	t.Cleanup(env.Cleanup)
	return env
}

// Client returns the client facade. Only valid in client mode.
func (env *TestEnvironment) Client() *worker.Client {
	require.NotNil(env.t, env.client, "environment was not built in client mode")
	return env.client
}

// Worker returns the underlying worker.
func (env *TestEnvironment) Worker() *worker.Worker {
	return env.worker
}

// Recorder returns the event recorder. Only valid in protocol mode.
func (env *TestEnvironment) Recorder() *EventRecorder {
	require.NotNil(env.t, env.rec, "environment was not built in protocol mode")
	return env.rec
}

// Submit parses a wire-form request and submits it, the path a hosting
// application takes when requests arrive as JSON.
func (env *TestEnvironment) Submit(raw []byte) error {
	req, err := worker.ParseRequest(raw)
	if err != nil {
		return err
	}
	return env.worker.Submit(context.Background(), req)
}

// Cleanup stops the worker, then waits for the recorder to finish draining
// the closed events channel. Registered automatically via t.Cleanup; calling
// it twice is harmless.
func (env *TestEnvironment) Cleanup() {
	_ = env.worker.Stop()
	if env.rec != nil {
		env.rec.Wait()
	}
}

// EventRecorder drains a worker's events channel, keeping per-request
// progress history and routing each terminal response to a waiting test.
// It also preserves the global arrival order so tests can assert ordering
// guarantees across event kinds.
type EventRecorder struct {
	mu        sync.Mutex
	order     []worker.Event
	progress  map[string][]worker.Progress
	responses map[string]chan *worker.Response
	done      chan struct{}
}

// NewEventRecorder starts draining events until the channel closes.
func NewEventRecorder(events <-chan worker.Event) *EventRecorder {
	rec := &EventRecorder{
		progress:  make(map[string][]worker.Progress),
		responses: make(map[string]chan *worker.Response),
		done:      make(chan struct{}),
	}

	go func() {
		defer close(rec.done)
		for ev := range events {
			rec.record(ev)
		}
	}()

	return rec
}

func (rec *EventRecorder) record(ev worker.Event) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.order = append(rec.order, ev)
	switch e := ev.(type) {
	case *worker.Progress:
		rec.progress[e.RequestID] = append(rec.progress[e.RequestID], *e)
	case *worker.Response:
		rec.channelFor(e.RequestID) <- e
	}
}

// channelFor returns the response channel for a request, creating it on first
// use. Callers must hold rec.mu.
func (rec *EventRecorder) channelFor(requestID string) chan *worker.Response {
	ch, ok := rec.responses[requestID]
	if !ok {
		ch = make(chan *worker.Response, 1)
		rec.responses[requestID] = ch
	}
	return ch
}

// WaitResponse blocks until the terminal response for requestID arrives.
func (rec *EventRecorder) WaitResponse(t *testing.T, requestID string) *worker.Response {
	t.Helper()

	rec.mu.Lock()
	ch := rec.channelFor(requestID)
	rec.mu.Unlock()

	select {
	case resp := <-ch:
		return resp
	case <-time.After(30 * time.Second):
		t.Fatalf("timed out waiting for response to %s", requestID)
		return nil
	}
}

// Progress returns a copy of the progress events recorded for a request, in
// arrival order.
func (rec *EventRecorder) Progress(requestID string) []worker.Progress {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	out := make([]worker.Progress, len(rec.progress[requestID]))
	copy(out, rec.progress[requestID])
	return out
}

// Events returns a copy of every recorded event in arrival order.
func (rec *EventRecorder) Events() []worker.Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	out := make([]worker.Event, len(rec.order))
	copy(out, rec.order)
	return out
}

// Wait blocks until the events channel has closed and every event is
// recorded. Call after stopping the worker.
func (rec *EventRecorder) Wait() {
	<-rec.done
}

// RequireSuccess fails the test unless the response succeeded, and returns
// its result.
func RequireSuccess(t *testing.T, resp *worker.Response) interface{} {
	t.Helper()
	require.True(t, resp.Success, "request %s failed: %s", resp.RequestID, resp.Error)
	require.Empty(t, resp.Error)
	return resp.Result
}

// RequireStringResult fails the test unless the response succeeded with a
// string result.
func RequireStringResult(t *testing.T, resp *worker.Response) string {
	t.Helper()
	result, ok := RequireSuccess(t, resp).(string)
	require.True(t, ok, "request %s result is %T, not string", resp.RequestID, resp.Result)
	return result
}

// RequireProgressComplete asserts the percent contract on a request's
// progress stream: totals pinned to 100, strictly increasing values, final
// value exactly 100.
func RequireProgressComplete(t *testing.T, events []worker.Progress) {
	t.Helper()

	require.NotEmpty(t, events, "no progress events recorded")
	prev := int64(-1)
	for i, ev := range events {
		require.EqualValues(t, 100, ev.Total, "event %d total", i)
		require.Greater(t, ev.Processed, prev, "event %d did not increase", i)
		require.LessOrEqual(t, ev.Processed, int64(100), "event %d overshot", i)
		prev = ev.Processed
	}
	require.EqualValues(t, 100, events[len(events)-1].Processed, "final progress short of 100")
}

// NextRequestID returns a unique request id for protocol-mode tests.
func NextRequestID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
