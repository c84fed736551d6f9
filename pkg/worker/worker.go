// Package worker runs content-protection operations on a single dedicated
// goroutine and reports results and progress over a message channel.
//
// Callers communicate exclusively by message passing: Submit enqueues a
// Request, Events yields zero or more *Progress events followed by exactly one
// *Response per request. Requests are processed one at a time in arrival
// order, so no two operations ever share key material concurrently. There is
// no cancellation: once a request is dequeued it runs to completion or
// failure, and callers that stop caring must ignore late events by requestId
// (the Client does this).
package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pastecrypt/internal/constants"
	apperrors "pastecrypt/internal/errors"
	"pastecrypt/internal/metrics"
	"pastecrypt/internal/privacy"
	"pastecrypt/internal/tracing"
	"pastecrypt/internal/validation"
	"pastecrypt/pkg/engine"
	"pastecrypt/pkg/kdf"
)

// Worker owns the dedicated goroutine that executes crypto operations. Create
// with New, then Start; Submit and Events are only useful between Start and
// Stop. Stop lets the in-flight operation finish, fails anything still queued,
// and closes the event channel.
type Worker struct {
	engine          *engine.Engine
	logger          *logrus.Logger
	errlog          *apperrors.Logger
	queueSize       int
	eventBufferSize int
	shutdownTimeout time.Duration

	requests chan Request
	events   chan Event

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex

	processed atomic.Int64
	failed    atomic.Int64
}

// Option configures a Worker.
type Option func(*Worker)

// WithEngine replaces the crypto engine, which defaults to engine.New().
func WithEngine(e *engine.Engine) Option {
	return func(w *Worker) {
		if e != nil {
			w.engine = e
		}
	}
}

// WithQueueSize sets the request channel capacity. Submit blocks (or fails by
// context) while the queue is full.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithEventBufferSize sets the event channel capacity. A larger buffer lets
// the worker run ahead of a slow consumer; once it fills, the worker blocks
// at the next emit.
func WithEventBufferSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.eventBufferSize = n
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the in-flight operation.
func WithShutdownTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.shutdownTimeout = d
		}
	}
}

// New creates a stopped Worker. A nil logger discards log output.
func New(logger *logrus.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	w := &Worker{
		engine:          engine.New(),
		logger:          logger,
		errlog:          apperrors.WrapLogger(logger),
		queueSize:       constants.DefaultWorkerQueueSize,
		eventBufferSize: constants.DefaultEventBufferSize,
		shutdownTimeout: constants.DefaultShutdownTimeoutSec * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Start launches the worker goroutine. The context bounds the worker's
// lifetime: cancelling it has the same effect as Stop, except that queued
// requests still receive failure responses and the event channel still
// closes.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker: already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.requests = make(chan Request, w.queueSize)
	w.events = make(chan Event, w.eventBufferSize)
	w.running = true

	w.wg.Add(1)
	go w.run()

	w.logger.WithFields(logrus.Fields{
		"queue_size":   w.queueSize,
		"event_buffer": w.eventBufferSize,
	}).Info("Crypto worker started")

	return nil
}

// Stop gracefully stops the worker. The in-flight operation completes and
// queued requests are failed before the event channel closes. Returns an
// error when the shutdown timeout elapses first, which means the consumer
// stopped draining Events.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	w.logger.Info("Stopping crypto worker...")
	cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.WithFields(logrus.Fields{
			"processed": w.processed.Load(),
			"failed":    w.failed.Load(),
		}).Info("Crypto worker stopped")
		return nil
	case <-time.After(w.shutdownTimeout):
		w.logger.WithField("timeout", w.shutdownTimeout).Warn("Worker shutdown timeout exceeded; events are not being drained")
		return fmt.Errorf("worker: shutdown timeout exceeded after %s", w.shutdownTimeout)
	}
}

// IsRunning reports whether the worker accepts requests.
func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Stats is a point-in-time view of the worker's counters.
type Stats struct {
	Processed  int64
	Failed     int64
	QueueDepth int
	Running    bool
}

// Stats returns current counters. Safe to call from any goroutine.
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	running := w.running
	requests := w.requests
	w.mu.RUnlock()

	return Stats{
		Processed:  w.processed.Load(),
		Failed:     w.failed.Load(),
		QueueDepth: len(requests),
		Running:    running,
	}
}

// Submit enqueues a request. It blocks while the queue is full until ctx is
// done, and returns ErrNotRunning once the worker has stopped. Requests
// without a usable requestId are rejected here: their events would be
// unroutable.
func (w *Worker) Submit(ctx context.Context, req Request) error {
	w.mu.RLock()
	running := w.running
	wctx := w.ctx
	requests := w.requests
	w.mu.RUnlock()

	if !running {
		return ErrNotRunning
	}
	if err := validation.ValidateRequestID(req.RequestID()); err != nil {
		return err
	}

	select {
	case requests <- req:
		return nil
	case <-wctx.Done():
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the outbound channel for the current run. It carries every
// *Progress and *Response in emission order and closes after Stop once the
// final events are delivered. The consumer must drain it; an abandoned
// channel eventually blocks the worker.
func (w *Worker) Events() <-chan Event {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.events
}

func (w *Worker) run() {
	defer w.wg.Done()
	defer close(w.events)

	for {
		// Cancellation wins over a ready queue: requests still waiting when
		// the worker stops are failed, not processed.
		select {
		case <-w.ctx.Done():
			w.drainQueue()
			return
		default:
		}

		select {
		case <-w.ctx.Done():
			w.drainQueue()
			return
		case req := <-w.requests:
			metrics.SetGauge("worker.queue.depth", float64(len(w.requests)), nil)
			w.process(req)
		}
	}
}

// drainQueue fails every request still queued at shutdown so no submitted
// request goes unanswered.
func (w *Worker) drainQueue() {
	for {
		select {
		case req := <-w.requests:
			w.failed.Add(1)
			w.logger.WithFields(logrus.Fields{
				"operation":  req.Op(),
				"request_id": privacy.MaskRequestID(req.RequestID()),
			}).Warn("Request dropped by shutdown")
			w.emit(NewFailureResponse(req.RequestID(), ErrNotRunning))
		default:
			return
		}
	}
}

// process executes one request end to end: span, progress events, dispatch,
// metrics, and exactly one terminal Response. Every failure, panics included,
// crosses the boundary as a {success:false} response and never as a thrown
// error.
func (w *Worker) process(req Request) {
	op := req.Op()
	requestID := req.RequestID()

	ctx, span := tracing.WithOtelTracing(w.ctx, "worker."+string(op))
	defer span.End()
	ctx = tracing.WithRequestID(ctx, requestID)
	ctx = tracing.WithOperation(ctx, string(op))
	ctx = tracing.WithStartTime(ctx, time.Now())

	tracing.AddSpanAttributes(ctx,
		attribute.String("worker.operation", string(op)),
		attribute.String("worker.request_id", privacy.MaskRequestID(requestID)),
		attribute.Int64("worker.payload_bytes", payloadBytes(req)),
	)

	w.logger.WithFields(logrus.Fields{
		"operation":     op,
		"request_id":    privacy.MaskRequestID(requestID),
		"trace_id":      tracing.GetTraceID(ctx),
		"payload_bytes": payloadBytes(req),
	}).Debug("Operation dispatched")

	result, err := w.dispatch(req)
	duration := tracing.Duration(ctx)

	labels := map[string]string{"operation": string(op)}
	metrics.RecordTimer("worker.ops.duration", duration, labels)

	if err != nil {
		w.failed.Add(1)
		metrics.IncrementCounter("worker.ops.total", withStatus(labels, "failed"))

		appErr := apperrors.WithContextFromRequest(toAppError(err), ctx)
		tracing.RecordError(ctx, appErr)
		w.errlog.LogError(appErr, "Operation failed", logrus.Fields{
			"operation":   op,
			"request_id":  privacy.MaskRequestID(requestID),
			"duration_ms": duration.Milliseconds(),
		})

		w.emit(NewFailureResponse(requestID, err))
		return
	}

	w.processed.Add(1)
	metrics.IncrementCounter("worker.ops.total", withStatus(labels, "completed"))
	tracing.SetSpanStatus(ctx, codes.Ok, "")

	w.logger.WithFields(logrus.Fields{
		"operation":   op,
		"request_id":  privacy.MaskRequestID(requestID),
		"duration_ms": duration.Milliseconds(),
	}).Debug("Operation completed")

	w.emit(&Response{RequestID: requestID, Success: true, Result: result})
}

// dispatch routes a request to its operation. The switch is exhaustive over
// the sealed Request set; the default arm exists for foreign implementations
// and fails the request instead of panicking. A panic inside an operation is
// converted to an internal error here so it never crosses the worker
// boundary.
func (w *Worker) dispatch(req Request) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewInternalError(fmt.Errorf("panic in %s: %v", req.Op(), r))
		}
	}()

	progress := w.progressFor(req.Op(), req.RequestID())

	switch r := req.(type) {
	case DeriveKeyRequest:
		progress(0, constants.ProgressTotal)
		derived, err := kdf.Derive(r.Password, r.Salt, r.PayloadSize)
		if err != nil {
			return nil, err
		}
		// PBKDF2 is one atomic call; completion is the only honest
		// checkpoint after the start.
		progress(constants.ProgressTotal, constants.ProgressTotal)
		return derived, nil
	case EncryptRequest:
		return w.engine.EncryptWithProgress(r.Plaintext, r.Key, r.PasswordDerived, r.Salt, progress)
	case DecryptRequest:
		return w.engine.DecryptWithProgress(r.Envelope, r.Key, r.PasswordProtected, progress)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, req)
	}
}

// progressFor builds the callback that forwards stage progress as *Progress
// events. The percent stream is strictly increasing per request even if
// stages overlap, and 100 is forwarded at most once, ahead of the response.
func (w *Worker) progressFor(op Operation, requestID string) func(processed, total int64) {
	last := int64(-1)
	return func(processed, total int64) {
		if processed <= last {
			return
		}
		last = processed
		w.emit(&Progress{
			Operation: op,
			RequestID: requestID,
			Processed: processed,
			Total:     total,
		})
	}
}

// emit delivers an event in order. Blocking here when the buffer is full is
// the worker's backpressure: computation pauses until the consumer catches
// up.
func (w *Worker) emit(ev Event) {
	w.events <- ev
}

func payloadBytes(req Request) int64 {
	switch r := req.(type) {
	case DeriveKeyRequest:
		return r.PayloadSize
	case EncryptRequest:
		return int64(len(r.Plaintext))
	case DecryptRequest:
		return int64(len(r.Envelope))
	default:
		return 0
	}
}

func withStatus(labels map[string]string, status string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out["status"] = status
	return out
}
