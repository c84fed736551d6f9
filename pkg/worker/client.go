package worker

import (
	"context"
	"fmt"
	"sync"

	"pastecrypt/internal/tracing"
	"pastecrypt/pkg/kdf"
)

// Client layers synchronous calls over the worker's message protocol. It
// generates a requestId per call, routes progress and response events back to
// the waiting caller, and drops events whose requestId is unknown, which is
// how late events from abandoned calls are ignored.
//
// A Client must wrap a started worker. Its routing goroutine exits when the
// worker's event channel closes; pending calls then fail with ErrNotRunning.
type Client struct {
	w *Worker

	mu    sync.Mutex
	calls map[string]*pendingCall

	done chan struct{}
}

type pendingCall struct {
	progress func(Progress)
	response chan *Response
}

// CallOption configures a single client call.
type CallOption func(*callOptions)

type callOptions struct {
	progress func(Progress)
}

// WithProgress streams the call's progress events to fn. fn runs on the
// client's routing goroutine: a slow fn delays event routing for every
// in-flight call and, once buffers fill, the worker itself.
func WithProgress(fn func(Progress)) CallOption {
	return func(o *callOptions) {
		o.progress = fn
	}
}

// NewClient wraps a started worker and begins routing its events.
func NewClient(w *Worker) *Client {
	c := &Client{
		w:     w,
		calls: make(map[string]*pendingCall),
		done:  make(chan struct{}),
	}
	go c.route()
	return c
}

// DeriveKey derives a key from a password. An empty salt generates a fresh
// one; payloadSize is the prospective ciphertext length and selects the
// iteration class.
func (c *Client) DeriveKey(ctx context.Context, password, salt string, payloadSize int64, opts ...CallOption) (*kdf.Derived, error) {
	resp, err := c.do(ctx, DeriveKeyRequest{
		ID:          tracing.GenerateRequestID(),
		Password:    password,
		Salt:        salt,
		PayloadSize: payloadSize,
	}, opts)
	if err != nil {
		return nil, err
	}
	derived, ok := resp.Result.(*kdf.Derived)
	if !ok {
		return nil, fmt.Errorf("worker: unexpected deriveKey result type %T", resp.Result)
	}
	return derived, nil
}

// Encrypt seals plaintext under base64 key material and returns the envelope
// text. For password-derived keys, pass the salt returned by DeriveKey so it
// travels inside the envelope.
func (c *Client) Encrypt(ctx context.Context, plaintext, key string, passwordDerived bool, salt string, opts ...CallOption) (string, error) {
	resp, err := c.do(ctx, EncryptRequest{
		ID:              tracing.GenerateRequestID(),
		Plaintext:       plaintext,
		Key:             key,
		PasswordDerived: passwordDerived,
		Salt:            salt,
	}, opts)
	if err != nil {
		return "", err
	}
	return stringResult(resp)
}

// Decrypt opens envelope text. When passwordProtected is true, key carries
// the password and the worker re-derives the key from the envelope's salt.
func (c *Client) Decrypt(ctx context.Context, envelopeText, key string, passwordProtected bool, opts ...CallOption) (string, error) {
	resp, err := c.do(ctx, DecryptRequest{
		ID:                tracing.GenerateRequestID(),
		Envelope:          envelopeText,
		Key:               key,
		PasswordProtected: passwordProtected,
	}, opts)
	if err != nil {
		return "", err
	}
	return stringResult(resp)
}

// do registers the call, submits the request, and waits for its response. On
// ctx expiry the call is deregistered: the operation still runs to completion
// inside the worker, but its remaining events fall on the floor.
func (c *Client) do(ctx context.Context, req Request, opts []CallOption) (*Response, error) {
	var o callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	id := req.RequestID()
	call := &pendingCall{
		progress: o.progress,
		response: make(chan *Response, 1),
	}

	c.mu.Lock()
	c.calls[id] = call
	c.mu.Unlock()

	if err := c.w.Submit(ctx, req); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case resp := <-call.response:
		if !resp.Success {
			return nil, &OperationError{RequestID: id, Message: resp.Error}
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrNotRunning
	}
}

// route distributes worker events to pending calls by requestId until the
// worker's event channel closes.
func (c *Client) route() {
	defer close(c.done)

	for ev := range c.w.Events() {
		switch e := ev.(type) {
		case *Progress:
			c.mu.Lock()
			call := c.calls[e.RequestID]
			c.mu.Unlock()
			if call != nil && call.progress != nil {
				call.progress(*e)
			}
		case *Response:
			c.mu.Lock()
			call := c.calls[e.RequestID]
			delete(c.calls, e.RequestID)
			c.mu.Unlock()
			if call != nil {
				call.response <- e
			}
		}
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.calls, id)
	c.mu.Unlock()
}

func stringResult(resp *Response) (string, error) {
	s, ok := resp.Result.(string)
	if !ok {
		return "", fmt.Errorf("worker: unexpected result type %T", resp.Result)
	}
	return s, nil
}
