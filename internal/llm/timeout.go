package llm

import (
	"context"
	"time"
)

// WithTimeout wraps a Client so every provider call runs under a deadline.
// A zero or negative d returns the client unchanged.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{inner: c, d: d}
}

type timeoutClient struct {
	inner Client
	d     time.Duration
}

func (t *timeoutClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	text, err := t.inner.Complete(ctx, prompt)
	return text, normalizeError(err)
}

func (t *timeoutClient) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	text, err := t.inner.CompleteJSON(ctx, prompt)
	return text, normalizeError(err)
}

// Stream applies the deadline to the whole streamed generation. The derived
// context is released when the stream is closed, not when Stream returns.
func (t *timeoutClient) Stream(ctx context.Context, prompt string) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	s, err := t.inner.Stream(ctx, prompt)
	if err != nil {
		cancel()
		return nil, normalizeError(err)
	}
	return &timeoutStream{inner: s, cancel: cancel}, nil
}

type timeoutStream struct {
	inner  Stream
	cancel context.CancelFunc
}

func (s *timeoutStream) Recv() (string, error) {
	return s.inner.Recv()
}

func (s *timeoutStream) Close() error {
	s.cancel()
	return s.inner.Close()
}
