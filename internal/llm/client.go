// Package llm abstracts the upstream language-model provider behind a small
// interface so services and tests never import provider SDKs directly. The
// concrete implementation talks to the Gemini API; tests substitute scripted
// fakes.
package llm

import "context"

// Client is the minimal surface the digest pipeline needs from a model
// provider: one-shot completions, JSON-constrained completions, and
// incremental streaming.
type Client interface {
	// Complete returns the full completion text for prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteJSON returns the completion text for prompt with the provider
	// instructed to emit a JSON object.
	CompleteJSON(ctx context.Context, prompt string) (string, error)

	// Stream starts an incremental completion. The caller must drain the
	// returned Stream and Close it when done.
	Stream(ctx context.Context, prompt string) (Stream, error)
}

// Stream yields completion text incrementally. Recv returns io.EOF after the
// final delta has been delivered.
type Stream interface {
	// Recv blocks until the next text delta is available. It returns io.EOF
	// when the completion is finished, or a normalized error on failure.
	Recv() (string, error)

	// Close releases resources associated with the stream. It is safe to
	// call multiple times.
	Close() error
}
