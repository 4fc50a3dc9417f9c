package services

import "github.com/tbourn/go-digest-backend/internal/domain"

// EventType labels the lifecycle phases a streaming generation passes
// through, in the order a consumer will observe them.
type EventType string

const (
	// EventStarted is emitted once, before the first content delta.
	EventStarted EventType = "started"
	// EventContent carries one incremental text delta from the model.
	EventContent EventType = "content"
	// EventParsing is emitted when the stream is exhausted and the
	// accumulated text enters structured parsing.
	EventParsing EventType = "parsing"
	// EventComplete carries the persisted digest and terminates the sequence.
	EventComplete EventType = "complete"
	// EventError carries a failure and terminates the sequence.
	EventError EventType = "error"
)

// Event is one element of the ordered sequence produced by GenerateStream.
// Exactly one of Text, Digest, or Err is populated, depending on Type.
type Event struct {
	Type   EventType
	Text   string
	Digest *domain.Digest
	Err    error
}
