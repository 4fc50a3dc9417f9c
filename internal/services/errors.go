// Package services defines the business logic for digest generation, sharing,
// and lifecycle management. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Digest-related errors.
var (
	// ErrEmptyTranscript is returned when a generation request contains an
	// empty or whitespace-only transcript.
	ErrEmptyTranscript = errors.New("transcript is empty")

	// ErrTranscriptTooLong is returned when a transcript exceeds the maximum
	// configured length limit.
	ErrTranscriptTooLong = errors.New("transcript too long")

	// ErrDigestNotFound indicates that the requested digest does not exist
	// or is not accessible through the requested path.
	ErrDigestNotFound = errors.New("digest not found")

	// ErrEmptyCompletion is returned when the model stream finished without
	// producing any text.
	ErrEmptyCompletion = errors.New("model returned empty completion")

	// ErrStorage wraps persistence failures so callers can distinguish a
	// digest that failed to store from one that failed to generate.
	ErrStorage = errors.New("digest storage failed")
)
