// Package services – DigestService
//
// This file implements DigestService, the application-level component that
// owns digest generation. It validates transcripts, drives the model client
// (one-shot or streaming), runs the parsing fallback ladder over the raw
// completion, and persists the resulting digest. Streaming generation is
// exposed as an ordered event sequence so the transport layer can relay
// deltas to the client while the service keeps accumulating.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include digest identifiers and transcript sizes where applicable.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/domain"
	"github.com/tbourn/go-digest-backend/internal/llm"
	"github.com/tbourn/go-digest-backend/internal/parse"
	"github.com/tbourn/go-digest-backend/internal/prompt"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// eventBuffer bounds how far the pipeline can run ahead of a slow consumer
// before delta emission blocks.
const eventBuffer = 8

// DigestRepo defines the repository contract required by DigestService.
// Implementations are responsible for persistence of digest aggregates.
type DigestRepo interface {
	// CreateDigest inserts a new digest row.
	CreateDigest(ctx context.Context, db *gorm.DB, d *domain.Digest) error

	// GetDigest fetches a digest by internal id.
	GetDigest(ctx context.Context, db *gorm.DB, id string) (*domain.Digest, error)

	// GetDigestByPublicID fetches a public digest by share token.
	GetDigestByPublicID(ctx context.Context, db *gorm.DB, publicID string) (*domain.Digest, error)

	// ListDigestsPage returns a page of digests plus the total count.
	ListDigestsPage(ctx context.Context, db *gorm.DB, skip, limit int) ([]domain.Digest, int64, error)

	// UpdateDigestContent replaces the generated fields of a digest.
	UpdateDigestContent(ctx context.Context, db *gorm.DB, d *domain.Digest) error

	// UpdateDigestVisibility toggles the public share flag.
	UpdateDigestVisibility(ctx context.Context, db *gorm.DB, id string, isPublic bool) (*domain.Digest, error)

	// DeleteDigest removes a digest by id.
	DeleteDigest(ctx context.Context, db *gorm.DB, id string) error
}

// DigestService coordinates model calls, parsing, and digest persistence.
type DigestService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the digest repository used by this service.
	Repo DigestRepo
	// Model is the language-model client producing completions.
	Model llm.Client

	// MaxTranscriptRunes caps accepted transcripts by rune length.
	MaxTranscriptRunes int
	// ShareNewByDefault controls the is_public flag on freshly created digests.
	ShareNewByDefault bool
}

// ValidateTranscript applies the input rules shared by all generation paths:
// non-empty after trimming, and within the configured length bound. Handlers
// call this before committing to a streaming response.
func (s *DigestService) ValidateTranscript(transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		return ErrEmptyTranscript
	}
	if s.MaxTranscriptRunes > 0 && utf8.RuneCountInString(transcript) > s.MaxTranscriptRunes {
		return ErrTranscriptTooLong
	}
	return nil
}

// Generate produces and persists a digest for transcript in one shot.
//
// The structured (JSON-constrained) completion is preferred; when it fails or
// decodes to nothing usable, the plain completion is parsed through the
// fallback ladder instead. Failed generations are never persisted.
func (s *DigestService) Generate(ctx context.Context, transcript string) (*domain.Digest, error) {
	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.Int("transcript.len", len(transcript)),
		),
	)
	defer span.End()

	if err := s.ValidateTranscript(transcript); err != nil {
		return nil, err
	}

	result, err := s.completeStructured(ctx, transcript)
	if err != nil {
		return nil, err
	}

	return s.persistNew(ctx, transcript, result)
}

// completeStructured asks for a JSON completion first and degrades to the
// free-text prompt plus parse ladder when the structured call fails.
func (s *DigestService) completeStructured(ctx context.Context, transcript string) (parse.Result, error) {
	text, err := s.Model.CompleteJSON(ctx, prompt.DigestJSON(transcript))
	if err == nil {
		if r, ok := parse.FromJSON(text); ok {
			return fillParsed(r), nil
		}
		// Structured call answered but not with a digest object; run the
		// full ladder over whatever came back.
		return parse.Digest(text), nil
	}
	// Quota/auth/timeout failures apply to the fallback call too.
	if errors.Is(err, llm.ErrQuotaExceeded) || errors.Is(err, llm.ErrAuth) || errors.Is(err, llm.ErrTimeout) {
		return parse.Result{}, err
	}

	text, err = s.Model.Complete(ctx, prompt.Digest(transcript))
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			return parse.Result{}, ErrEmptyCompletion
		}
		return parse.Result{}, err
	}
	return parse.Digest(text), nil
}

// GenerateStream produces a digest while relaying model output incrementally.
//
// The returned channel yields, in order: one started event, zero or more
// content events (one per provider delta, unbuffered beyond eventBuffer), a
// parsing event once the stream is exhausted, and finally either a complete
// event carrying the persisted digest or an error event. The channel is
// closed after the terminal event.
//
// Cancellation of ctx while deltas are still arriving abandons the
// generation without persisting anything. Once the stream is exhausted the
// digest is persisted even if ctx is cancelled afterwards, so a client that
// disconnects between the last delta and the complete event still gets a
// stored digest.
func (s *DigestService) GenerateStream(ctx context.Context, transcript string) <-chan Event {
	events := make(chan Event, eventBuffer)

	go func() {
		defer close(events)

		tr := otel.Tracer("services/DigestService")
		ctx, span := tr.Start(ctx, "GenerateStream",
			trace.WithAttributes(
				attribute.Int("transcript.len", len(transcript)),
			),
		)
		defer span.End()

		if err := s.ValidateTranscript(transcript); err != nil {
			emit(ctx, events, Event{Type: EventError, Err: err})
			return
		}

		// Kick off the structured call in parallel with the stream; its
		// result is consulted only after the stream is drained.
		structured := s.structuredAsync(ctx, transcript)

		stream, err := s.Model.Stream(ctx, prompt.Digest(transcript))
		if err != nil {
			emit(ctx, events, Event{Type: EventError, Err: err})
			return
		}
		defer stream.Close()

		if !emit(ctx, events, Event{Type: EventStarted}) {
			return
		}

		var acc strings.Builder
		for {
			delta, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				emit(ctx, events, Event{Type: EventError, Err: err})
				return
			}
			acc.WriteString(delta)
			if !emit(ctx, events, Event{Type: EventContent, Text: delta}) {
				return // client gone mid-stream: nothing is persisted
			}
		}

		full := acc.String()
		if strings.TrimSpace(full) == "" {
			emit(ctx, events, Event{Type: EventError, Err: ErrEmptyCompletion})
			return
		}

		emit(ctx, events, Event{Type: EventParsing})

		result, ok := <-structured
		if !ok || result.Overview == "" {
			result = parse.Digest(full)
		}

		// The stream completed; persistence must not be lost to a client
		// that disconnected while we were parsing.
		digest, err := s.persistNew(context.WithoutCancel(ctx), transcript, result)
		if err != nil {
			emit(ctx, events, Event{Type: EventError, Err: err})
			return
		}
		// Persistence already happened; a gone client just means the
		// terminal event is undeliverable, never that the goroutine parks
		// on a full buffer.
		emit(ctx, events, Event{Type: EventComplete, Digest: digest})
	}()

	return events
}

// structuredAsync runs the JSON-constrained completion concurrently with the
// stream. The channel is closed without a value when the call fails; the
// caller then falls back to the parse ladder over the accumulated text.
func (s *DigestService) structuredAsync(ctx context.Context, transcript string) <-chan parse.Result {
	out := make(chan parse.Result, 1)
	go func() {
		defer close(out)
		text, err := s.Model.CompleteJSON(ctx, prompt.DigestJSON(transcript))
		if err != nil {
			return
		}
		if r, ok := parse.FromJSON(text); ok {
			out <- fillParsed(r)
		}
	}()
	return out
}

// emit delivers ev unless ctx is done, reporting whether delivery happened.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// persistNew stores a freshly generated digest and returns the stored row.
func (s *DigestService) persistNew(ctx context.Context, transcript string, r parse.Result) (*domain.Digest, error) {
	d := &domain.Digest{
		OriginalTranscript: transcript,
		Overview:           r.Overview,
		KeyDecisions:       domain.StringList(r.KeyDecisions),
		ActionItems:        domain.StringList(r.ActionItems),
		IsPublic:           s.ShareNewByDefault,
	}
	if err := s.Repo.CreateDigest(ctx, s.DB, d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return d, nil
}

// fillParsed normalizes a structured-decode result so stored digests never
// carry missing fields: nil lists become empty, a blank overview gets the
// placeholder.
func fillParsed(r parse.Result) parse.Result {
	if strings.TrimSpace(r.Overview) == "" {
		r.Overview = parse.DefaultOverview
	}
	if r.KeyDecisions == nil {
		r.KeyDecisions = []string{}
	}
	if r.ActionItems == nil {
		r.ActionItems = []string{}
	}
	return r
}

// Regenerate replaces the content of an existing digest from a new
// transcript, preserving its id, public_id, visibility, and created_at.
func (s *DigestService) Regenerate(ctx context.Context, id, transcript string) (*domain.Digest, error) {
	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "Regenerate",
		trace.WithAttributes(
			attribute.String("digest.id", id),
			attribute.Int("transcript.len", len(transcript)),
		),
	)
	defer span.End()

	if err := s.ValidateTranscript(transcript); err != nil {
		return nil, err
	}

	existing, err := s.Repo.GetDigest(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDigestNotFound
		}
		return nil, err
	}

	result, err := s.completeStructured(ctx, transcript)
	if err != nil {
		return nil, err
	}

	existing.OriginalTranscript = transcript
	existing.Overview = result.Overview
	existing.KeyDecisions = domain.StringList(result.KeyDecisions)
	existing.ActionItems = domain.StringList(result.ActionItems)

	if err := s.Repo.UpdateDigestContent(ctx, s.DB, existing); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return s.Repo.GetDigest(ctx, s.DB, id)
}

// Get returns a digest by internal id.
func (s *DigestService) Get(ctx context.Context, id string) (*domain.Digest, error) {
	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("digest.id", id)),
	)
	defer span.End()

	d, err := s.Repo.GetDigest(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDigestNotFound
		}
		return nil, err
	}
	return d, nil
}

// GetShared returns a digest by its public share token. Digests whose
// visibility has been turned off are indistinguishable from missing ones.
func (s *DigestService) GetShared(ctx context.Context, publicID string) (*domain.Digest, error) {
	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "GetShared",
		trace.WithAttributes(attribute.String("digest.public_id", publicID)),
	)
	defer span.End()

	d, err := s.Repo.GetDigestByPublicID(ctx, s.DB, publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDigestNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListPage returns a page of digests, newest first.
// It applies defaults for invalid skip/limit and returns the total count.
func (s *DigestService) ListPage(ctx context.Context, skip, limit int) ([]domain.Digest, int64, error) {
	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page.skip", skip),
			attribute.Int("page.limit", limit),
		),
	)
	defer span.End()

	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 20
	}

	items, total, err := s.Repo.ListDigestsPage(ctx, s.DB, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []domain.Digest{}
	}
	return items, total, nil
}

// UpdateVisibility toggles the public share flag on a digest.
func (s *DigestService) UpdateVisibility(ctx context.Context, id string, isPublic bool) (*domain.Digest, error) {
	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "UpdateVisibility",
		trace.WithAttributes(
			attribute.String("digest.id", id),
			attribute.Bool("digest.public", isPublic),
		),
	)
	defer span.End()

	d, err := s.Repo.UpdateDigestVisibility(ctx, s.DB, id, isPublic)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDigestNotFound
		}
		return nil, err
	}
	return d, nil
}

// Delete removes a digest by id.
func (s *DigestService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("digest.id", id)),
	)
	defer span.End()

	if err := s.Repo.DeleteDigest(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDigestNotFound
		}
		return err
	}
	return nil
}
