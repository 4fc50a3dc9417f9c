// Digest HTTP handlers.
//
// This file exposes REST endpoints for digest resources:
//   - POST   /digests                    (generate, one-shot)
//   - POST   /digests/stream             (generate, SSE streaming)
//   - GET    /digests                    (list, paginated, ETag support)
//   - GET    /digests/{id}              (fetch by internal id)
//   - GET    /digests/share/{public_id}  (fetch by share token, public only)
//   - PUT    /digests/{id}              (regenerate from a new transcript)
//   - PATCH  /digests/{id}/visibility   (toggle sharing)
//   - DELETE /digests/{id}              (delete)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional and
// streaming responses).
//
// Idempotency:
// If the client supplies an Idempotency-Key header on POST /digests and a
// previous successful result exists for that key, the handler returns the
// previously persisted digest and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/domain"
	"github.com/tbourn/go-digest-backend/internal/http/middleware"
	"github.com/tbourn/go-digest-backend/internal/llm"
	"github.com/tbourn/go-digest-backend/internal/repo"
	"github.com/tbourn/go-digest-backend/internal/services"
	"github.com/tbourn/go-digest-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DigestService defines digest lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DigestService interface {
	// ValidateTranscript applies the shared input rules without side effects.
	ValidateTranscript(transcript string) error
	// Generate produces and persists a digest in one shot.
	Generate(ctx context.Context, transcript string) (*domain.Digest, error)
	// GenerateStream produces a digest while relaying model deltas as events.
	GenerateStream(ctx context.Context, transcript string) <-chan services.Event
	// Regenerate replaces a digest's content from a new transcript.
	Regenerate(ctx context.Context, id, transcript string) (*domain.Digest, error)
	// Get fetches a digest by internal id.
	Get(ctx context.Context, id string) (*domain.Digest, error)
	// GetShared fetches a public digest by share token.
	GetShared(ctx context.Context, publicID string) (*domain.Digest, error)
	// ListPage returns a page of digests and the total count.
	ListPage(ctx context.Context, skip, limit int) ([]domain.Digest, int64, error)
	// UpdateVisibility toggles the public share flag.
	UpdateVisibility(ctx context.Context, id string, isPublic bool) (*domain.Digest, error)
	// Delete removes a digest by id.
	Delete(ctx context.Context, id string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for digest resources. It depends on an
// abstract service interface to keep transport concerns separate from
// business logic.
type Handlers struct {
	digestSvc DigestService
}

// New constructs and returns a Handlers instance bound to the given service.
func New(digestSvc DigestService) *Handlers {
	return &Handlers{digestSvc: digestSvc}
}

//
// DTOs
//

// TranscriptRequest is the JSON payload for generating or regenerating a digest.
type TranscriptRequest struct {
	// Transcript is the raw meeting transcript. It must be non-empty.
	Transcript string `json:"transcript" binding:"required,min=1" example:"Alice: We decided to ship Friday. Bob: I'll write the release notes."`
}

// VisibilityRequest is the JSON payload for toggling digest sharing.
type VisibilityRequest struct {
	// IsPublic enables or disables access via the public share link.
	IsPublic *bool `json:"is_public" binding:"required" example:"true"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Skip    int   `json:"skip"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasNext bool  `json:"has_next"`
}

// ListDigestsResponse wraps a page of digests and pagination information.
type ListDigestsResponse struct {
	Digests    []domain.Digest `json:"digests"`
	Pagination Pagination      `json:"pagination"`
}

// streamPayload is the JSON body of one SSE `data:` frame.
type streamPayload struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Digest  *domain.Digest `json:"digest,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
}

//
// Helpers
//

// clampListParams parses and bounds skip and limit query params to sane
// defaults and limits, returning (skip, limit).
func clampListParams(c *gin.Context) (skip, limit int) {
	const (
		defaultLimit = 20
		maxLimit     = 100
	)
	skip = utils.AtoiDefault(c.Query("skip"), 0)
	if skip < 0 {
		skip = 0
	}
	limit = utils.AtoiDefault(c.Query("limit"), defaultLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return
}

// mapGenerationError translates service/provider failures into an HTTP
// status plus a stable error code.
func mapGenerationError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrEmptyTranscript),
		errors.Is(err, services.ErrTranscriptTooLong):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, services.ErrDigestNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, llm.ErrQuotaExceeded):
		return http.StatusTooManyRequests, ErrCodeUpstreamQuota
	case errors.Is(err, llm.ErrTimeout):
		return http.StatusRequestTimeout, ErrCodeUpstreamTimeout
	case errors.Is(err, services.ErrStorage):
		// Generation succeeded; only the persist failed.
		return http.StatusInternalServerError, ErrCodeStorageFailed
	default:
		return http.StatusInternalServerError, ErrCodeGenerationFailed
	}
}

// mapLookupError translates read/mutation failures: a missing digest stays a
// 404, anything else is a storage fault.
func mapLookupError(err error) (int, string, string) {
	if errors.Is(err, services.ErrDigestNotFound) {
		return http.StatusNotFound, ErrCodeNotFound, "digest not found"
	}
	return http.StatusInternalServerError, ErrCodeStorageFailed, err.Error()
}

// middlewareGetIdempotencyKey extracts an idempotency key if an upstream
// middleware has already validated/stashed it. The fallback behavior reads
// the "Idempotency-Key" header directly when no dedicated middleware exists.
func middlewareGetIdempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}

// serviceDB exposes the GORM handle when the service is the concrete
// implementation; used for best-effort ETag and idempotency checks.
func (h *Handlers) serviceDB() *gorm.DB {
	if svc, ok := h.digestSvc.(*services.DigestService); ok {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// CreateDigest godoc
// @ID          createDigest
// @Summary     Generate a digest from a transcript
// @Description Runs the full generation pipeline and returns the persisted digest.
// @Description Supports idempotency via the Idempotency-Key header (same key → same digest).
// @Tags        Digests
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.TranscriptRequest  true  "Transcript payload"
//
// @Success     201  {object}  domain.Digest
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     408  {object}  handlers.ErrorResponse  "Upstream timeout"
// @Failure     429  {object}  handlers.ErrorResponse  "Upstream quota exceeded"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /digests [post]
func (h *Handlers) CreateDigest(c *gin.Context) {
	ctx := c.Request.Context()

	var req TranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transcript required")
		return
	}

	if err := h.digestSvc.ValidateTranscript(req.Transcript); err != nil {
		status, code := mapGenerationError(err)
		fail(c, status, code, err.Error())
		return
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if idemKey != "" {
		if db := h.serviceDB(); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetDigest(ctx, db, rec.DigestID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, prev)
					return
				}
			}
		}
	}

	d, err := h.digestSvc.Generate(ctx, req.Transcript)
	if err != nil {
		middleware.ObserveGeneration("error")
		status, code := mapGenerationError(err)
		fail(c, status, code, err.Error())
		return
	}
	middleware.ObserveGeneration("success")

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if db := h.serviceDB(); db != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, db, idemKey, d.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, d)
}

// StreamDigest godoc
// @ID          streamDigest
// @Summary     Generate a digest with live streaming
// @Description Streams model output as Server-Sent Events while the digest is generated,
// @Description then emits a final `complete` event carrying the persisted digest.
// @Tags        Digests
// @Accept      json
// @Produce     text/event-stream
//
// @Param       body  body  handlers.TranscriptRequest  true  "Transcript payload"
//
// @Success     200  {string}  string  "SSE stream of generation events"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /digests/stream [post]
func (h *Handlers) StreamDigest(c *gin.Context) {
	var req TranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transcript required")
		return
	}

	// Validation failures must surface as a regular JSON error, not as an
	// SSE frame, so validate before committing to the stream content type.
	if err := h.digestSvc.ValidateTranscript(req.Transcript); err != nil {
		status, code := mapGenerationError(err)
		fail(c, status, code, err.Error())
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering so deltas reach the client as they arrive.
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	events := h.digestSvc.GenerateStream(c.Request.Context(), req.Transcript)

	c.Stream(func(w io.Writer) bool {
		ev, open := <-events
		if !open {
			return false
		}
		switch ev.Type {
		case services.EventContent:
			middleware.ObserveStreamDelta()
		case services.EventComplete:
			middleware.ObserveGeneration("success")
		case services.EventError:
			middleware.ObserveGeneration("error")
		}
		_ = sse.Encode(w, sse.Event{Data: toPayload(ev)})
		// Terminal events end the stream after being flushed.
		return ev.Type != services.EventComplete && ev.Type != services.EventError
	})
}

// toPayload converts a pipeline event into its SSE wire shape.
func toPayload(ev services.Event) streamPayload {
	p := streamPayload{Type: string(ev.Type)}
	switch ev.Type {
	case services.EventContent:
		p.Text = ev.Text
	case services.EventComplete:
		p.Digest = ev.Digest
	case services.EventError:
		if ev.Err != nil {
			// The same code the JSON envelope would carry, so stream
			// consumers can tell a storage fault from a generation one.
			_, p.Code = mapGenerationError(ev.Err)
			p.Message = ev.Err.Error()
		}
	}
	return p
}

// ListDigests godoc
// @ID          listDigests
// @Summary     List digests (paginated)
// @Description Returns a page of digests, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Digests
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       skip           query   int     false "Records to skip"             minimum(0) default(0)
// @Param       limit          query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListDigestsResponse
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /digests [get]
func (h *Handlers) ListDigests(c *gin.Context) {
	ctx := c.Request.Context()
	skip, limit := clampListParams(c)

	// ETag pre-check (best effort).
	if db := h.serviceDB(); db != nil {
		count, maxTS, err := repo.DigestsStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"digests:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.digestSvc.ListPage(ctx, skip, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	resp := ListDigestsResponse{
		Digests: items,
		Pagination: Pagination{
			Skip:    skip,
			Limit:   limit,
			Total:   total,
			HasNext: int64(skip+limit) < total,
		},
	}
	ok(c, http.StatusOK, resp)
}

// GetDigest godoc
// @ID          getDigest
// @Summary     Fetch a digest
// @Description Returns a digest by its internal id, regardless of visibility.
// @Tags        Digests
// @Produce     json
//
// @Param       id  path  string  true  "Digest ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Digest
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Digest not found"
// @Failure     500  {object} handlers.ErrorResponse "Storage failure"
// @Router      /digests/{id} [get]
func (h *Handlers) GetDigest(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "digest id must be a UUID")
		return
	}

	d, err := h.digestSvc.Get(c.Request.Context(), id)
	if err != nil {
		status, code, msg := mapLookupError(err)
		fail(c, status, code, msg)
		return
	}
	ok(c, http.StatusOK, d)
}

// GetSharedDigest godoc
// @ID          getSharedDigest
// @Summary     Fetch a shared digest
// @Description Returns a digest by its public share token. Digests with sharing
// @Description disabled are indistinguishable from missing ones (404).
// @Tags        Digests
// @Produce     json
//
// @Param       public_id  path  string  true  "Public share token (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Digest
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Digest not found"
// @Failure     500  {object} handlers.ErrorResponse "Storage failure"
// @Router      /digests/share/{public_id} [get]
func (h *Handlers) GetSharedDigest(c *gin.Context) {
	publicID := c.Param("public_id")
	if _, err := uuid.Parse(publicID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "public id must be a UUID")
		return
	}

	d, err := h.digestSvc.GetShared(c.Request.Context(), publicID)
	if err != nil {
		status, code, msg := mapLookupError(err)
		fail(c, status, code, msg)
		return
	}
	ok(c, http.StatusOK, d)
}

// RegenerateDigest godoc
// @ID          regenerateDigest
// @Summary     Regenerate a digest
// @Description Re-runs generation for an existing digest with a new transcript.
// @Description The digest keeps its id, share token, visibility, and creation time.
// @Tags        Digests
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Digest ID (UUID)"  format(uuid)
// @Param       body  body  handlers.TranscriptRequest  true  "New transcript payload"
//
// @Success     200  {object} domain.Digest
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Digest not found"
// @Failure     408  {object} handlers.ErrorResponse "Upstream timeout"
// @Failure     429  {object} handlers.ErrorResponse "Upstream quota exceeded"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /digests/{id} [put]
func (h *Handlers) RegenerateDigest(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "digest id must be a UUID")
		return
	}

	var req TranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transcript required")
		return
	}

	d, err := h.digestSvc.Regenerate(c.Request.Context(), id, req.Transcript)
	if err != nil {
		status, code := mapGenerationError(err)
		fail(c, status, code, err.Error())
		return
	}
	ok(c, http.StatusOK, d)
}

// UpdateDigestVisibility godoc
// @ID          updateDigestVisibility
// @Summary     Toggle digest sharing
// @Description Enables or disables access to the digest via its public share link.
// @Tags        Digests
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Digest ID (UUID)"  format(uuid)
// @Param       body  body  handlers.VisibilityRequest  true  "Visibility payload"
//
// @Success     200  {object} domain.Digest
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Digest not found"
// @Failure     500  {object} handlers.ErrorResponse "Storage failure"
// @Router      /digests/{id}/visibility [patch]
func (h *Handlers) UpdateDigestVisibility(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "digest id must be a UUID")
		return
	}

	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsPublic == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "is_public required")
		return
	}

	d, err := h.digestSvc.UpdateVisibility(c.Request.Context(), id, *req.IsPublic)
	if err != nil {
		status, code, msg := mapLookupError(err)
		fail(c, status, code, msg)
		return
	}
	ok(c, http.StatusOK, d)
}

// DeleteDigest godoc
// @ID          deleteDigest
// @Summary     Delete a digest
// @Description Removes a digest. Both the internal id and the share token stop
// @Description resolving afterwards.
// @Tags        Digests
// @Produce     json
//
// @Param       id  path  string  true  "Digest ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Digest not found"
// @Failure     500  {object} handlers.ErrorResponse "Storage failure"
// @Router      /digests/{id} [delete]
func (h *Handlers) DeleteDigest(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "digest id must be a UUID")
		return
	}

	if err := h.digestSvc.Delete(c.Request.Context(), id); err != nil {
		status, code, msg := mapLookupError(err)
		fail(c, status, code, msg)
		return
	}
	noContent(c)
}
