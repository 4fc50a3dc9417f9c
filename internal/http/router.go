// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/config"
	"github.com/tbourn/go-digest-backend/internal/domain"
	"github.com/tbourn/go-digest-backend/internal/http/handlers"
	"github.com/tbourn/go-digest-backend/internal/http/middleware"
	"github.com/tbourn/go-digest-backend/internal/llm"
	"github.com/tbourn/go-digest-backend/internal/repo"
	"github.com/tbourn/go-digest-backend/internal/services"
)

// digestRepoShim adapts the repository free functions to the
// services.DigestRepo interface expected by the DigestService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type digestRepoShim struct{}

// CreateDigest proxies repo.CreateDigest.
func (digestRepoShim) CreateDigest(ctx context.Context, db *gorm.DB, d *domain.Digest) error {
	return repo.CreateDigest(ctx, db, d)
}

// GetDigest proxies repo.GetDigest.
func (digestRepoShim) GetDigest(ctx context.Context, db *gorm.DB, id string) (*domain.Digest, error) {
	return repo.GetDigest(ctx, db, id)
}

// GetDigestByPublicID proxies repo.GetDigestByPublicID.
func (digestRepoShim) GetDigestByPublicID(ctx context.Context, db *gorm.DB, publicID string) (*domain.Digest, error) {
	return repo.GetDigestByPublicID(ctx, db, publicID)
}

// ListDigestsPage proxies repo.ListDigestsPage.
func (digestRepoShim) ListDigestsPage(ctx context.Context, db *gorm.DB, skip, limit int) ([]domain.Digest, int64, error) {
	return repo.ListDigestsPage(ctx, db, skip, limit)
}

// UpdateDigestContent proxies repo.UpdateDigestContent.
func (digestRepoShim) UpdateDigestContent(ctx context.Context, db *gorm.DB, d *domain.Digest) error {
	return repo.UpdateDigestContent(ctx, db, d)
}

// UpdateDigestVisibility proxies repo.UpdateDigestVisibility.
func (digestRepoShim) UpdateDigestVisibility(ctx context.Context, db *gorm.DB, id string, isPublic bool) (*domain.Digest, error) {
	return repo.UpdateDigestVisibility(ctx, db, id, isPublic)
}

// DeleteDigest proxies repo.DeleteDigest.
func (digestRepoShim) DeleteDigest(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteDigest(ctx, db, id)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (skipping the SSE stream route)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, model llm.Client, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-Api-Key", // provider keys must never reach logs
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB; transcripts are text and fit well under this)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression. The SSE endpoint is excluded: buffering deltas inside
	// a gzip window would defeat incremental delivery.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{cfg.APIBasePath + "/digests/stream"})))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in; typically disabled in production)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/model
	digestSvc := &services.DigestService{
		DB:                 db,
		Repo:               digestRepoShim{},
		Model:              model,
		MaxTranscriptRunes: cfg.MaxTranscriptLen,
		ShareNewByDefault:  cfg.ShareNewByDefault,
	}
	h := handlers.New(digestSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Digests
		api.POST("/digests", h.CreateDigest)
		api.POST("/digests/stream", h.StreamDigest)
		api.GET("/digests", h.ListDigests)
		api.GET("/digests/share/:public_id", h.GetSharedDigest)
		api.GET("/digests/:id", h.GetDigest)
		api.PUT("/digests/:id", h.RegenerateDigest)
		api.PATCH("/digests/:id/visibility", h.UpdateDigestVisibility)
		api.DELETE("/digests/:id", h.DeleteDigest)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
