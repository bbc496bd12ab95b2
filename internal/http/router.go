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
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/alert"
	"github.com/solmere/go-wellness-backend/internal/cache"
	"github.com/solmere/go-wellness-backend/internal/config"
	"github.com/solmere/go-wellness-backend/internal/detect"
	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/http/handlers"
	"github.com/solmere/go-wellness-backend/internal/http/middleware"
	"github.com/solmere/go-wellness-backend/internal/repo"
	"github.com/solmere/go-wellness-backend/internal/scoring"
	"github.com/solmere/go-wellness-backend/internal/services"
)

// signalRepoShim adapts the repository free functions to the
// services.SignalRepo interface expected by the SignalService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type signalRepoShim struct{}

// CreateSignal proxies repo.CreateSignal.
func (signalRepoShim) CreateSignal(ctx context.Context, db *gorm.DB, userID, sessionID string, kind domain.SignalKind, value string, occurredAt time.Time) (*domain.Signal, error) {
	return repo.CreateSignal(ctx, db, userID, sessionID, kind, value, occurredAt)
}

// ListSessionSignals proxies repo.ListSessionSignals.
func (signalRepoShim) ListSessionSignals(ctx context.Context, db *gorm.DB, userID, sessionID string) ([]domain.Signal, error) {
	return repo.ListSessionSignals(ctx, db, userID, sessionID)
}

// moodRepoShim adapts the repository free functions to services.MoodRepo.
type moodRepoShim struct{}

// CreateMoodEntry proxies repo.CreateMoodEntry.
func (moodRepoShim) CreateMoodEntry(ctx context.Context, db *gorm.DB, userID string, score int, emotions []string, occurredAt time.Time) (*domain.MoodEntry, error) {
	return repo.CreateMoodEntry(ctx, db, userID, score, emotions, occurredAt)
}

// ListRecentMoods proxies repo.ListRecentMoods.
func (moodRepoShim) ListRecentMoods(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.MoodEntry, error) {
	return repo.ListRecentMoods(ctx, db, userID, limit)
}

// metricRepoShim adapts the repository free functions to services.MetricRepo.
type metricRepoShim struct{}

// CreateQualityMetric proxies repo.CreateQualityMetric.
func (metricRepoShim) CreateQualityMetric(ctx context.Context, db *gorm.DB, metricType, entityID, entityType string, score, confidence float64, calculatedAt time.Time) (*domain.QualityMetric, error) {
	return repo.CreateQualityMetric(ctx, db, metricType, entityID, entityType, score, confidence, calculatedAt)
}

// ListMetrics proxies repo.ListMetrics.
func (metricRepoShim) ListMetrics(ctx context.Context, db *gorm.DB, entityID, entityType, metricType string) ([]domain.QualityMetric, error) {
	return repo.ListMetrics(ctx, db, entityID, entityType, metricType)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// The alert manager and score cache are constructed by the caller (they own
// background workers and external connections); everything else is wired here.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, mgr *alert.Manager, scores *cache.ScoreCache, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Mood scores and emotion labels
	// travel in bodies, never headers, so header masking covers the API key.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB) and response compression
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
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
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
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

	// Dependency injection: services ← repo/db/detector/manager
	scorer, err := scoring.NewEngagementScorer()
	if err != nil {
		// Weight coverage is fixed at compile time; a gap is a programming error.
		panic(err)
	}
	detector := detect.New(detect.Config{
		Window:        cfg.Crisis.Window,
		MeanThreshold: cfg.Crisis.MeanThreshold,
		DeclineSlope:  cfg.Crisis.DeclineSlope,
		LowCeiling:    cfg.Crisis.LowCeiling,
	})

	signalSvc := services.NewSignalService(db, signalRepoShim{}, scorer, scores)
	moodSvc := services.NewMoodService(db, moodRepoShim{}, detector, notifierOrNil(mgr), log.Logger)
	metricSvc := services.NewMetricService(db, metricRepoShim{})
	alertSvc := services.NewAlertService(db, lifecycleOrNil(mgr))
	contactSvc := services.NewContactService(db)

	h := handlers.New(db, cfg.IdempotencyTTL, signalSvc, moodSvc, metricSvc, alertSvc, contactSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Signals and engagement
		api.POST("/signals", h.SubmitSignal)
		api.GET("/users/:id/engagement", h.GetEngagement)

		// Moods and crisis evaluation
		api.POST("/moods", h.SubmitMood)
		api.GET("/users/:id/moods", h.ListMoods)
		api.GET("/users/:id/crisis", h.GetCrisis)

		// Quality metrics
		api.POST("/metrics", h.RecordMetric)
		api.GET("/metrics/composite", h.GetComposite)

		// Alert history and manual lifecycle
		api.GET("/users/:id/alerts", h.ListAlerts)
		api.POST("/alerts/:id/resolve", h.ResolveAlert)
		api.POST("/alerts/:id/dispatch", h.DispatchAlert)

		// Trusted contacts
		api.POST("/users/:id/contacts", h.CreateContact)
		api.GET("/users/:id/contacts", h.ListContacts)
		api.DELETE("/users/:id/contacts/:contactID", h.DeleteContact)
	}
}

// notifierOrNil avoids handing services a typed-nil interface when the alert
// manager is absent (read-only deployments, some tests).
func notifierOrNil(mgr *alert.Manager) services.AlertNotifier {
	if mgr == nil {
		return nil
	}
	return mgr
}

// lifecycleOrNil mirrors notifierOrNil for the lifecycle port.
func lifecycleOrNil(mgr *alert.Manager) services.AlertLifecycle {
	if mgr == nil {
		return nil
	}
	return mgr
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
