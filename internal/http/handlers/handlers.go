// Handler wiring for the wellness API.
//
// This file defines the service contracts consumed by the HTTP layer and the
// Handlers aggregate that binds them. Handlers are transport-thin: they
// validate and normalize inputs, call application services, and translate
// results (including validation failures and lifecycle conflicts) into HTTP
// responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/scoring"
	"github.com/solmere/go-wellness-backend/internal/services"
	"github.com/solmere/go-wellness-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SignalService defines signal ingestion and scoring operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SignalService interface {
	// Submit validates and records a behavioral signal.
	Submit(ctx context.Context, userID, sessionID, kind, value string, occurredAt time.Time) (*domain.Signal, error)
	// Score derives the engagement score for (userID, sessionID).
	Score(ctx context.Context, userID, sessionID string) (domain.EngagementScore, error)
}

// MoodService defines mood recording and crisis evaluation operations.
type MoodService interface {
	// Submit records a mood entry and evaluates the crisis window. The
	// returned alert is nil when nothing triggered.
	Submit(ctx context.Context, userID string, score int, emotions []string, occurredAt time.Time) (*domain.MoodEntry, *domain.CrisisAlert, error)
	// Evaluate runs crisis detection over the user's recent window.
	Evaluate(ctx context.Context, userID string) (domain.CrisisDetermination, error)
	// History returns the user's recent mood entries, oldest-first.
	History(ctx context.Context, userID string) ([]domain.MoodEntry, error)
}

// MetricService defines quality metric recording and aggregation.
type MetricService interface {
	// Record persists a quality assessment snapshot.
	Record(ctx context.Context, metricType, entityID, entityType string, score, confidence float64, calculatedAt time.Time) (*domain.QualityMetric, error)
	// Composite computes the confidence-weighted composite for an entity.
	Composite(ctx context.Context, entityID, entityType, metricType string) (scoring.Composite, error)
}

// AlertService defines alert history and manual lifecycle operations.
type AlertService interface {
	// ListPage returns a page of the user's alerts and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.CrisisAlert, int64, error)
	// Resolve records a manual resolution and cancels pending retries.
	Resolve(ctx context.Context, id string) error
	// Redispatch restarts delivery for a failed or stuck alert.
	Redispatch(ctx context.Context, id string) error
}

// ContactService defines trusted-contact management operations.
type ContactService interface {
	// Create registers a trusted contact for crisis notification.
	Create(ctx context.Context, userID, name, kind, address string, priority int) (*domain.Contact, error)
	// List returns the user's contacts in notification order.
	List(ctx context.Context, userID string) ([]domain.Contact, error)
	// Delete removes a contact owned by userID.
	Delete(ctx context.Context, userID, id string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for signals, moods, metrics, alerts, and
// contacts. It depends on abstract service interfaces to keep transport
// concerns separate from business logic. The DB handle is used only for
// idempotency bookkeeping on unsafe endpoints.
type Handlers struct {
	db         *gorm.DB
	idemTTL    time.Duration
	signalSvc  SignalService
	moodSvc    MoodService
	metricSvc  MetricService
	alertSvc   AlertService
	contactSvc ContactService
}

// New constructs a Handlers instance bound to the given services. A zero
// idemTTL defaults to 24h.
func New(db *gorm.DB, idemTTL time.Duration, signals SignalService, moods MoodService, metrics MetricService, alerts AlertService, contacts ContactService) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{
		db:         db,
		idemTTL:    idemTTL,
		signalSvc:  signals,
		moodSvc:    moods,
		metricSvc:  metrics,
		alertSvc:   alerts,
		contactSvc: contacts,
	}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// Shared DTOs and helpers
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failInvalid maps a service ValidationError to a 400 response with the
// offending field in the message. Returns false when err is not a validation
// failure, leaving the caller to handle it.
func failInvalid(c *gin.Context, err error) bool {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, ve.Error())
		return true
	}
	return false
}
