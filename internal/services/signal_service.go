// Package services – SignalService
//
// This file implements the SignalService, which normalizes and records
// behavioral signals and derives engagement scores from them. Validation is
// strict: the closed signal-kind enumeration, identifier shape, and timestamp
// sanity are all enforced here so nothing malformed ever reaches the scorer
// or the database.
//
// Scores are never stored authoritatively. Every read recomputes from the
// current signal set; a short-lived Redis cache (optional) only bridges the
// gap between writes.
package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/cache"
	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/scoring"
)

// Identifier and payload bounds for submissions.
const (
	maxIDLen    = 64
	maxValueLen = 4096
	// maxFutureSkew tolerates client clock drift on OccurredAt.
	maxFutureSkew = 5 * time.Minute
)

// SignalRepo defines the repository contract required by SignalService.
type SignalRepo interface {
	// CreateSignal inserts a normalized signal row.
	CreateSignal(ctx context.Context, db *gorm.DB, userID, sessionID string, kind domain.SignalKind, value string, occurredAt time.Time) (*domain.Signal, error)

	// ListSessionSignals returns every signal for (userID, sessionID).
	ListSessionSignals(ctx context.Context, db *gorm.DB, userID, sessionID string) ([]domain.Signal, error)
}

// SignalService normalizes, persists, and scores behavioral signals.
type SignalService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the signal repository used by this service.
	Repo SignalRepo
	// Scorer derives engagement scores from signal sets.
	Scorer *scoring.EngagementScorer
	// Cache optionally serves recent scores; nil disables caching.
	Cache *cache.ScoreCache
}

// NewSignalService constructs a SignalService.
func NewSignalService(db *gorm.DB, r SignalRepo, scorer *scoring.EngagementScorer, c *cache.ScoreCache) *SignalService {
	return &SignalService{DB: db, Repo: r, Scorer: scorer, Cache: c}
}

// Submit validates and records a behavioral signal, invalidating the session's
// cached score. Returns a ValidationError on malformed input.
func (s *SignalService) Submit(ctx context.Context, userID, sessionID, kind, value string, occurredAt time.Time) (*domain.Signal, error) {
	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}
	if err := validateID("session_id", sessionID); err != nil {
		return nil, err
	}

	k := domain.SignalKind(strings.ToLower(strings.TrimSpace(kind)))
	if !k.Valid() {
		return nil, invalidf("kind", "must be one of %v", domain.AllSignalKinds)
	}

	if err := validateOccurredAt(occurredAt); err != nil {
		return nil, err
	}

	value = strings.TrimSpace(value)
	if value != "" {
		if len(value) > maxValueLen {
			return nil, invalidf("value", "exceeds %d bytes", maxValueLen)
		}
		if !json.Valid([]byte(value)) {
			return nil, invalidf("value", "must be a JSON document")
		}
	}

	sig, err := s.Repo.CreateSignal(ctx, s.DB, userID, sessionID, k, value, occurredAt)
	if err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, userID, sessionID)
	return sig, nil
}

// Score returns the engagement score for (userID, sessionID), recomputed from
// the current signal set. A session with no signals scores exactly neutral.
func (s *SignalService) Score(ctx context.Context, userID, sessionID string) (domain.EngagementScore, error) {
	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)
	if err := validateID("user_id", userID); err != nil {
		return domain.EngagementScore{}, err
	}
	if err := validateID("session_id", sessionID); err != nil {
		return domain.EngagementScore{}, err
	}

	if cached, ok := s.Cache.Get(ctx, userID, sessionID); ok {
		return *cached, nil
	}

	signals, err := s.Repo.ListSessionSignals(ctx, s.DB, userID, sessionID)
	if err != nil {
		return domain.EngagementScore{}, err
	}
	score := s.Scorer.Score(userID, sessionID, signals)
	s.Cache.Put(ctx, score)
	return score, nil
}

// validateID enforces non-blank identifiers within the column bound.
func validateID(field, v string) error {
	if v == "" {
		return invalidf(field, "must not be blank")
	}
	if utf8.RuneCountInString(v) > maxIDLen {
		return invalidf(field, "exceeds %d characters", maxIDLen)
	}
	return nil
}

// validateOccurredAt rejects zero timestamps and far-future event times.
func validateOccurredAt(t time.Time) error {
	if t.IsZero() {
		return invalidf("occurred_at", "must be set")
	}
	if t.After(time.Now().Add(maxFutureSkew)) {
		return invalidf("occurred_at", "is in the future")
	}
	return nil
}
