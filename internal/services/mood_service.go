// Package services – MoodService
//
// This file implements the MoodService, which normalizes and records mood
// entries and runs the crisis detector speculatively on every submission.
// Detection is pure and cheap, so evaluating inline keeps the time between a
// concerning check-in and an alert as short as possible; the alert manager's
// dedup makes repeated evaluation safe.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/detect"
	"github.com/solmere/go-wellness-backend/internal/domain"
)

// Mood submission bounds.
const (
	minMoodScore    = 1
	maxMoodScore    = 10
	maxEmotions     = 10
	maxEmotionLen   = 64
	moodHistoryShow = 30 // entries fetched for history views
)

// MoodRepo defines the repository contract required by MoodService.
type MoodRepo interface {
	// CreateMoodEntry inserts a normalized mood entry.
	CreateMoodEntry(ctx context.Context, db *gorm.DB, userID string, score int, emotions []string, occurredAt time.Time) (*domain.MoodEntry, error)

	// ListRecentMoods returns the user's most recent limit entries,
	// oldest-first.
	ListRecentMoods(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.MoodEntry, error)
}

// AlertNotifier is the alert lifecycle port. Satisfied by alert.Manager.
type AlertNotifier interface {
	OnCrisisDetected(ctx context.Context, det domain.CrisisDetermination) (*domain.CrisisAlert, error)
}

// MoodService normalizes mood entries and drives crisis evaluation.
type MoodService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the mood repository used by this service.
	Repo MoodRepo
	// Detector evaluates the crisis window after each submission.
	Detector *detect.Detector
	// Alerts receives triggered determinations. May be nil in read-only setups.
	Alerts AlertNotifier
	// Log records alert-path failures that must not fail the submission.
	Log zerolog.Logger
}

// NewMoodService constructs a MoodService.
func NewMoodService(db *gorm.DB, r MoodRepo, d *detect.Detector, alerts AlertNotifier, log zerolog.Logger) *MoodService {
	return &MoodService{DB: db, Repo: r, Detector: d, Alerts: alerts, Log: log}
}

// Submit validates and records a mood entry, then evaluates the user's recent
// window for crisis patterns. The persisted entry is returned together with
// the alert touched by this submission (nil when nothing triggered).
//
// Alert-path failures are logged and do not fail the submission: the mood
// entry is already durable, and the next submission re-evaluates the same
// window.
func (s *MoodService) Submit(ctx context.Context, userID string, score int, emotions []string, occurredAt time.Time) (*domain.MoodEntry, *domain.CrisisAlert, error) {
	userID = strings.TrimSpace(userID)
	if err := validateID("user_id", userID); err != nil {
		return nil, nil, err
	}
	if score < minMoodScore || score > maxMoodScore {
		return nil, nil, invalidf("score", "must be between %d and %d", minMoodScore, maxMoodScore)
	}
	if err := validateOccurredAt(occurredAt); err != nil {
		return nil, nil, err
	}
	cleaned, err := normalizeEmotions(emotions)
	if err != nil {
		return nil, nil, err
	}

	entry, err := s.Repo.CreateMoodEntry(ctx, s.DB, userID, score, cleaned, occurredAt)
	if err != nil {
		return nil, nil, err
	}

	det, err := s.Evaluate(ctx, userID)
	if err != nil {
		s.Log.Error().Err(err).Str("user_id", userID).Msg("crisis evaluation failed after mood submission")
		return entry, nil, nil
	}
	if !det.Triggered || s.Alerts == nil {
		return entry, nil, nil
	}

	a, err := s.Alerts.OnCrisisDetected(ctx, det)
	if err != nil {
		s.Log.Error().Err(err).Str("user_id", userID).Msg("crisis alert handling failed")
		return entry, nil, nil
	}
	return entry, a, nil
}

// Evaluate runs the crisis detector over the user's recent mood window.
func (s *MoodService) Evaluate(ctx context.Context, userID string) (domain.CrisisDetermination, error) {
	userID = strings.TrimSpace(userID)
	if err := validateID("user_id", userID); err != nil {
		return domain.CrisisDetermination{}, err
	}
	history, err := s.Repo.ListRecentMoods(ctx, s.DB, userID, s.Detector.Window())
	if err != nil {
		return domain.CrisisDetermination{}, err
	}
	return s.Detector.Evaluate(userID, history), nil
}

// History returns the user's recent mood entries, oldest-first.
func (s *MoodService) History(ctx context.Context, userID string) ([]domain.MoodEntry, error) {
	userID = strings.TrimSpace(userID)
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}
	return s.Repo.ListRecentMoods(ctx, s.DB, userID, moodHistoryShow)
}

// normalizeEmotions trims, lowercases, drops blanks, and bounds the emotion
// label list.
func normalizeEmotions(emotions []string) ([]string, error) {
	if len(emotions) > maxEmotions {
		return nil, invalidf("emotions", "at most %d labels", maxEmotions)
	}
	out := make([]string, 0, len(emotions))
	for _, e := range emotions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if utf8.RuneCountInString(e) > maxEmotionLen {
			return nil, invalidf("emotions", "label exceeds %d characters", maxEmotionLen)
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
