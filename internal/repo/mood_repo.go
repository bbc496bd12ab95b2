// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the MoodEntry model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// CreateMoodEntry inserts a normalized mood entry.
func CreateMoodEntry(ctx context.Context, db *gorm.DB, userID string, score int, emotions []string, occurredAt time.Time) (*domain.MoodEntry, error) {
	m := &domain.MoodEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		Score:      score,
		Emotions:   emotions,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListRecentMoods returns the user's most recent limit entries ordered
// oldest-first (OccurredAt ASC, ID ASC), the shape the crisis detector
// consumes. The newest rows are selected descending, then reversed.
func ListRecentMoods(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.MoodEntry, error) {
	var out []domain.MoodEntry
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMoods returns the total mood entries recorded for userID.
func CountMoods(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MoodEntry{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}
