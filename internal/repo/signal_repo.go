// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Signal model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSignal inserts a normalized behavioral signal. The signal ID is a
// randomly generated UUID (string), and CreatedAt is set to UTC.
func CreateSignal(ctx context.Context, db *gorm.DB, userID, sessionID string, kind domain.SignalKind, value string, occurredAt time.Time) (*domain.Signal, error) {
	s := &domain.Signal{
		ID:         uuid.NewString(),
		UserID:     userID,
		SessionID:  sessionID,
		Kind:       kind,
		Value:      value,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessionSignals returns every signal recorded for (userID, sessionID),
// ordered deterministically (OccurredAt ASC, ID ASC). Returns an empty slice
// when the session has no signals.
func ListSessionSignals(ctx context.Context, db *gorm.DB, userID, sessionID string) ([]domain.Signal, error) {
	var out []domain.Signal
	err := db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("occurred_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountSessionSignals returns the number of signals for (userID, sessionID).
func CountSessionSignals(ctx context.Context, db *gorm.DB, userID, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Signal{}).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Count(&total).Error
	return total, err
}

// SignalsStats returns aggregate metadata for a session's signals: the total
// number of rows and the greatest CreatedAt among them. Used for conditional
// responses in the HTTP layer. When the session has no signals, the count is
// 0 and latest is nil.
func SignalsStats(ctx context.Context, db *gorm.DB, userID, sessionID string) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Signal{}).Where("user_id = ? AND session_id = ?", userID, sessionID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
