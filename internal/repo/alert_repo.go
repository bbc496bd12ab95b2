// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the CrisisAlert
// model plus the AlertStore adapter consumed by the alert lifecycle manager.
//
// State transitions are guarded at the SQL level: updates carry a
// WHERE state = <expected> clause, so a lost race surfaces as zero affected
// rows instead of a silently overwritten state.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/alert"
	"github.com/solmere/go-wellness-backend/internal/domain"
)

// ErrStaleState indicates a guarded state update matched no row: the alert is
// missing or no longer in the expected state.
var ErrStaleState = errors.New("alert state changed concurrently")

// GetAlert fetches an alert by ID, or ErrNotFound.
func GetAlert(ctx context.Context, db *gorm.DB, id string) (*domain.CrisisAlert, error) {
	var a domain.CrisisAlert
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetActiveAlert returns the user's unresolved alert in an active state
// (pending or dispatching), or (nil, nil) when none exists.
func GetActiveAlert(ctx context.Context, db *gorm.DB, userID string) (*domain.CrisisAlert, error) {
	var a domain.CrisisAlert
	err := db.WithContext(ctx).
		Where("user_id = ? AND state IN ? AND resolved_at IS NULL",
			userID, []domain.AlertState{domain.AlertPending, domain.AlertDispatching}).
		Order("created_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAlert inserts a new alert row.
func CreateAlert(ctx context.Context, db *gorm.DB, a *domain.CrisisAlert) error {
	return db.WithContext(ctx).Create(a).Error
}

// ListAlerts returns all alerts for userID, most recent first.
func ListAlerts(ctx context.Context, db *gorm.DB, userID string) ([]domain.CrisisAlert, error) {
	var out []domain.CrisisAlert
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// CountAlerts returns the number of alerts recorded for userID.
func CountAlerts(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.CrisisAlert{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// ListAlertsPage returns a page of alerts for userID, most recent first.
func ListAlertsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.CrisisAlert, error) {
	var out []domain.CrisisAlert
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// EscalateAlert updates severity and trigger count on an existing alert.
// Returns ErrNotFound when the alert does not exist.
func EscalateAlert(ctx context.Context, db *gorm.DB, id string, severity, triggerCount int) error {
	res := db.WithContext(ctx).
		Model(&domain.CrisisAlert{}).
		Where("id = ?", id).
		Updates(map[string]any{"severity_level": severity, "trigger_count": triggerCount})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecordAttempt persists dispatch-attempt bookkeeping.
func RecordAttempt(ctx context.Context, db *gorm.DB, id string, attemptCount int, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.CrisisAlert{}).
		Where("id = ?", id).
		Updates(map[string]any{"attempt_count": attemptCount, "last_attempt_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetAlertState transitions the alert from -> to, guarded on the current
// state. Returns ErrStaleState when the guard misses.
func SetAlertState(ctx context.Context, db *gorm.DB, id string, from, to domain.AlertState) error {
	if !from.CanTransition(to) {
		return ErrStaleState
	}
	res := db.WithContext(ctx).
		Model(&domain.CrisisAlert{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// SetDelivered transitions dispatching -> delivered and records the notified
// contact IDs in delivery order. Returns ErrStaleState when the alert is not
// in dispatching.
func SetDelivered(ctx context.Context, db *gorm.DB, id string, notified []string) error {
	// Struct update so the JSON serializer applies to NotifiedContacts.
	res := db.WithContext(ctx).
		Model(&domain.CrisisAlert{}).
		Where("id = ? AND state = ?", id, domain.AlertDispatching).
		Select("state", "notified_contacts").
		Updates(domain.CrisisAlert{State: domain.AlertDelivered, NotifiedContacts: notified})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// MarkResolved stamps the manual-resolution time.
func MarkResolved(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.CrisisAlert{}).
		Where("id = ?", id).
		Update("resolved_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AlertStore adapts the repository functions to the alert.Store port,
// translating ErrStaleState into the manager's ErrInvalidTransition.
type AlertStore struct {
	DB *gorm.DB
}

var _ alert.Store = (*AlertStore)(nil)

func (s *AlertStore) GetActiveAlert(ctx context.Context, userID string) (*domain.CrisisAlert, error) {
	return GetActiveAlert(ctx, s.DB, userID)
}

func (s *AlertStore) GetAlert(ctx context.Context, id string) (*domain.CrisisAlert, error) {
	return GetAlert(ctx, s.DB, id)
}

func (s *AlertStore) CreateAlert(ctx context.Context, a *domain.CrisisAlert) error {
	return CreateAlert(ctx, s.DB, a)
}

func (s *AlertStore) EscalateAlert(ctx context.Context, id string, severity, triggerCount int) error {
	return EscalateAlert(ctx, s.DB, id, severity, triggerCount)
}

func (s *AlertStore) RecordAttempt(ctx context.Context, id string, attemptCount int, at time.Time) error {
	return RecordAttempt(ctx, s.DB, id, attemptCount, at)
}

func (s *AlertStore) SetAlertState(ctx context.Context, id string, from, to domain.AlertState) error {
	return mapStale(SetAlertState(ctx, s.DB, id, from, to))
}

func (s *AlertStore) SetDelivered(ctx context.Context, id string, notified []string) error {
	return mapStale(SetDelivered(ctx, s.DB, id, notified))
}

func (s *AlertStore) MarkResolved(ctx context.Context, id string, at time.Time) error {
	return MarkResolved(ctx, s.DB, id, at)
}

func mapStale(err error) error {
	if errors.Is(err, ErrStaleState) {
		return alert.ErrInvalidTransition
	}
	return err
}
