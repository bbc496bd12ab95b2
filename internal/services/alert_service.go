// Package services – AlertService
//
// This file implements the AlertService, the read/control surface over crisis
// alerts. Alert creation is never exposed here: alerts enter the system only
// through the detection pipeline. This service lists alert history, resolves
// alerts manually, and re-dispatches alerts whose delivery ended in failure.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/repo"
)

// AlertLifecycle is the lifecycle-control port. Satisfied by alert.Manager.
type AlertLifecycle interface {
	// Dispatch (re-)starts the delivery worker for an alert.
	Dispatch(ctx context.Context, alertID string) error
	// Resolve records a manual resolution and cancels pending retries.
	Resolve(ctx context.Context, alertID string) error
}

// AlertService serves alert history and manual lifecycle operations.
type AlertService struct {
	// DB is the GORM handle used for reads.
	DB *gorm.DB
	// Lifecycle drives manual resolve and re-dispatch. May be nil in
	// read-only setups.
	Lifecycle AlertLifecycle
}

// NewAlertService constructs an AlertService.
func NewAlertService(db *gorm.DB, lc AlertLifecycle) *AlertService {
	return &AlertService{DB: db, Lifecycle: lc}
}

// Get returns a single alert, or ErrAlertNotFound.
func (s *AlertService) Get(ctx context.Context, id string) (*domain.CrisisAlert, error) {
	a, err := repo.GetAlert(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListPage returns a page of the user's alerts (most recent first) and the
// total count.
func (s *AlertService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.CrisisAlert, int64, error) {
	userID = strings.TrimSpace(userID)
	if err := validateID("user_id", userID); err != nil {
		return nil, 0, err
	}
	total, err := repo.CountAlerts(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListAlertsPage(ctx, s.DB, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Resolve marks the alert as handled by a human and cancels any pending
// delivery retries. Returns ErrAlertNotFound when the alert does not exist.
func (s *AlertService) Resolve(ctx context.Context, id string) error {
	if s.Lifecycle == nil {
		return errors.New("alert lifecycle unavailable")
	}
	err := s.Lifecycle.Resolve(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAlertNotFound
	}
	return err
}

// Redispatch manually restarts delivery for a failed or stuck alert. Lifecycle
// rules (terminal states, resolved alerts, running workers) surface as the
// alert package's sentinel errors.
func (s *AlertService) Redispatch(ctx context.Context, id string) error {
	if s.Lifecycle == nil {
		return errors.New("alert lifecycle unavailable")
	}
	err := s.Lifecycle.Dispatch(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAlertNotFound
	}
	return err
}
