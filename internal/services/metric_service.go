// Package services – MetricService
//
// This file implements the MetricService, which records quality assessment
// snapshots and serves the confidence-weighted composite over them.
package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/scoring"
)

// MetricRepo defines the repository contract required by MetricService.
type MetricRepo interface {
	// CreateQualityMetric appends a quality assessment snapshot.
	CreateQualityMetric(ctx context.Context, db *gorm.DB, metricType, entityID, entityType string, score, confidence float64, calculatedAt time.Time) (*domain.QualityMetric, error)

	// ListMetrics returns every snapshot for (entityID, entityType, metricType).
	ListMetrics(ctx context.Context, db *gorm.DB, entityID, entityType, metricType string) ([]domain.QualityMetric, error)
}

// MetricService records quality metrics and computes composites.
type MetricService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the metric repository used by this service.
	Repo MetricRepo
}

// NewMetricService constructs a MetricService.
func NewMetricService(db *gorm.DB, r MetricRepo) *MetricService {
	return &MetricService{DB: db, Repo: r}
}

// Record validates and persists a quality metric snapshot.
func (s *MetricService) Record(ctx context.Context, metricType, entityID, entityType string, score, confidence float64, calculatedAt time.Time) (*domain.QualityMetric, error) {
	metricType = strings.TrimSpace(metricType)
	entityID = strings.TrimSpace(entityID)
	entityType = strings.TrimSpace(entityType)
	if err := validateID("metric_type", metricType); err != nil {
		return nil, err
	}
	if err := validateID("entity_id", entityID); err != nil {
		return nil, err
	}
	if err := validateID("entity_type", entityType); err != nil {
		return nil, err
	}
	if score < 0 || score > 1 {
		return nil, invalidf("score", "must be within [0, 1]")
	}
	if confidence < 0 || confidence > 1 {
		return nil, invalidf("confidence", "must be within [0, 1]")
	}
	if calculatedAt.IsZero() {
		calculatedAt = time.Now().UTC()
	}
	return s.Repo.CreateQualityMetric(ctx, s.DB, metricType, entityID, entityType, score, confidence, calculatedAt)
}

// Composite computes the confidence-weighted composite over every snapshot
// recorded for (entityID, entityType, metricType). With no snapshots (or none
// carrying positive confidence) it returns the (0, 0) sentinel.
func (s *MetricService) Composite(ctx context.Context, entityID, entityType, metricType string) (scoring.Composite, error) {
	entityID = strings.TrimSpace(entityID)
	entityType = strings.TrimSpace(entityType)
	metricType = strings.TrimSpace(metricType)
	if err := validateID("entity_id", entityID); err != nil {
		return scoring.Composite{}, err
	}
	if err := validateID("entity_type", entityType); err != nil {
		return scoring.Composite{}, err
	}
	if err := validateID("metric_type", metricType); err != nil {
		return scoring.Composite{}, err
	}

	metrics, err := s.Repo.ListMetrics(ctx, s.DB, entityID, entityType, metricType)
	if err != nil {
		return scoring.Composite{}, err
	}
	return scoring.Aggregate(metrics), nil
}
