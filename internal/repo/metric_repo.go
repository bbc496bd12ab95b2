// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// QualityMetric model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// CreateQualityMetric appends a quality assessment snapshot.
func CreateQualityMetric(ctx context.Context, db *gorm.DB, metricType, entityID, entityType string, score, confidence float64, calculatedAt time.Time) (*domain.QualityMetric, error) {
	m := &domain.QualityMetric{
		ID:           uuid.NewString(),
		MetricType:   metricType,
		EntityID:     entityID,
		EntityType:   entityType,
		Score:        score,
		Confidence:   confidence,
		CalculatedAt: calculatedAt.UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMetrics returns every snapshot recorded for (entityID, entityType,
// metricType), ordered deterministically (CalculatedAt ASC, ID ASC).
func ListMetrics(ctx context.Context, db *gorm.DB, entityID, entityType, metricType string) ([]domain.QualityMetric, error) {
	var out []domain.QualityMetric
	err := db.WithContext(ctx).
		Where("entity_id = ? AND entity_type = ? AND metric_type = ?", entityID, entityType, metricType).
		Order("calculated_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
