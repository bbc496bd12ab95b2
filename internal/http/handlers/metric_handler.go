// Quality metric HTTP handlers.
//
// This file exposes REST endpoints for quality assessment snapshots:
//   - POST /metrics            (record a snapshot)
//   - GET  /metrics/composite  (confidence-weighted composite for an entity)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

//
// DTOs
//

// RecordMetricRequest is the JSON payload for recording a quality snapshot.
type RecordMetricRequest struct {
	// MetricType names the assessed dimension (e.g. "response_quality").
	MetricType string `json:"metric_type" binding:"required" example:"response_quality"`
	// EntityID identifies the assessed entity.
	EntityID string `json:"entity_id" binding:"required" example:"sess-2024-11-02"`
	// EntityType classifies the entity (e.g. "session", "user").
	EntityType string `json:"entity_type" binding:"required" example:"session"`
	// Score is the assessed value in [0, 1].
	Score float64 `json:"score" example:"0.82"`
	// Confidence weights this snapshot in composites, in [0, 1].
	Confidence float64 `json:"confidence" example:"0.9"`
	// CalculatedAt is when the assessment was produced; defaults to now.
	CalculatedAt time.Time `json:"calculated_at,omitempty"`
}

// CompositeResponse is the confidence-weighted aggregate over an entity's
// snapshots. Score and Confidence are both zero when no weighted snapshots
// exist (the explicit "no data" sentinel).
type CompositeResponse struct {
	EntityID   string  `json:"entity_id"`
	EntityType string  `json:"entity_type"`
	MetricType string  `json:"metric_type"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
}

//
// Handlers
//

// RecordMetric godoc
// @ID          recordMetric
// @Summary     Record a quality metric snapshot
// @Description Validates and persists a quality assessment snapshot for an entity.
// @Tags        Metrics
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RecordMetricRequest  true  "Metric payload"
//
// @Success     201  {object}  domain.QualityMetric
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /metrics [post]
func (h *Handlers) RecordMetric(c *gin.Context) {
	var req RecordMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "metric_type, entity_id, and entity_type required")
		return
	}

	m, err := h.metricSvc.Record(c.Request.Context(), req.MetricType, req.EntityID, req.EntityType, req.Score, req.Confidence, req.CalculatedAt)
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, m)
}

// GetComposite godoc
// @ID          getComposite
// @Summary     Confidence-weighted composite
// @Description Aggregates every snapshot recorded for (entity_id, entity_type,
// @Description metric_type) into a confidence-weighted composite. With no
// @Description weighted snapshots the composite is the (0, 0) sentinel.
// @Tags        Metrics
// @Produce     json
//
// @Param       entity_id    query  string  true  "Entity ID"
// @Param       entity_type  query  string  true  "Entity type"
// @Param       metric_type  query  string  true  "Metric type"
//
// @Success     200  {object}  handlers.CompositeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /metrics/composite [get]
func (h *Handlers) GetComposite(c *gin.Context) {
	entityID := c.Query("entity_id")
	entityType := c.Query("entity_type")
	metricType := c.Query("metric_type")

	comp, err := h.metricSvc.Composite(c.Request.Context(), entityID, entityType, metricType)
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, CompositeResponse{
		EntityID:   entityID,
		EntityType: entityType,
		MetricType: metricType,
		Score:      comp.Score,
		Confidence: comp.Confidence,
		Samples:    comp.Samples,
	})
}
