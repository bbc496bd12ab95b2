// Mood HTTP handlers.
//
// This file exposes REST endpoints for mood check-ins and crisis evaluation:
//   - POST /moods              (record a mood entry, idempotent)
//   - GET  /users/{id}/moods   (recent mood history)
//   - GET  /users/{id}/crisis  (evaluate the crisis window on demand)
//
// Every submission runs the crisis detector over the user's recent window; a
// triggered detection is handed to the alert lifecycle and the touched alert
// is echoed in the response so clients can surface it immediately.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/http/middleware"
	"github.com/solmere/go-wellness-backend/internal/repo"
)

//
// DTOs
//

// SubmitMoodRequest is the JSON payload for recording a mood entry.
type SubmitMoodRequest struct {
	// Score is the self-reported mood on a 1 (worst) to 10 (best) scale.
	Score int `json:"score" binding:"required" example:"7"`
	// Emotions optionally labels the entry (at most 10 labels).
	Emotions []string `json:"emotions,omitempty" example:"calm,hopeful"`
	// OccurredAt is the client-side check-in time (RFC 3339).
	OccurredAt time.Time `json:"occurred_at" binding:"required" example:"2024-11-02T10:30:00Z"`
}

// SubmitMoodResponse wraps the persisted entry and, when detection triggered,
// the crisis alert touched by this submission.
type SubmitMoodResponse struct {
	Entry *domain.MoodEntry   `json:"entry"`
	Alert *domain.CrisisAlert `json:"alert,omitempty"`
}

// MoodHistoryResponse wraps the user's recent mood entries, oldest-first.
type MoodHistoryResponse struct {
	Moods []domain.MoodEntry `json:"moods"`
}

//
// Handlers
//

// SubmitMood godoc
// @ID          submitMood
// @Summary     Record a mood check-in
// @Description Records a mood entry and evaluates the user's recent window for
// @Description crisis patterns. Supports idempotency via the Idempotency-Key header.
// @Tags        Moods
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.SubmitMoodRequest  true  "Mood payload"
//
// @Success     201  {object}  handlers.SubmitMoodResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /moods [post]
func (h *Handlers) SubmitMood(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubmitMoodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "score and occurred_at required")
		return
	}

	currentUser := userID(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.db != nil {
		if rec, err := repo.GetIdempotency(ctx, h.db, currentUser, c.FullPath(), idemKey, time.Now().UTC()); err == nil && rec != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, rec.Status, gin.H{"id": rec.ResourceID})
			return
		}
	}

	entry, alert, err := h.moodSvc.Submit(ctx, currentUser, req.Score, req.Emotions, req.OccurredAt)
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && h.db != nil {
		_, _ = repo.CreateIdempotency(ctx, h.db, currentUser, c.FullPath(), idemKey, entry.ID, http.StatusCreated, h.idemTTL)
	}

	ok(c, http.StatusCreated, SubmitMoodResponse{Entry: entry, Alert: alert})
}

// ListMoods godoc
// @ID          listMoods
// @Summary     Recent mood history
// @Description Returns the user's recent mood entries, oldest-first.
// @Tags        Moods
// @Produce     json
//
// @Param       id  path  string  true  "User ID"
//
// @Success     200  {object}  handlers.MoodHistoryResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/moods [get]
func (h *Handlers) ListMoods(c *gin.Context) {
	moods, err := h.moodSvc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, MoodHistoryResponse{Moods: moods})
}

// GetCrisis godoc
// @ID          getCrisis
// @Summary     Evaluate the crisis window
// @Description Runs crisis detection over the user's recent mood window and
// @Description returns the determination without creating an alert.
// @Tags        Moods
// @Produce     json
//
// @Param       id  path  string  true  "User ID"
//
// @Success     200  {object}  domain.CrisisDetermination
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/crisis [get]
func (h *Handlers) GetCrisis(c *gin.Context) {
	det, err := h.moodSvc.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeEvaluateFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, det)
}
