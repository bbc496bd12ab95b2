// Signal HTTP handlers.
//
// This file exposes REST endpoints for behavioral signals:
//   - POST /signals                  (record a signal, idempotent)
//   - GET  /users/{id}/engagement    (derive the session engagement score)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, route, key), the handler replays the recorded
// resource id and sets `Idempotency-Replayed: true` instead of inserting a
// duplicate signal.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solmere/go-wellness-backend/internal/http/middleware"
	"github.com/solmere/go-wellness-backend/internal/repo"
)

//
// DTOs
//

// SubmitSignalRequest is the JSON payload for recording a behavioral signal.
type SubmitSignalRequest struct {
	// SessionID groups signals into a scoring window.
	SessionID string `json:"session_id" binding:"required" example:"sess-2024-11-02"`
	// Kind is one of: completion, retry, duration, skip, dropoff.
	Kind string `json:"kind" binding:"required" example:"completion"`
	// Value optionally carries a kind-specific JSON payload.
	Value json.RawMessage `json:"value,omitempty"`
	// OccurredAt is the client-side event time (RFC 3339).
	OccurredAt time.Time `json:"occurred_at" binding:"required" example:"2024-11-02T10:30:00Z"`
}

//
// Handlers
//

// SubmitSignal godoc
// @ID          submitSignal
// @Summary     Record a behavioral signal
// @Description Validates and records a signal for the current user's session.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Signals
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.SubmitSignalRequest  true  "Signal payload"
//
// @Success     201  {object}  domain.Signal
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /signals [post]
func (h *Handlers) SubmitSignal(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubmitSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id, kind, and occurred_at required")
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

	sig, err := h.signalSvc.Submit(ctx, currentUser, req.SessionID, req.Kind, string(req.Value), req.OccurredAt)
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && h.db != nil {
		_, _ = repo.CreateIdempotency(ctx, h.db, currentUser, c.FullPath(), idemKey, sig.ID, http.StatusCreated, h.idemTTL)
	}

	ok(c, http.StatusCreated, sig)
}

// GetEngagement godoc
// @ID          getEngagement
// @Summary     Derive a session engagement score
// @Description Recomputes the engagement score for the given user and session
// @Description from the current signal set. A session with no signals scores
// @Description exactly 0.5 (neutral).
// @Tags        Signals
// @Produce     json
//
// @Param       id          path   string  true  "User ID"
// @Param       session_id  query  string  true  "Session ID"
//
// @Success     200  {object}  domain.EngagementScore
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/engagement [get]
func (h *Handlers) GetEngagement(c *gin.Context) {
	score, err := h.signalSvc.Score(c.Request.Context(), c.Param("id"), c.Query("session_id"))
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeScoreFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, score)
}
