// Crisis alert HTTP handlers.
//
// This file exposes REST endpoints for alert history and manual lifecycle
// control:
//   - GET  /users/{id}/alerts        (list, paginated)
//   - POST /alerts/{id}/resolve      (manual resolution, cancels retries)
//   - POST /alerts/{id}/dispatch     (manual re-dispatch after failure)
//
// Alerts cannot be created over HTTP; they enter the system only through the
// detection pipeline. Lifecycle conflicts (terminal states, already-running
// workers, resolved alerts) map to 409.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solmere/go-wellness-backend/internal/alert"
	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/services"
)

// ListAlertsResponse wraps a page of alerts and pagination information.
type ListAlertsResponse struct {
	Alerts     []domain.CrisisAlert `json:"alerts"`
	Pagination Pagination           `json:"pagination"`
}

// ListAlerts godoc
// @ID          listAlerts
// @Summary     List crisis alerts (paginated)
// @Description Returns a page of the user's alert history, most recent first.
// @Tags        Alerts
// @Produce     json
//
// @Param       id         path   string  true  "User ID"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListAlertsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/alerts [get]
func (h *Handlers) ListAlerts(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.alertSvc.ListPage(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListAlertsResponse{
		Alerts: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ResolveAlert godoc
// @ID          resolveAlert
// @Summary     Resolve an alert manually
// @Description Marks the alert as handled by a human and cancels any pending
// @Description delivery retries.
// @Tags        Alerts
// @Produce     json
//
// @Param       id  path  string  true  "Alert ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Alert not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /alerts/{id}/resolve [post]
func (h *Handlers) ResolveAlert(c *gin.Context) {
	if err := h.alertSvc.Resolve(c.Request.Context(), c.Param("id")); err != nil {
		switch {
		case errors.Is(err, services.ErrAlertNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "alert not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeResolveFailed, err.Error())
		}
		return
	}
	noContent(c)
}

// DispatchAlert godoc
// @ID          dispatchAlert
// @Summary     Re-dispatch a failed alert
// @Description Restarts the delivery worker for an alert whose previous
// @Description dispatch exhausted its retry budget. Terminal, resolved, or
// @Description in-flight alerts are rejected with 409.
// @Tags        Alerts
// @Produce     json
//
// @Param       id  path  string  true  "Alert ID"
//
// @Success     202  {object}  map[string]string  "Dispatch accepted"
// @Failure     404  {object}  handlers.ErrorResponse  "Alert not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Lifecycle conflict"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /alerts/{id}/dispatch [post]
func (h *Handlers) DispatchAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.alertSvc.Redispatch(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, services.ErrAlertNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "alert not found")
		case errors.Is(err, alert.ErrAlertResolved):
			fail(c, http.StatusConflict, ErrCodeConflict, "alert already resolved")
		case errors.Is(err, alert.ErrDispatchInFlight):
			fail(c, http.StatusConflict, ErrCodeConflict, "alert is already being dispatched")
		case errors.Is(err, alert.ErrInvalidTransition):
			fail(c, http.StatusConflict, ErrCodeConflict, "alert is in a terminal state")
		case errors.Is(err, alert.ErrClosed):
			fail(c, http.StatusServiceUnavailable, ErrCodeDispatchFailed, "dispatcher shutting down")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusAccepted, gin.H{"id": id, "status": "dispatching"})
}
