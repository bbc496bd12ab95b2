// Trusted contact HTTP handlers.
//
// This file exposes REST endpoints for crisis notification contacts:
//   - POST   /users/{id}/contacts                 (register)
//   - GET    /users/{id}/contacts                 (list in notification order)
//   - DELETE /users/{id}/contacts/{contactID}     (remove)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/services"
)

//
// DTOs
//

// CreateContactRequest is the JSON payload for registering a trusted contact.
type CreateContactRequest struct {
	// Name is the contact's display name.
	Name string `json:"name" binding:"required" example:"Dana R."`
	// Kind is the notification channel: email, sms, or push.
	Kind string `json:"kind" binding:"required" example:"email"`
	// Address is the channel-specific destination.
	Address string `json:"address" binding:"required" example:"dana@example.com"`
	// Priority orders notification attempts (lower first). Zero takes the default.
	Priority int `json:"priority,omitempty" example:"1"`
}

// ListContactsResponse wraps a user's contacts in notification order.
type ListContactsResponse struct {
	Contacts []domain.Contact `json:"contacts"`
}

//
// Handlers
//

// CreateContact godoc
// @ID          createContact
// @Summary     Register a trusted contact
// @Description Registers a contact to be notified when a crisis alert for the
// @Description user is dispatched.
// @Tags        Contacts
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "User ID"
// @Param       body  body  handlers.CreateContactRequest  true  "Contact payload"
//
// @Success     201  {object}  domain.Contact
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/contacts [post]
func (h *Handlers) CreateContact(c *gin.Context) {
	var req CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, kind, and address required")
		return
	}

	contact, err := h.contactSvc.Create(c.Request.Context(), c.Param("id"), req.Name, req.Kind, req.Address, req.Priority)
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, contact)
}

// ListContacts godoc
// @ID          listContacts
// @Summary     List trusted contacts
// @Description Returns the user's contacts in notification order (priority
// @Description ascending, registration time breaking ties).
// @Tags        Contacts
// @Produce     json
//
// @Param       id  path  string  true  "User ID"
//
// @Success     200  {object}  handlers.ListContactsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/contacts [get]
func (h *Handlers) ListContacts(c *gin.Context) {
	contacts, err := h.contactSvc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		if failInvalid(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListContactsResponse{Contacts: contacts})
}

// DeleteContact godoc
// @ID          deleteContact
// @Summary     Remove a trusted contact
// @Description Removes a contact owned by the user.
// @Tags        Contacts
// @Produce     json
//
// @Param       id         path  string  true  "User ID"
// @Param       contactID  path  string  true  "Contact ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Contact not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/contacts/{contactID} [delete]
func (h *Handlers) DeleteContact(c *gin.Context) {
	err := h.contactSvc.Delete(c.Request.Context(), c.Param("id"), c.Param("contactID"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrContactNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "contact not found")
		default:
			if failInvalid(c, err) {
				return
			}
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}
