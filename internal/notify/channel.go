// Package notify defines the outbound notification channel contract consumed
// by the alert lifecycle manager, and a webhook gateway implementation.
//
// The channel is an at-least-once-attempt, possibly-failing dependency: the
// manager owns retry policy, so implementations perform exactly one delivery
// attempt per call and classify failures as transient or permanent.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// AlertPayload is the notification body delivered to a trusted contact.
type AlertPayload struct {
	AlertID        string    `json:"alert_id"`
	UserID         string    `json:"user_id"`
	SeverityLevel  int       `json:"severity_level"`
	TriggerPattern string    `json:"trigger_pattern"`
	CreatedAt      time.Time `json:"created_at"`
}

// DeliveryReceipt acknowledges a successful delivery attempt.
type DeliveryReceipt struct {
	ContactID   string    `json:"contact_id"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Channel delivers one alert payload to one contact. Implementations must
// honor ctx cancellation and deadlines (the manager applies a per-attempt
// timeout) and return a *ChannelError for delivery failures.
type Channel interface {
	Notify(ctx context.Context, contact domain.Contact, payload AlertPayload) (DeliveryReceipt, error)
}

// ChannelError describes a failed delivery attempt. Transient errors are
// retried by the alert manager; permanent ones exhaust the alert immediately.
type ChannelError struct {
	ContactID string
	Transient bool
	Err       error
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("notify contact %s: %s channel failure: %v", e.ContactID, class, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *ChannelError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable channel failure.
func IsTransient(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce) && ce.Transient
}
