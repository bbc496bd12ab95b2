// Package services – ContactService
//
// This file implements the ContactService, which manages the trusted contacts
// notified when a crisis alert is dispatched. Contacts are ordered by
// priority; the dispatcher walks them lowest-priority-value first.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/repo"
)

// Contact field bounds.
const (
	maxContactNameLen    = 128
	maxContactAddressLen = 255
	defaultPriority      = 100
)

// contactKinds is the closed set of supported notification channels.
var contactKinds = map[string]struct{}{
	"email": {},
	"sms":   {},
	"push":  {},
}

// ContactService manages a user's crisis notification contacts.
type ContactService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewContactService constructs a ContactService.
func NewContactService(db *gorm.DB) *ContactService {
	return &ContactService{DB: db}
}

// Create validates and registers a trusted contact. A zero priority takes the
// default (lowest urgency); lower values are notified first.
func (s *ContactService) Create(ctx context.Context, userID, name, kind, address string, priority int) (*domain.Contact, error) {
	userID = strings.TrimSpace(userID)
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("name", "must not be blank")
	}
	if utf8.RuneCountInString(name) > maxContactNameLen {
		return nil, invalidf("name", "exceeds %d characters", maxContactNameLen)
	}

	kind = strings.ToLower(strings.TrimSpace(kind))
	if _, ok := contactKinds[kind]; !ok {
		return nil, invalidf("kind", "must be one of email, sms, push")
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return nil, invalidf("address", "must not be blank")
	}
	if utf8.RuneCountInString(address) > maxContactAddressLen {
		return nil, invalidf("address", "exceeds %d characters", maxContactAddressLen)
	}
	if kind == "email" && !strings.Contains(address, "@") {
		return nil, invalidf("address", "must be an email address")
	}

	if priority < 0 {
		return nil, invalidf("priority", "must not be negative")
	}
	if priority == 0 {
		priority = defaultPriority
	}

	return repo.CreateContact(ctx, s.DB, userID, name, kind, address, priority)
}

// List returns the user's contacts in notification order.
func (s *ContactService) List(ctx context.Context, userID string) ([]domain.Contact, error) {
	userID = strings.TrimSpace(userID)
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}
	return repo.ListContacts(ctx, s.DB, userID)
}

// Delete removes a contact owned by userID, or returns ErrContactNotFound.
func (s *ContactService) Delete(ctx context.Context, userID, id string) error {
	userID = strings.TrimSpace(userID)
	if err := validateID("user_id", userID); err != nil {
		return err
	}
	err := repo.DeleteContact(ctx, s.DB, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrContactNotFound
	}
	return err
}
