// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Contact
// model plus the ContactStore adapter consumed by the alert lifecycle manager.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// CreateContact registers a trusted contact for crisis notification.
func CreateContact(ctx context.Context, db *gorm.DB, userID, name, kind, address string, priority int) (*domain.Contact, error) {
	c := &domain.Contact{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Kind:      kind,
		Address:   address,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListContacts returns the user's contacts in notification order
// (Priority ASC, CreatedAt ASC).
func ListContacts(ctx context.Context, db *gorm.DB, userID string) ([]domain.Contact, error) {
	var out []domain.Contact
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("priority ASC, created_at ASC").
		Find(&out).Error
	return out, err
}

// DeleteContact soft-deletes a contact, enforcing user ownership.
// Returns ErrNotFound if the contact does not exist.
func DeleteContact(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Contact{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ContactStore adapts the repository functions to the alert.ContactSource port.
type ContactStore struct {
	DB *gorm.DB
}

func (s *ContactStore) ListContacts(ctx context.Context, userID string) ([]domain.Contact, error) {
	return ListContacts(ctx, s.DB, userID)
}
