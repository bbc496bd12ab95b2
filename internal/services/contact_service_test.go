package services

import (
	"context"
	"errors"
	"testing"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

func newContactService(t *testing.T) *ContactService {
	t.Helper()
	return NewContactService(newServiceDB(t, &domain.Contact{}))
}

func TestContactCreate_NormalizesAndDefaults(t *testing.T) {
	s := newContactService(t)

	c, err := s.Create(context.Background(), " u1 ", " Dana ", " EMAIL ", " dana@example.com ", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.UserID != "u1" || c.Name != "Dana" || c.Kind != "email" || c.Address != "dana@example.com" {
		t.Fatalf("input not normalized: %+v", c)
	}
	if c.Priority != defaultPriority {
		t.Fatalf("zero priority must take the default, got %d", c.Priority)
	}
}

func TestContactCreate_Validation(t *testing.T) {
	s := newContactService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		user     string
		cname    string
		kind     string
		address  string
		priority int
		field    string
	}{
		{"blank user", "", "Dana", "email", "dana@example.com", 1, "user_id"},
		{"blank name", "u1", "  ", "email", "dana@example.com", 1, "name"},
		{"unknown kind", "u1", "Dana", "fax", "555-0100", 1, "kind"},
		{"blank address", "u1", "Dana", "sms", "", 1, "address"},
		{"email without at-sign", "u1", "Dana", "email", "dana.example.com", 1, "address"},
		{"negative priority", "u1", "Dana", "push", "device-token", -1, "priority"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(ctx, tc.user, tc.cname, tc.kind, tc.address, tc.priority)
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected ValidationError on %q, got %v", tc.field, err)
			}
		})
	}
}

func TestContactList_NotificationOrder(t *testing.T) {
	s := newContactService(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "u1", "Backup", "sms", "555-0100", 5); err != nil {
		t.Fatalf("Create backup: %v", err)
	}
	if _, err := s.Create(ctx, "u1", "Primary", "email", "primary@example.com", 1); err != nil {
		t.Fatalf("Create primary: %v", err)
	}
	if _, err := s.Create(ctx, "u2", "Other", "push", "token", 1); err != nil {
		t.Fatalf("Create other-user: %v", err)
	}

	contacts, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts for u1, got %d", len(contacts))
	}
	if contacts[0].Name != "Primary" || contacts[1].Name != "Backup" {
		t.Fatalf("not in priority order: %v, %v", contacts[0].Name, contacts[1].Name)
	}
}

func TestContactDelete_OwnershipAndNotFound(t *testing.T) {
	s := newContactService(t)
	ctx := context.Background()

	c, err := s.Create(ctx, "u1", "Dana", "email", "dana@example.com", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Another user cannot delete it.
	if err := s.Delete(ctx, "u2", c.ID); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("cross-user delete must be not-found, got %v", err)
	}

	if err := s.Delete(ctx, "u1", c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "u1", c.ID); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("double delete must be not-found, got %v", err)
	}
}
