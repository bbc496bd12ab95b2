package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

func TestIdempotency_CreateGetRoundTrip(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "u1", "/v1/signals", "k1", "sig-1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ResourceID != "sig-1" || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "/v1/signals", "k1", now)
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.ResourceID != "sig-1" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestIdempotency_DuplicateTuple(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "/v1/moods", "k1", "m-1", 201, time.Hour); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "/v1/moods", "k1", "m-2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Same key under a different scope is a distinct tuple.
	if _, err := CreateIdempotency(ctx, db, "u1", "/v1/signals", "k1", "s-1", 201, time.Hour); err != nil {
		t.Fatalf("different scope must not collide: %v", err)
	}
}

func TestIdempotency_ExpiredAndBlankScope(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "/v1/moods", "k1", "m-1", 201, -time.Minute); err != nil {
		t.Fatalf("insert expired: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "/v1/moods", "k1", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record must be ErrNotFound, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "  ", "k1", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank scope must be ErrNotFound, got %v", err)
	}
}
