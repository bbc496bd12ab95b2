package repo

import (
	"context"
	"testing"
	"time"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

func TestCreateMoodEntry_PersistsEmotions(t *testing.T) {
	db := newRepoDB(t, &domain.MoodEntry{})

	m, err := CreateMoodEntry(context.Background(), db, "u1", 3, []string{"anxious", "tired"}, time.Now())
	if err != nil {
		t.Fatalf("CreateMoodEntry: %v", err)
	}

	var got domain.MoodEntry
	if err := db.First(&got, "id = ?", m.ID).Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.Score != 3 || len(got.Emotions) != 2 || got.Emotions[0] != "anxious" {
		t.Fatalf("unexpected MoodEntry: %+v", got)
	}
}

func TestCreateMoodEntry_CheckConstraintRejectsOutOfRange(t *testing.T) {
	db := newRepoDB(t, &domain.MoodEntry{})

	if _, err := CreateMoodEntry(context.Background(), db, "u1", 0, nil, time.Now()); err == nil {
		t.Fatal("score 0 must violate the CHECK constraint")
	}
	if _, err := CreateMoodEntry(context.Background(), db, "u1", 11, nil, time.Now()); err == nil {
		t.Fatal("score 11 must violate the CHECK constraint")
	}
}

func TestListRecentMoods_ReturnsNewestWindowOldestFirst(t *testing.T) {
	db := newRepoDB(t, &domain.MoodEntry{})
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	scores := []int{9, 8, 2, 3, 2} // oldest .. newest
	for i, s := range scores {
		if _, err := CreateMoodEntry(ctx, db, "u1", s, nil, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	out, err := ListRecentMoods(ctx, db, "u1", 3)
	if err != nil {
		t.Fatalf("ListRecentMoods: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	// The newest three, oldest-first: 2, 3, 2.
	if out[0].Score != 2 || out[1].Score != 3 || out[2].Score != 2 {
		t.Fatalf("wrong window or order: %v", []int{out[0].Score, out[1].Score, out[2].Score})
	}
	if out[0].OccurredAt.After(out[2].OccurredAt) {
		t.Fatalf("entries not oldest-first")
	}
}

func TestListRecentMoods_ScopedToUser(t *testing.T) {
	db := newRepoDB(t, &domain.MoodEntry{})
	ctx := context.Background()

	if _, err := CreateMoodEntry(ctx, db, "u1", 5, nil, time.Now()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := CreateMoodEntry(ctx, db, "u2", 1, nil, time.Now()); err != nil {
		t.Fatalf("insert: %v", err)
	}

	out, err := ListRecentMoods(ctx, db, "u1", 10)
	if err != nil {
		t.Fatalf("ListRecentMoods: %v", err)
	}
	if len(out) != 1 || out[0].UserID != "u1" {
		t.Fatalf("cross-user leak: %+v", out)
	}
}
