package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stephdmurray-sys/nomee-sub001/internal/plans"
)

// NewTestStore opens a migrated in-memory store closed at test cleanup.
func NewTestStore(tb testing.TB) *Store {
	tb.Helper()
	s, err := Open(context.Background(), Options{Memory: true}, nil)
	if err != nil {
		tb.Fatalf("open test store: %v", err)
	}
	tb.Cleanup(func() { s.Close() })
	return s
}

// SeedProfile inserts a profile on plan and returns it.
func SeedProfile(tb testing.TB, s *Store, plan plans.Plan) *Profile {
	tb.Helper()
	id := uuid.NewString()
	p := &Profile{
		ID:          id,
		Slug:        "p-" + id[:8],
		DisplayName: "Test Owner",
		Plan:        plan,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CreateProfile(context.Background(), p); err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}
