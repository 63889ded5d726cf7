package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stephdmurray-sys/nomee-sub001/internal/plans"
)

// CreateProfile inserts a profile. A taken id or slug yields ErrConflict.
func (s *Store) CreateProfile(ctx context.Context, p *Profile) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO profiles (id, slug, display_name, plan, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.DisplayName, string(plans.Normalize(p.Plan)), p.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("%w: profile %s", ErrConflict, p.Slug)
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetProfile loads a profile by id.
func (s *Store) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return s.getProfile(ctx, `WHERE id = ?`, id)
}

// GetProfileBySlug loads a profile by its public slug.
func (s *Store) GetProfileBySlug(ctx context.Context, slug string) (*Profile, error) {
	return s.getProfile(ctx, `WHERE slug = ?`, slug)
}

func (s *Store) getProfile(ctx context.Context, where string, arg any) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, display_name, plan, created_at FROM profiles `+where, arg)

	var p Profile
	var plan string
	if err := row.Scan(&p.ID, &p.Slug, &p.DisplayName, &plan, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.Plan = plans.Plan(plan)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// SetProfilePlan changes the subscription tier.
func (s *Store) SetProfilePlan(ctx context.Context, id string, plan plans.Plan) error {
	if err := s.execOne(ctx, `UPDATE profiles SET plan = ? WHERE id = ?`, string(plan), id); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}
