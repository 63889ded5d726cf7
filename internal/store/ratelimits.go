package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpdateRateLimit reads the counter for (identifier, action), passes it to
// decide (nil when absent) and writes back the record decide returns. A nil
// return leaves the row untouched. The read and write share one IMMEDIATE
// transaction, so concurrent callers are serialised.
func (s *Store) UpdateRateLimit(ctx context.Context, identifier, action string,
	decide func(current *RateLimitRecord) *RateLimitRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current *RateLimitRecord
		rec := RateLimitRecord{Identifier: identifier, Action: action}
		err := tx.QueryRowContext(ctx,
			`SELECT window_start, count FROM rate_limits WHERE identifier = ? AND action = ?`,
			identifier, action).Scan(&rec.WindowStart, &rec.Count)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read rate limit: %w", err)
		default:
			rec.WindowStart = rec.WindowStart.UTC()
			current = &rec
		}

		next := decide(current)
		if next == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rate_limits (identifier, action, window_start, count) VALUES (?, ?, ?, ?)
			ON CONFLICT (identifier, action) DO UPDATE
			SET window_start = excluded.window_start, count = excluded.count`,
			identifier, action, next.WindowStart.UTC(), next.Count); err != nil {
			return fmt.Errorf("write rate limit: %w", err)
		}
		return nil
	})
}

// GetRateLimit returns the stored counter, or ErrNotFound.
func (s *Store) GetRateLimit(ctx context.Context, identifier, action string) (*RateLimitRecord, error) {
	rec := RateLimitRecord{Identifier: identifier, Action: action}
	err := s.db.QueryRowContext(ctx,
		`SELECT window_start, count FROM rate_limits WHERE identifier = ? AND action = ?`,
		identifier, action).Scan(&rec.WindowStart, &rec.Count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get rate limit: %w", err)
	}
	rec.WindowStart = rec.WindowStart.UTC()
	return &rec, nil
}
