package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const contributionColumns = `id, owner_id, contributor_name, contributor_email, email_hash,
	message, voice_url, relationship, traits, vibes, status, is_featured,
	flagged, flag_reason, flagged_at, confirmation_token_hash, created_at, confirmed_at`

func scanContribution(row scanner) (*Contribution, error) {
	var (
		c                                Contribution
		name, email, hash, voice, reason sql.NullString
		tokenHash                        sql.NullString
		traits, vibes, status            string
		flaggedAt, confirmedAt           sql.NullTime
	)
	err := row.Scan(&c.ID, &c.OwnerID, &name, &email, &hash,
		&c.Message, &voice, &c.Relationship, &traits, &vibes, &status, &c.IsFeatured,
		&c.Flagged, &reason, &flaggedAt, &tokenHash, &c.CreatedAt, &confirmedAt)
	if err != nil {
		return nil, err
	}
	c.ContributorName = name.String
	c.ContributorEmail = email.String
	c.EmailHash = hash.String
	c.VoiceURL = voice.String
	c.FlagReason = reason.String
	c.ConfirmationTokenHash = tokenHash.String
	c.Traits = decodeList(traits)
	c.Vibes = decodeList(vibes)
	c.Status = ContributionStatus(status)
	c.FlaggedAt = timePtr(flaggedAt)
	c.ConfirmedAt = timePtr(confirmedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// InsertContribution stores a new contribution.
func (s *Store) InsertContribution(ctx context.Context, c *Contribution) error {
	status := c.Status
	if status == "" {
		status = StatusPendingConfirmation
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO contributions (id, owner_id, contributor_name, contributor_email, email_hash,
			message, voice_url, relationship, traits, vibes, status, is_featured, flagged,
			confirmation_token_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		c.ID, c.OwnerID, nullString(c.ContributorName), nullString(c.ContributorEmail), nullString(c.EmailHash),
		c.Message, nullString(c.VoiceURL), c.Relationship, encodeList(c.Traits), encodeList(c.Vibes), string(status),
		nullString(c.ConfirmationTokenHash), c.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("%w: contribution", ErrConflict)
		}
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

// GetContribution loads a contribution by id.
func (s *Store) GetContribution(ctx context.Context, id string) (*Contribution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id = ?`, id)
	c, err := scanContribution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get contribution: %w", err)
	}
	return c, nil
}

// ListContributions returns an owner's contributions, newest first. An empty
// status returns every state.
func (s *Store) ListContributions(ctx context.Context, ownerID string, status ContributionStatus) ([]Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE owner_id = ?`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// FindLiveByEmailHash returns another pending or confirmed contribution for
// ownerID carrying emailHash, ignoring excludeID.
func (s *Store) FindLiveByEmailHash(ctx context.Context, ownerID, emailHash, excludeID string) (*Contribution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contributionColumns+` FROM contributions
		WHERE owner_id = ? AND email_hash = ? AND id != ?
		  AND status IN ('pending_confirmation', 'confirmed')
		LIMIT 1`,
		ownerID, emailHash, excludeID)
	c, err := scanContribution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find by email hash: %w", err)
	}
	return c, nil
}

// AttachIdentity writes contributor identity and a fresh confirmation token
// hash onto a pending contribution. Returns ErrConflict when another live
// contribution for the same owner already uses the email, and ErrNotFound
// when the row is missing or no longer pending.
func (s *Store) AttachIdentity(ctx context.Context, id, name, email, emailHash, tokenHash string) error {
	err := s.execOne(ctx,
		`UPDATE contributions
		SET contributor_name = ?, contributor_email = ?, email_hash = ?, confirmation_token_hash = ?
		WHERE id = ? AND status = 'pending_confirmation'`,
		name, email, emailHash, tokenHash, id)
	if err != nil {
		return fmt.Errorf("attach identity: %w", err)
	}
	return nil
}

// ConfirmContribution moves a pending contribution to confirmed when tokenHash
// still matches. Returns ErrNotFound when nothing matched.
func (s *Store) ConfirmContribution(ctx context.Context, id, tokenHash string, now time.Time) error {
	err := s.execOne(ctx,
		`UPDATE contributions
		SET status = 'confirmed', confirmed_at = ?, confirmation_token_hash = NULL
		WHERE id = ? AND status = 'pending_confirmation' AND confirmation_token_hash = ?`,
		now.UTC(), id, tokenHash)
	if err != nil {
		return fmt.Errorf("confirm contribution: %w", err)
	}
	return nil
}

// SetFeatured toggles is_featured on a confirmed contribution owned by
// ownerID. Featuring succeeds only while the owner has fewer than quota
// featured rows (quota < 0 means unbounded); the count and the update are one
// statement. Returns false when the quota blocked the change.
func (s *Store) SetFeatured(ctx context.Context, ownerID, id string, featured bool, quota int) (bool, error) {
	if !featured {
		if err := s.execOne(ctx,
			`UPDATE contributions SET is_featured = 0 WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
			return false, fmt.Errorf("unfeature contribution: %w", err)
		}
		return true, nil
	}

	res, err := s.execWithRetry(ctx,
		`UPDATE contributions SET is_featured = 1
		WHERE id = ? AND owner_id = ? AND status = 'confirmed'
		  AND (? < 0 OR is_featured = 1 OR (
		      SELECT COUNT(*) FROM contributions
		      WHERE owner_id = ? AND status = 'confirmed' AND is_featured = 1) < ?)`,
		id, ownerID, quota, ownerID, quota)
	if err != nil {
		return false, fmt.Errorf("feature contribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountFeatured counts an owner's featured confirmed contributions.
func (s *Store) CountFeatured(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contributions WHERE owner_id = ? AND status = 'confirmed' AND is_featured = 1`,
		ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count featured: %w", err)
	}
	return n, nil
}

// DeleteContribution hard-deletes a contribution owned by ownerID.
func (s *Store) DeleteContribution(ctx context.Context, ownerID, id string) error {
	if err := s.execOne(ctx, `DELETE FROM contributions WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("delete contribution: %w", err)
	}
	return nil
}

// FlagIfReported sets the flag on a contribution once its pending report count
// reaches threshold. The reason records the count at the moment of flagging
// and is never rewritten. Returns true only when this call set the flag.
func (s *Store) FlagIfReported(ctx context.Context, contributionID string, threshold int, now time.Time) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE contributions
		SET flagged = 1,
		    flag_reason = 'Auto-flagged: ' || (
		        SELECT COUNT(*) FROM reports
		        WHERE contribution_id = contributions.id AND status = 'pending') || ' pending reports',
		    flagged_at = ?
		WHERE id = ? AND flagged = 0
		  AND (SELECT COUNT(*) FROM reports WHERE contribution_id = ? AND status = 'pending') >= ?`,
		now.UTC(), contributionID, contributionID, threshold)
	if err != nil {
		return false, fmt.Errorf("flag contribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
