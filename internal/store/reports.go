package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertReport stores a new report. A missing contribution surfaces as
// ErrNotFound through the foreign key.
func (s *Store) InsertReport(ctx context.Context, r *Report) error {
	status := r.Status
	if status == "" {
		status = ReportPending
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO reports (id, contribution_id, reporter_email, reason, details, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ContributionID, nullString(r.ReporterEmail), r.Reason, r.Details, string(status), r.CreatedAt.UTC())
	if err != nil {
		if isForeignKeyErr(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// CountPendingReports counts pending reports against a contribution.
func (s *Store) CountPendingReports(ctx context.Context, contributionID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE contribution_id = ? AND status = 'pending'`,
		contributionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

// ListReports returns reports oldest first. An empty status returns all.
func (s *Store) ListReports(ctx context.Context, status ReportStatus) ([]Report, error) {
	query := `SELECT id, contribution_id, reporter_email, reason, details, status, created_at, reviewed_at FROM reports`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var (
			r          Report
			email      sql.NullString
			st         string
			reviewedAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.ContributionID, &email, &r.Reason, &r.Details, &st, &r.CreatedAt, &reviewedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.ReporterEmail = email.String
		r.Status = ReportStatus(st)
		r.CreatedAt = r.CreatedAt.UTC()
		r.ReviewedAt = timePtr(reviewedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetReportStatus records a moderator decision.
func (s *Store) SetReportStatus(ctx context.Context, id string, status ReportStatus, now time.Time) error {
	if err := s.execOne(ctx,
		`UPDATE reports SET status = ?, reviewed_at = ? WHERE id = ?`, string(status), now.UTC(), id); err != nil {
		return fmt.Errorf("set report status: %w", err)
	}
	return nil
}
