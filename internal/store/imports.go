package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const importColumns = `id, owner_id, image_key, image_url, state, ocr_text, excerpt,
	giver_name, giver_company, giver_role, source_type, approx_date, traits,
	confidence, requires_review, approved_by_owner, approved_at, visibility,
	created_at, updated_at`

func scanImport(row scanner) (*ImportedFeedback, error) {
	var (
		f                         ImportedFeedback
		ocr                       sql.NullString
		state, traits, visibility string
		approvedAt                sql.NullTime
	)
	err := row.Scan(&f.ID, &f.OwnerID, &f.ImageKey, &f.ImageURL, &state, &ocr, &f.Excerpt,
		&f.GiverName, &f.GiverCompany, &f.GiverRole, &f.SourceType, &f.ApproxDate, &traits,
		&f.Confidence, &f.RequiresReview, &f.ApprovedByOwner, &approvedAt, &visibility,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.State = ImportState(state)
	f.OCRText = ocr.String
	f.Traits = decodeList(traits)
	f.Visibility = Visibility(visibility)
	f.ApprovedAt = timePtr(approvedAt)
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return &f, nil
}

// InsertImport stores a new imported feedback record.
func (s *Store) InsertImport(ctx context.Context, f *ImportedFeedback) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO imported_feedback (id, owner_id, image_key, image_url, state, ocr_text, excerpt,
			giver_name, giver_company, giver_role, source_type, approx_date, traits, confidence,
			requires_review, approved_by_owner, approved_at, visibility, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OwnerID, f.ImageKey, f.ImageURL, string(f.State), nullString(f.OCRText), f.Excerpt,
		f.GiverName, f.GiverCompany, f.GiverRole, f.SourceType, f.ApproxDate, encodeList(f.Traits), f.Confidence,
		f.RequiresReview, f.ApprovedByOwner, nullTime(f.ApprovedAt), string(f.Visibility),
		f.CreatedAt.UTC(), f.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert import: %w", err)
	}
	return nil
}

// GetImport loads an import by id.
func (s *Store) GetImport(ctx context.Context, id string) (*ImportedFeedback, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+importColumns+` FROM imported_feedback WHERE id = ?`, id)
	f, err := scanImport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get import: %w", err)
	}
	return f, nil
}

// ListImports returns an owner's imports, newest first.
func (s *Store) ListImports(ctx context.Context, ownerID string) ([]ImportedFeedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+importColumns+` FROM imported_feedback WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var out []ImportedFeedback
	for rows.Next() {
		f, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// CountImports counts an owner's imports in any state.
func (s *Store) CountImports(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM imported_feedback WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count imports: %w", err)
	}
	return n, nil
}

// SaveExtraction overwrites the extracted fields of an import and clears any
// previous approval.
func (s *Store) SaveExtraction(ctx context.Context, f *ImportedFeedback) error {
	err := s.execOne(ctx,
		`UPDATE imported_feedback
		SET state = ?, ocr_text = ?, excerpt = ?, giver_name = ?, giver_company = ?, giver_role = ?,
		    source_type = ?, approx_date = ?, traits = ?, confidence = ?, requires_review = ?,
		    approved_by_owner = 0, approved_at = NULL, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		string(f.State), nullString(f.OCRText), f.Excerpt, f.GiverName, f.GiverCompany, f.GiverRole,
		f.SourceType, f.ApproxDate, encodeList(f.Traits), f.Confidence, f.RequiresReview,
		f.UpdatedAt.UTC(), f.ID, f.OwnerID)
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	return nil
}

// ApproveImport records owner approval together with any owner edits.
func (s *Store) ApproveImport(ctx context.Context, f *ImportedFeedback) error {
	err := s.execOne(ctx,
		`UPDATE imported_feedback
		SET state = 'approved', excerpt = ?, giver_name = ?, giver_company = ?, giver_role = ?,
		    traits = ?, approved_by_owner = 1, approved_at = ?, visibility = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		f.Excerpt, f.GiverName, f.GiverCompany, f.GiverRole, encodeList(f.Traits),
		nullTime(f.ApprovedAt), string(f.Visibility), f.UpdatedAt.UTC(), f.ID, f.OwnerID)
	if err != nil {
		return fmt.Errorf("approve import: %w", err)
	}
	return nil
}

// SetImportVisibility changes visibility of an owner's import.
func (s *Store) SetImportVisibility(ctx context.Context, ownerID, id string, v Visibility, now time.Time) error {
	err := s.execOne(ctx,
		`UPDATE imported_feedback SET visibility = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		string(v), now.UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("set visibility: %w", err)
	}
	return nil
}

// DeleteImport removes an owner's import.
func (s *Store) DeleteImport(ctx context.Context, ownerID, id string) error {
	if err := s.execOne(ctx, `DELETE FROM imported_feedback WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("delete import: %w", err)
	}
	return nil
}
