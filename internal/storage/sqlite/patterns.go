package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/storage"
)

const patternColumns = `id, company_id, vendor_name, description_patterns, amount_min, amount_max,
	typical_day_of_month, confidence, match_count, last_matched_at, created_at, updated_at, deleted_at`

// CreatePattern inserts one pattern. A live pattern with the same
// (company, vendor) yields storage.ErrConflict.
func (s *Store) CreatePattern(ctx context.Context, pattern *models.ReconciliationPattern) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if pattern == nil || strings.TrimSpace(pattern.ID) == "" {
		return fmt.Errorf("pattern id is required")
	}
	grams, err := json.Marshal(nonNilStrings(pattern.DescriptionPatterns))
	if err != nil {
		return fmt.Errorf("encode description patterns: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO reconciliation_patterns (`+patternColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pattern.ID,
		pattern.CompanyID,
		pattern.VendorName,
		string(grams),
		pattern.TypicalAmountRange.Min,
		pattern.TypicalAmountRange.Max,
		pattern.TypicalDayOfMonth,
		pattern.Confidence,
		pattern.MatchCount,
		toNullMillis(pattern.LastMatchedAt),
		toMillis(pattern.CreatedAt),
		toMillis(pattern.UpdatedAt),
		toNullMillis(pattern.DeletedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create pattern: %w", err)
	}
	return nil
}

// GetPattern returns one live pattern by id.
func (s *Store) GetPattern(ctx context.Context, id string) (*models.ReconciliationPattern, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM reconciliation_patterns WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	pattern, err := scanPattern(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pattern: %w", err)
	}
	return pattern, nil
}

// GetPatternByVendor returns the live pattern for a normalized vendor name.
func (s *Store) GetPatternByVendor(ctx context.Context, companyID, vendorName string) (*models.ReconciliationPattern, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM reconciliation_patterns
		 WHERE company_id = ? AND vendor_name = ? AND deleted_at IS NULL`,
		companyID, vendorName,
	)
	pattern, err := scanPattern(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pattern by vendor: %w", err)
	}
	return pattern, nil
}

// ListPatterns returns a company's live patterns, highest confidence first.
func (s *Store) ListPatterns(ctx context.Context, companyID string) ([]*models.ReconciliationPattern, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+patternColumns+` FROM reconciliation_patterns
		 WHERE company_id = ? AND deleted_at IS NULL
		 ORDER BY confidence DESC, vendor_name ASC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var out []*models.ReconciliationPattern
	for rows.Next() {
		pattern, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		out = append(out, pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patterns: %w", err)
	}
	return out, nil
}

// UpdatePattern overwrites the learned fields of a live pattern.
func (s *Store) UpdatePattern(ctx context.Context, pattern *models.ReconciliationPattern) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if pattern == nil {
		return fmt.Errorf("pattern is required")
	}
	grams, err := json.Marshal(nonNilStrings(pattern.DescriptionPatterns))
	if err != nil {
		return fmt.Errorf("encode description patterns: %w", err)
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE reconciliation_patterns SET
		   description_patterns = ?,
		   amount_min = ?,
		   amount_max = ?,
		   typical_day_of_month = ?,
		   confidence = ?,
		   match_count = ?,
		   last_matched_at = ?,
		   updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		string(grams),
		pattern.TypicalAmountRange.Min,
		pattern.TypicalAmountRange.Max,
		pattern.TypicalDayOfMonth,
		pattern.Confidence,
		pattern.MatchCount,
		toNullMillis(pattern.LastMatchedAt),
		toMillis(pattern.UpdatedAt),
		pattern.ID,
	)
	if err != nil {
		return fmt.Errorf("update pattern: %w", err)
	}
	return requireAffected(result)
}

// SoftDeletePattern marks a pattern deleted. Deleted rows free their vendor
// key so the vendor can be learned again.
func (s *Store) SoftDeletePattern(ctx context.Context, id string, deletedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE reconciliation_patterns SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		toMillis(deletedAt), toMillis(deletedAt), id,
	)
	if err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*models.ReconciliationPattern, error) {
	var (
		p                    models.ReconciliationPattern
		grams                string
		lastMatched, deleted sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&p.ID,
		&p.CompanyID,
		&p.VendorName,
		&grams,
		&p.TypicalAmountRange.Min,
		&p.TypicalAmountRange.Max,
		&p.TypicalDayOfMonth,
		&p.Confidence,
		&p.MatchCount,
		&lastMatched,
		&createdAt,
		&updatedAt,
		&deleted,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(grams), &p.DescriptionPatterns); err != nil {
		return nil, fmt.Errorf("decode description patterns: %w", err)
	}
	p.LastMatchedAt = fromNullMillis(lastMatched)
	p.DeletedAt = fromNullMillis(deleted)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

var _ storage.PatternStore = (*Store)(nil)
