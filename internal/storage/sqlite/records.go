package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"reconciliation-engine/internal/storage"
)

const recordColumns = `id, company_id, account_id, status, period_start, period_end, statement_data,
	is_first_reconciliation, time_spent_seconds, user_id, version_vector, encrypted,
	opening_balance, closing_balance, beginning_balance, ending_balance, calculated_balance, discrepancy,
	matched_transactions, unmatched_statement_items, unmatched_book_transactions, notes,
	completed_at, reopened_at, reopened_by, reopened_reason, created_at, updated_at, deleted_at`

// InsertRecord stores one history row.
func (s *Store) InsertRecord(ctx context.Context, row storage.RecordRow) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(row.ID) == "" {
		return fmt.Errorf("record id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO reconciliation_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.CompanyID,
		row.AccountID,
		row.Status,
		toMillis(row.PeriodStart),
		toMillis(row.PeriodEnd),
		row.StatementData,
		row.IsFirstReconciliation,
		row.TimeSpentSeconds,
		row.UserID,
		row.VersionVector,
		row.Encrypted,
		row.OpeningBalance,
		row.ClosingBalance,
		row.BeginningBalance,
		row.EndingBalance,
		row.CalculatedBalance,
		row.Discrepancy,
		row.MatchedTransactions,
		row.UnmatchedStatementItems,
		row.UnmatchedBookTransactions,
		row.Notes,
		toNullMillis(row.CompletedAt),
		toNullMillis(row.ReopenedAt),
		row.ReopenedBy,
		row.ReopenedReason,
		toMillis(row.CreatedAt),
		toMillis(row.UpdatedAt),
		toNullMillis(row.DeletedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord returns one live history row.
func (s *Store) GetRecord(ctx context.Context, id string) (storage.RecordRow, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RecordRow{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM reconciliation_records WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RecordRow{}, storage.ErrNotFound
		}
		return storage.RecordRow{}, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// ListRecords returns an account's live history rows, most recently
// completed first. Rows never completed sort last.
func (s *Store) ListRecords(ctx context.Context, companyID, accountID string) ([]storage.RecordRow, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM reconciliation_records
		 WHERE company_id = ? AND account_id = ? AND deleted_at IS NULL
		 ORDER BY completed_at IS NULL, completed_at DESC, created_at DESC`,
		companyID, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []storage.RecordRow
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// ReopenRecord persists the reopen transition of a row and releases its
// reconciled ledger entries in one transaction. Nothing changes when the
// record does not exist.
func (s *Store) ReopenRecord(ctx context.Context, row storage.RecordRow, release []string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reopen transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE reconciliation_records SET
		   status = ?,
		   reopened_at = ?,
		   reopened_by = ?,
		   reopened_reason = ?,
		   version_vector = ?,
		   updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		row.Status,
		toNullMillis(row.ReopenedAt),
		row.ReopenedBy,
		row.ReopenedReason,
		row.VersionVector,
		toMillis(row.UpdatedAt),
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("reopen record: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	if err := releaseReconciled(ctx, tx, release); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reopen transaction: %w", err)
	}
	return nil
}

func scanRecord(row rowScanner) (storage.RecordRow, error) {
	var (
		r                                  storage.RecordRow
		periodStart, periodEnd             int64
		createdAt, updatedAt               int64
		completedAt, reopenedAt, deletedAt sql.NullInt64
	)
	if err := row.Scan(
		&r.ID,
		&r.CompanyID,
		&r.AccountID,
		&r.Status,
		&periodStart,
		&periodEnd,
		&r.StatementData,
		&r.IsFirstReconciliation,
		&r.TimeSpentSeconds,
		&r.UserID,
		&r.VersionVector,
		&r.Encrypted,
		&r.OpeningBalance,
		&r.ClosingBalance,
		&r.BeginningBalance,
		&r.EndingBalance,
		&r.CalculatedBalance,
		&r.Discrepancy,
		&r.MatchedTransactions,
		&r.UnmatchedStatementItems,
		&r.UnmatchedBookTransactions,
		&r.Notes,
		&completedAt,
		&reopenedAt,
		&r.ReopenedBy,
		&r.ReopenedReason,
		&createdAt,
		&updatedAt,
		&deletedAt,
	); err != nil {
		return storage.RecordRow{}, err
	}
	r.PeriodStart = fromMillis(periodStart)
	r.PeriodEnd = fromMillis(periodEnd)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	r.CompletedAt = fromNullMillis(completedAt)
	r.ReopenedAt = fromNullMillis(reopenedAt)
	r.DeletedAt = fromNullMillis(deletedAt)
	return r, nil
}

var _ storage.RecordStore = (*Store)(nil)
