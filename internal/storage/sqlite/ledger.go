package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/storage"
)

// PutJournalEntries upserts entries and replaces their lines in one transaction.
func (s *Store) PutJournalEntries(ctx context.Context, entries []models.JournalEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(time.Now())
	for _, entry := range entries {
		if strings.TrimSpace(entry.ID) == "" {
			return fmt.Errorf("journal entry id is required")
		}
		status := entry.Status
		if status == "" {
			status = models.JournalStatusPending
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal_entries (id, company_id, entry_date, memo, status, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   company_id = excluded.company_id,
			   entry_date = excluded.entry_date,
			   memo = excluded.memo,
			   status = excluded.status,
			   updated_at = excluded.updated_at`,
			entry.ID, entry.CompanyID, toMillis(entry.Date), entry.Memo, string(status), now,
		); err != nil {
			return fmt.Errorf("put journal entry %s: %w", entry.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM journal_lines WHERE entry_id = ?`, entry.ID); err != nil {
			return fmt.Errorf("clear journal lines %s: %w", entry.ID, err)
		}
		for i, line := range entry.Lines {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO journal_lines (entry_id, line_no, account_id, debit, credit) VALUES (?, ?, ?, ?, ?)`,
				entry.ID, i, line.AccountID, line.Debit, line.Credit,
			); err != nil {
				return fmt.Errorf("put journal line %s/%d: %w", entry.ID, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

// SetJournalStatus updates the status of the given entries. Unknown ids are
// ignored. The last status an entry held before RECONCILED is kept so a
// reopen can give it back.
func (s *Store) SetJournalStatus(ctx context.Context, ids []string, status models.JournalStatus) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+3)
	args = append(args, string(models.JournalStatusReconciled), string(status), toMillis(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`UPDATE journal_entries SET
		   prior_status = CASE WHEN status <> ? THEN status ELSE prior_status END,
		   status = ?,
		   updated_at = ?
		 WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("set journal status: %w", err)
	}
	return nil
}

// releaseReconciled puts RECONCILED entries back to the status they had
// before reconciliation, CLEARED when none was recorded.
func releaseReconciled(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+3)
	args = append(args, string(models.JournalStatusCleared), toMillis(time.Now()), string(models.JournalStatusReconciled))
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE journal_entries SET
		   status = COALESCE(NULLIF(prior_status, ''), ?),
		   prior_status = '',
		   updated_at = ?
		 WHERE status = ? AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("release journal entries: %w", err)
	}
	return nil
}

// QueryTransactions returns entries matching the filter with all of their
// lines, ordered by date then id.
func (s *Store) QueryTransactions(ctx context.Context, filter storage.TransactionFilter) ([]models.JournalEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(filter.CompanyID) == "" {
		return nil, fmt.Errorf("company id is required")
	}

	where := []string{"e.company_id = ?"}
	args := []any{filter.CompanyID}
	if filter.AccountID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM journal_lines a WHERE a.entry_id = e.id AND a.account_id = ?)")
		args = append(args, filter.AccountID)
	}
	if len(filter.IDs) > 0 {
		where = append(where, "e.id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if len(filter.ExcludeStatuses) > 0 {
		where = append(where, "e.status NOT IN ("+placeholders(len(filter.ExcludeStatuses))+")")
		for _, status := range filter.ExcludeStatuses {
			args = append(args, string(status))
		}
	}
	if filter.From != nil {
		where = append(where, "e.entry_date >= ?")
		args = append(args, toMillis(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "e.entry_date <= ?")
		args = append(args, toMillis(*filter.To))
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT e.id, e.company_id, e.entry_date, e.memo, e.status, l.account_id, l.debit, l.credit
		 FROM journal_entries e
		 JOIN journal_lines l ON l.entry_id = e.id
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY e.entry_date, e.id, l.line_no`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.JournalEntry
	for rows.Next() {
		var (
			entry models.JournalEntry
			date  int64
			line  models.JournalLine
		)
		if err := rows.Scan(&entry.ID, &entry.CompanyID, &date, &entry.Memo, &entry.Status, &line.AccountID, &line.Debit, &line.Credit); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].ID == entry.ID {
			out[n-1].Lines = append(out[n-1].Lines, line)
			continue
		}
		entry.Date = fromMillis(date)
		entry.Lines = []models.JournalLine{line}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// PutAccount upserts one account.
func (s *Store) PutAccount(ctx context.Context, account models.Account) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(account.ID) == "" {
		return fmt.Errorf("account id is required")
	}
	if strings.TrimSpace(account.CompanyID) == "" {
		return fmt.Errorf("company id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO accounts (id, company_id, name, type, active) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   company_id = excluded.company_id,
		   name = excluded.name,
		   type = excluded.type,
		   active = excluded.active`,
		account.ID, account.CompanyID, account.Name, string(account.Type), account.Active,
	)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	if err := s.ready(ctx); err != nil {
		return models.Account{}, err
	}
	var account models.Account
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, company_id, name, type, active FROM accounts WHERE id = ?`, id,
	).Scan(&account.ID, &account.CompanyID, &account.Name, &account.Type, &account.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, storage.ErrNotFound
		}
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// ListAccounts returns a company's accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context, companyID string) ([]models.Account, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, company_id, name, type, active FROM accounts WHERE company_id = ? ORDER BY name, id`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(&account.ID, &account.CompanyID, &account.Name, &account.Type, &account.Active); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

var (
	_ storage.LedgerStore  = (*Store)(nil)
	_ storage.LedgerWriter = (*Store)(nil)
	_ storage.AccountStore = (*Store)(nil)
)
