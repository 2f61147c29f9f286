package history

import (
	"encoding/json"
	"fmt"
	"strconv"

	"reconciliation-engine/internal/crypto"
	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/storage"
)

// codec converts records to rows and back. Sensitive fields are encoded to
// strings and then sealed by the cipher; everything else is stored as is.
type codec struct {
	cipher crypto.Cipher
}

func (c codec) encode(record *models.ReconciliationRecord) (storage.RecordRow, error) {
	statement, err := json.Marshal(record.Statement)
	if err != nil {
		return storage.RecordRow{}, fmt.Errorf("encode statement data: %w", err)
	}
	vv, err := json.Marshal(record.VersionVector)
	if err != nil {
		return storage.RecordRow{}, fmt.Errorf("encode version vector: %w", err)
	}

	row := storage.RecordRow{
		ID:                    record.ID,
		CompanyID:             record.CompanyID,
		AccountID:             record.AccountID,
		Status:                string(record.Status),
		PeriodStart:           record.Statement.Period.StartDate,
		PeriodEnd:             record.Statement.Period.EndDate,
		IsFirstReconciliation: record.IsFirstReconciliation,
		TimeSpentSeconds:      record.TimeSpentSeconds,
		UserID:                record.UserID,
		VersionVector:         string(vv),
		Encrypted:             c.cipher.Enabled(),
		CompletedAt:           record.CompletedAt,
		ReopenedAt:            record.ReopenedAt,
		ReopenedBy:            record.ReopenedBy,
		ReopenedReason:        record.ReopenedReason,
		CreatedAt:             record.CreatedAt,
		UpdatedAt:             record.UpdatedAt,
		DeletedAt:             record.DeletedAt,
	}

	fields := []struct {
		dst   *string
		value string
	}{
		{&row.OpeningBalance, formatInt(record.OpeningBalance)},
		{&row.ClosingBalance, formatInt(record.ClosingBalance)},
		{&row.BeginningBalance, formatInt(record.BeginningBalance)},
		{&row.EndingBalance, formatInt(record.EndingBalance)},
		{&row.CalculatedBalance, formatInt(record.CalculatedBalance)},
		{&row.Discrepancy, formatInt(record.Discrepancy)},
		{&row.Notes, record.Notes},
		{&row.StatementData, string(statement)},
	}
	lists := []struct {
		dst   *string
		value []string
	}{
		{&row.MatchedTransactions, record.MatchedTransactions},
		{&row.UnmatchedStatementItems, record.UnmatchedStatementItems},
		{&row.UnmatchedBookTransactions, record.UnmatchedBookTransactions},
	}
	for _, l := range lists {
		raw, err := json.Marshal(nonNil(l.value))
		if err != nil {
			return storage.RecordRow{}, fmt.Errorf("encode id list: %w", err)
		}
		fields = append(fields, struct {
			dst   *string
			value string
		}{l.dst, string(raw)})
	}

	for _, f := range fields {
		sealed, err := c.cipher.Encrypt(f.value)
		if err != nil {
			return storage.RecordRow{}, fmt.Errorf("encrypt record field: %w", err)
		}
		*f.dst = sealed
	}
	return row, nil
}

func (c codec) decode(row storage.RecordRow) (*models.ReconciliationRecord, error) {
	if row.Encrypted && !c.cipher.Enabled() {
		return nil, fmt.Errorf("record %s is encrypted and no encryption key is configured", row.ID)
	}

	open := func(v string) (string, error) {
		if !row.Encrypted {
			return v, nil
		}
		return c.cipher.Decrypt(v)
	}

	record := &models.ReconciliationRecord{
		ReconciliationSession: models.ReconciliationSession{
			ID:                    row.ID,
			CompanyID:             row.CompanyID,
			AccountID:             row.AccountID,
			Status:                models.SessionStatus(row.Status),
			IsFirstReconciliation: row.IsFirstReconciliation,
			CompletedAt:           row.CompletedAt,
			ReopenedAt:            row.ReopenedAt,
			ReopenedBy:            row.ReopenedBy,
			ReopenedReason:        row.ReopenedReason,
			CreatedAt:             row.CreatedAt,
			UpdatedAt:             row.UpdatedAt,
		},
		TimeSpentSeconds: row.TimeSpentSeconds,
		UserID:           row.UserID,
		DeletedAt:        row.DeletedAt,
	}

	statement, err := open(row.StatementData)
	if err != nil {
		return nil, fmt.Errorf("decrypt statement data: %w", err)
	}
	if statement != "" {
		if err := json.Unmarshal([]byte(statement), &record.Statement); err != nil {
			return nil, fmt.Errorf("decode statement data: %w", err)
		}
	}
	record.VersionVector = models.VersionVector{}
	if row.VersionVector != "" {
		if err := json.Unmarshal([]byte(row.VersionVector), &record.VersionVector); err != nil {
			return nil, fmt.Errorf("decode version vector: %w", err)
		}
	}

	ints := []struct {
		dst *int64
		src string
	}{
		{&record.OpeningBalance, row.OpeningBalance},
		{&record.ClosingBalance, row.ClosingBalance},
		{&record.BeginningBalance, row.BeginningBalance},
		{&record.EndingBalance, row.EndingBalance},
		{&record.CalculatedBalance, row.CalculatedBalance},
		{&record.Discrepancy, row.Discrepancy},
	}
	for _, f := range ints {
		plain, err := open(f.src)
		if err != nil {
			return nil, fmt.Errorf("decrypt record field: %w", err)
		}
		if plain == "" {
			continue
		}
		if *f.dst, err = strconv.ParseInt(plain, 10, 64); err != nil {
			return nil, fmt.Errorf("decode amount %q: %w", plain, err)
		}
	}

	lists := []struct {
		dst *[]string
		src string
	}{
		{&record.MatchedTransactions, row.MatchedTransactions},
		{&record.UnmatchedStatementItems, row.UnmatchedStatementItems},
		{&record.UnmatchedBookTransactions, row.UnmatchedBookTransactions},
	}
	for _, f := range lists {
		plain, err := open(f.src)
		if err != nil {
			return nil, fmt.Errorf("decrypt record field: %w", err)
		}
		*f.dst = []string{}
		if plain == "" {
			continue
		}
		if err := json.Unmarshal([]byte(plain), f.dst); err != nil {
			return nil, fmt.Errorf("decode id list: %w", err)
		}
	}

	notes, err := open(row.Notes)
	if err != nil {
		return nil, fmt.Errorf("decrypt record field: %w", err)
	}
	record.Notes = notes
	return record, nil
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
