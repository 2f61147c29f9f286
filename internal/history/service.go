// Package history persists completed reconciliations and answers questions
// about them: the per-account history list, the monthly streak, and which
// ledger transactions have been waiting too long to be reconciled.
//
// Sensitive record fields pass through a crypto.Cipher at the storage
// boundary only. Every write stamps the record's version vector with the
// injected device id.
package history

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"reconciliation-engine/internal/crypto"
	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/reconciler"
	"reconciliation-engine/internal/storage"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

const entityRecord = "reconciliation_record"

// Store is everything the history service reads and writes
type Store interface {
	storage.RecordStore
	storage.LedgerStore
	storage.LedgerWriter
	storage.AccountStore
}

// Options configures a Service
type Options struct {
	// DeviceID identifies this installation in version vectors. Required.
	DeviceID string
	// Cipher seals sensitive fields. Defaults to crypto.Noop.
	Cipher crypto.Cipher
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Validate checks the options
func (o *Options) Validate() error {
	if strings.TrimSpace(o.DeviceID) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "device_id", o.DeviceID, nil).
			WithSuggestion("set device_id in the config file or RECONCILER_DEVICE_ID")
	}
	return nil
}

// Service manages reconciliation history
type Service struct {
	store    Store
	auditor  storage.AuditLogger
	deviceID string
	codec    codec
	now      func() time.Time
	logger   logger.Logger
}

// NewService creates a history service. auditor may be nil.
func NewService(store Store, auditor storage.AuditLogger, opts Options) (*Service, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Cipher == nil {
		opts.Cipher = crypto.Noop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		store:    store,
		auditor:  auditor,
		deviceID: opts.DeviceID,
		codec:    codec{cipher: opts.Cipher},
		now:      opts.Clock,
		logger:   logger.GetGlobalLogger().WithComponent("history"),
	}, nil
}

// SaveReconciliationRecord persists a completed session. The stored copy gets
// a fresh id, timestamps and an initial version vector.
func (s *Service) SaveReconciliationRecord(ctx context.Context, record *models.ReconciliationRecord, userID string) (*models.ReconciliationRecord, error) {
	if record == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "record", nil, nil)
	}
	if strings.TrimSpace(record.CompanyID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "company_id", record.CompanyID, nil)
	}
	if strings.TrimSpace(record.AccountID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "account_id", record.AccountID, nil)
	}
	if record.Status != models.StatusCompleted {
		return nil, errors.ConstraintError(errors.CodeInvalidTransition, "Only completed reconciliations can be saved to history").
			WithContext("status", record.Status)
	}

	now := s.now().UTC()
	saved := *record
	saved.ReconciliationSession = *record.ReconciliationSession.Clone()
	saved.UnmatchedBookTransactions = append([]string{}, record.UnmatchedBookTransactions...)
	saved.ID = ulid.Make().String()
	saved.UserID = userID
	saved.CreatedAt = now
	saved.UpdatedAt = now
	saved.VersionVector = models.VersionVector{}.Increment(s.deviceID)
	if saved.CompletedAt == nil {
		saved.CompletedAt = &now
	}

	row, err := s.codec.encode(&saved)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "encode reconciliation record", err)
	}
	if err := s.store.InsertRecord(ctx, row); err != nil {
		return nil, errors.InternalError(errors.CodeStorageFailure, "insert reconciliation record", err).
			WithContext("account_id", saved.AccountID)
	}

	storage.RecordAudit(ctx, s.auditor, s.logger, storage.AuditCreate, storage.AuditEntry{
		CompanyID:  saved.CompanyID,
		UserID:     userID,
		EntityType: entityRecord,
		EntityID:   saved.ID,
		After:      recordValues(&saved),
	})

	s.logger.WithFields(logger.Fields{
		"record_id":  saved.ID,
		"account_id": saved.AccountID,
		"matched":    len(saved.MatchedTransactions),
		"encrypted":  row.Encrypted,
	}).Info("Saved reconciliation record")

	return &saved, nil
}

// GetReconciliationRecord returns one record with its sensitive fields opened
func (s *Service) GetReconciliationRecord(ctx context.Context, id string) (*models.ReconciliationRecord, error) {
	row, err := s.store.GetRecord(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFoundError("reconciliation record", id)
		}
		return nil, errors.InternalError(errors.CodeStorageFailure, "get reconciliation record", err)
	}
	record, err := s.codec.decode(row)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "decode reconciliation record", err).
			WithContext("record_id", id)
	}
	return record, nil
}

// GetAccountReconciliationHistory lists an account's records, most recently
// completed first.
func (s *Service) GetAccountReconciliationHistory(ctx context.Context, companyID, accountID string) ([]models.RecordSummary, error) {
	records, err := s.listRecords(ctx, companyID, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]models.RecordSummary, 0, len(records))
	for _, r := range records {
		out = append(out, models.RecordSummary{
			ID:             r.ID,
			AccountID:      r.AccountID,
			Status:         r.Status,
			PeriodStart:    r.Statement.Period.StartDate,
			PeriodEnd:      r.Statement.Period.EndDate,
			OpeningBalance: r.OpeningBalance,
			ClosingBalance: r.ClosingBalance,
			Discrepancy:    r.Discrepancy,
			MatchedCount:   len(r.Statement.Transactions) - len(r.UnmatchedStatementItems),
			UnmatchedCount: len(r.UnmatchedStatementItems),
			CompletedAt:    r.CompletedAt,
			ReopenedAt:     r.ReopenedAt,
			UserID:         r.UserID,
		})
	}
	return out, nil
}

// ReopenReconciliation moves a completed record to REOPENED and bumps the
// version vector. Its matched ledger entries go back to the status they had
// before reconciliation in the same store transaction.
func (s *Service) ReopenReconciliation(ctx context.Context, recordID, reason, userID string) (*models.ReconciliationRecord, error) {
	record, err := s.GetReconciliationRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session, err := reconciler.ReopenReconciliation(&record.ReconciliationSession, reason, userID, now)
	if err != nil {
		return nil, err
	}
	before := recordValues(record)

	reopened := *record
	reopened.ReconciliationSession = *session
	reopened.VersionVector = record.VersionVector.Increment(s.deviceID)

	row, err := s.codec.encode(&reopened)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "encode reconciliation record", err)
	}
	if err := s.store.ReopenRecord(ctx, row, reopened.MatchedTransactions); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFoundError("reconciliation record", recordID)
		}
		return nil, errors.InternalError(errors.CodeStorageFailure, "reopen reconciliation record", err).
			WithContext("record_id", recordID)
	}

	storage.RecordAudit(ctx, s.auditor, s.logger, storage.AuditUpdate, storage.AuditEntry{
		CompanyID:     reopened.CompanyID,
		UserID:        userID,
		EntityType:    entityRecord,
		EntityID:      reopened.ID,
		Before:        before,
		After:         recordValues(&reopened),
		ChangedFields: []string{"status", "reopened_at", "reopened_by", "reopened_reason", "version_vector"},
	})

	s.logger.WithFields(logger.Fields{
		"record_id": reopened.ID,
		"released":  len(reopened.MatchedTransactions),
	}).Info("Reopened reconciliation")

	return &reopened, nil
}

// MarkReconciled flags the record's matched ledger entries as RECONCILED so
// later runs no longer offer them for matching.
func (s *Service) MarkReconciled(ctx context.Context, record *models.ReconciliationRecord) error {
	if record == nil || len(record.MatchedTransactions) == 0 {
		return nil
	}
	if err := s.store.SetJournalStatus(ctx, record.MatchedTransactions, models.JournalStatusReconciled); err != nil {
		return errors.InternalError(errors.CodeStorageFailure, "mark ledger entries reconciled", err).
			WithContext("record_id", record.ID)
	}
	return nil
}

func (s *Service) listRecords(ctx context.Context, companyID, accountID string) ([]*models.ReconciliationRecord, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "company_id", companyID, nil)
	}
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "account_id", accountID, nil)
	}

	rows, err := s.store.ListRecords(ctx, companyID, accountID)
	if err != nil {
		return nil, errors.InternalError(errors.CodeStorageFailure, "list reconciliation records", err).
			WithContext("account_id", accountID)
	}

	out := make([]*models.ReconciliationRecord, 0, len(rows))
	for _, row := range rows {
		record, err := s.codec.decode(row)
		if err != nil {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "decode reconciliation record", err).
				WithContext("record_id", row.ID)
		}
		out = append(out, record)
	}
	return out, nil
}

// recordValues is the audit view of a record. Sensitive values stay out of
// the audit log.
func recordValues(r *models.ReconciliationRecord) map[string]interface{} {
	values := map[string]interface{}{
		"status":          string(r.Status),
		"account_id":      r.AccountID,
		"period_start":    r.Statement.Period.StartDate.Format("2006-01-02"),
		"period_end":      r.Statement.Period.EndDate.Format("2006-01-02"),
		"matched_count":   len(r.MatchedTransactions),
		"unmatched_count": len(r.UnmatchedStatementItems),
		"version_vector":  map[string]int64(r.VersionVector),
	}
	if r.ReopenedAt != nil {
		values["reopened_at"] = r.ReopenedAt.Format(time.RFC3339)
		values["reopened_by"] = r.ReopenedBy
		values["reopened_reason"] = r.ReopenedReason
	}
	return values
}

var _ reconciler.RecordKeeper = (*Service)(nil)
