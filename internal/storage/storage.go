// Package storage declares the persistence collaborators the reconciliation
// services depend on. Implementations live in subpackages; services only see
// these interfaces.
package storage

import (
	"context"
	"errors"
	"time"

	"reconciliation-engine/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist or is soft-deleted.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("storage: conflict")
)

// PatternStore persists learned vendor patterns. Lookups never return soft-deleted rows.
type PatternStore interface {
	CreatePattern(ctx context.Context, pattern *models.ReconciliationPattern) error
	GetPattern(ctx context.Context, id string) (*models.ReconciliationPattern, error)
	GetPatternByVendor(ctx context.Context, companyID, vendorName string) (*models.ReconciliationPattern, error)
	ListPatterns(ctx context.Context, companyID string) ([]*models.ReconciliationPattern, error)
	UpdatePattern(ctx context.Context, pattern *models.ReconciliationPattern) error
	SoftDeletePattern(ctx context.Context, id string, deletedAt time.Time) error
}

// RecordRow is a reconciliation record at the persistence boundary. Fields
// that may be encrypted are carried as opaque strings; the history service
// owns encoding them.
type RecordRow struct {
	ID                    string
	CompanyID             string
	AccountID             string
	Status                string
	PeriodStart           time.Time
	PeriodEnd             time.Time
	StatementData         string
	IsFirstReconciliation bool
	TimeSpentSeconds      int64
	UserID                string
	VersionVector         string
	Encrypted             bool

	OpeningBalance            string
	ClosingBalance            string
	BeginningBalance          string
	EndingBalance             string
	CalculatedBalance         string
	Discrepancy               string
	MatchedTransactions       string
	UnmatchedStatementItems   string
	UnmatchedBookTransactions string
	Notes                     string

	CompletedAt    *time.Time
	ReopenedAt     *time.Time
	ReopenedBy     string
	ReopenedReason string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// RecordStore persists reconciliation history rows
type RecordStore interface {
	InsertRecord(ctx context.Context, row RecordRow) error
	GetRecord(ctx context.Context, id string) (RecordRow, error)
	// ListRecords returns rows for one account ordered by completed_at, newest first.
	ListRecords(ctx context.Context, companyID, accountID string) ([]RecordRow, error)
	// ReopenRecord stores the reopen fields of row and releases the given
	// reconciled ledger entries atomically.
	ReopenRecord(ctx context.Context, row RecordRow, release []string) error
}

// TransactionFilter narrows a ledger query
type TransactionFilter struct {
	CompanyID       string
	AccountID       string
	IDs             []string
	ExcludeStatuses []models.JournalStatus
	From            *time.Time
	To              *time.Time
}

// LedgerStore is the read side of the journal-entry store
type LedgerStore interface {
	QueryTransactions(ctx context.Context, filter TransactionFilter) ([]models.JournalEntry, error)
}

// LedgerWriter is the write side used by imports and post-reconciliation status updates
type LedgerWriter interface {
	PutJournalEntries(ctx context.Context, entries []models.JournalEntry) error
	SetJournalStatus(ctx context.Context, ids []string, status models.JournalStatus) error
}

// AccountStore exposes chart-of-accounts lookups
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (models.Account, error)
	ListAccounts(ctx context.Context, companyID string) ([]models.Account, error)
}
