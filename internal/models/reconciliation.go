package models

import "time"

// SessionStatus is the lifecycle state of a reconciliation
type SessionStatus string

const (
	StatusDraft     SessionStatus = "DRAFT"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusReopened  SessionStatus = "REOPENED"
)

// ReconciliationSession is one reconciliation attempt for one account and period
type ReconciliationSession struct {
	ID                      string          `json:"id"`
	CompanyID               string          `json:"company_id"`
	AccountID               string          `json:"account_id"`
	Status                  SessionStatus   `json:"status"`
	OpeningBalance          int64           `json:"opening_balance"`
	ClosingBalance          int64           `json:"closing_balance"`
	Statement               ParsedStatement `json:"statement_data"`
	MatchedTransactions     []string        `json:"matched_transactions"`
	UnmatchedStatementItems []string        `json:"unmatched_statement_items"`
	IsFirstReconciliation   bool            `json:"is_first_reconciliation"`
	Discrepancy             int64           `json:"discrepancy"`
	Notes                   string          `json:"notes,omitempty"`
	CompletedAt             *time.Time      `json:"completed_at,omitempty"`
	ReopenedAt              *time.Time      `json:"reopened_at,omitempty"`
	ReopenedBy              string          `json:"reopened_by,omitempty"`
	ReopenedReason          string          `json:"reopened_reason,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so state transitions never alias their input
func (s *ReconciliationSession) Clone() *ReconciliationSession {
	out := *s
	out.Statement = s.Statement.Clone()
	out.MatchedTransactions = cloneStrings(s.MatchedTransactions)
	out.UnmatchedStatementItems = cloneStrings(s.UnmatchedStatementItems)
	out.CompletedAt = cloneTime(s.CompletedAt)
	out.ReopenedAt = cloneTime(s.ReopenedAt)
	return &out
}

// VersionVector is the per-device write counter stamped on persisted rows
type VersionVector map[string]int64

// Increment returns a copy with deviceID's counter bumped
func (vv VersionVector) Increment(deviceID string) VersionVector {
	out := make(VersionVector, len(vv)+1)
	for k, v := range vv {
		out[k] = v
	}
	out[deviceID]++
	return out
}

// ReconciliationRecord is the persisted history row for a completed session
type ReconciliationRecord struct {
	ReconciliationSession

	BeginningBalance          int64         `json:"beginning_balance"`
	EndingBalance             int64         `json:"ending_balance"`
	CalculatedBalance         int64         `json:"calculated_balance"`
	UnmatchedBookTransactions []string      `json:"unmatched_book_transactions"`
	TimeSpentSeconds          int64         `json:"time_spent_seconds"`
	UserID                    string        `json:"user_id"`
	VersionVector             VersionVector `json:"version_vector"`
	DeletedAt                 *time.Time    `json:"deleted_at,omitempty"`
}

// RecordSummary is the list view of a history row
type RecordSummary struct {
	ID             string        `json:"id"`
	AccountID      string        `json:"account_id"`
	Status         SessionStatus `json:"status"`
	PeriodStart    time.Time     `json:"period_start"`
	PeriodEnd      time.Time     `json:"period_end"`
	OpeningBalance int64         `json:"opening_balance"`
	ClosingBalance int64         `json:"closing_balance"`
	Discrepancy    int64         `json:"discrepancy"`
	MatchedCount   int           `json:"matched_count"`
	UnmatchedCount int           `json:"unmatched_count"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	ReopenedAt     *time.Time    `json:"reopened_at,omitempty"`
	UserID         string        `json:"user_id"`
}

// AgeFlag bands an unreconciled transaction by age
type AgeFlag string

const (
	FlagNone      AgeFlag = "NONE"
	FlagWarning   AgeFlag = "WARNING"
	FlagAttention AgeFlag = "ATTENTION"
	FlagUrgent    AgeFlag = "URGENT"
)

// UnreconciledTransaction is derived on demand from the ledger
type UnreconciledTransaction struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Date          time.Time `json:"date"`
	AgeDays       int       `json:"age_days"`
	Flag          AgeFlag   `json:"flag"`
	Amount        int64     `json:"amount"`
	Description   string    `json:"description"`
}

// AccountAttention is one account's slice of the dashboard
type AccountAttention struct {
	AccountID     string          `json:"account_id"`
	AccountName   string          `json:"account_name"`
	Counts        map[AgeFlag]int `json:"counts"`
	OldestAgeDays int             `json:"oldest_age_days"`
}

// UnreconciledDashboard aggregates flagged transactions across asset accounts
type UnreconciledDashboard struct {
	CompanyID     string             `json:"company_id"`
	Counts        map[AgeFlag]int    `json:"counts"`
	Total         int                `json:"total"`
	OldestAgeDays int                `json:"oldest_age_days"`
	Accounts      []AccountAttention `json:"accounts"`
}

// StreakStatus describes how fresh the latest reconciliation is
type StreakStatus string

const (
	StreakActive StreakStatus = "active"
	StreakAtRisk StreakStatus = "at_risk"
	StreakBroken StreakStatus = "broken"
)

// Milestone records when a streak threshold was first reached
type Milestone struct {
	Milestone  int       `json:"milestone"`
	AchievedAt time.Time `json:"achieved_at"`
}

// ReconciliationStreak is recomputed from history on every query
type ReconciliationStreak struct {
	CurrentStreak          int          `json:"current_streak"`
	BestStreak             int          `json:"best_streak"`
	LastReconciliationDate *time.Time   `json:"last_reconciliation_date,omitempty"`
	NextDueDate            *time.Time   `json:"next_due_date,omitempty"`
	StreakStatus           StreakStatus `json:"streak_status"`
	MilestonesAchieved     []Milestone  `json:"milestones_achieved"`
}

// DiscrepancyPattern categorizes an advisor suggestion
type DiscrepancyPattern string

const (
	PatternBankFee          DiscrepancyPattern = "BANK_FEE"
	PatternInterest         DiscrepancyPattern = "INTEREST"
	PatternDuplicate        DiscrepancyPattern = "DUPLICATE"
	PatternOutstandingCheck DiscrepancyPattern = "OUTSTANDING_CHECK"
)

// FixAction is a proposed ledger entry the caller may choose to post
type FixAction struct {
	Type               string `json:"type"`
	AccountID          string `json:"account_id"`
	Amount             int64  `json:"amount"`
	Memo               string `json:"memo"`
	CounterAccountHint string `json:"counter_account_hint"`
}

// DiscrepancySuggestion is one advisory explanation for leftover items
type DiscrepancySuggestion struct {
	Pattern              DiscrepancyPattern `json:"pattern"`
	Description          string             `json:"description"`
	SuggestedAction      string             `json:"suggested_action"`
	AffectedTransactions []string           `json:"affected_transactions"`
	Amount               int64              `json:"amount"`
	Confidence           int                `json:"confidence"`
	AutoFixable          bool               `json:"auto_fixable"`
	FixAction            *FixAction         `json:"fix_action,omitempty"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
