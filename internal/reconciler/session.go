package reconciler

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/pkg/errors"
)

// BalancedTolerance is the largest discrepancy, in minor units, that still
// counts as balanced.
const BalancedTolerance = 100

// CreateParams seeds a new reconciliation session
type CreateParams struct {
	CompanyID             string
	AccountID             string
	Statement             models.ParsedStatement
	IsFirstReconciliation bool
}

// Summary is derived from a session without consulting the ledger
type Summary struct {
	Status                     models.SessionStatus `json:"status"`
	TotalStatementTransactions int                  `json:"totalStatementTransactions"`
	MatchedCount               int                  `json:"matchedCount"`
	UnmatchedStatementCount    int                  `json:"unmatchedStatementCount"`
	MatchedSystemCount         int                  `json:"matchedSystemCount"`
	MatchRate                  int                  `json:"matchRate"`
	MatchedAmount              int64                `json:"matchedAmount"`
	UnmatchedAmount            int64                `json:"unmatchedAmount"`
	Discrepancy                int64                `json:"discrepancy"`
	IsBalanced                 bool                 `json:"isBalanced"`
}

// The functions below are pure: each takes a session and returns a new one,
// leaving the input untouched. Edits are only accepted while a session is a
// DRAFT.

// CreateReconciliation starts a DRAFT session with every statement line unmatched
func CreateReconciliation(params CreateParams, now time.Time) (*models.ReconciliationSession, error) {
	if strings.TrimSpace(params.CompanyID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "company_id", params.CompanyID, nil)
	}
	if strings.TrimSpace(params.AccountID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "account_id", params.AccountID, nil)
	}

	statement := params.Statement.Clone()
	seen := make(map[string]bool, len(statement.Transactions))
	for i := range statement.Transactions {
		tx := &statement.Transactions[i]
		if tx.ID == "" {
			return nil, errors.ValidationError(errors.CodeMissingField, "statement transaction id", i, nil)
		}
		if seen[tx.ID] {
			return nil, errors.ValidationError(errors.CodeInvalidValue, "statement transaction id", tx.ID, nil).
				WithSuggestion("statement transaction ids must be unique")
		}
		seen[tx.ID] = true
		tx.Matched = false
		tx.MatchedTransactionID = ""
		tx.MatchedTransactionIDs = nil
	}

	session := &models.ReconciliationSession{
		ID:                    uuid.NewString(),
		CompanyID:             params.CompanyID,
		AccountID:             params.AccountID,
		Status:                models.StatusDraft,
		OpeningBalance:        statement.OpeningBalance,
		ClosingBalance:        statement.ClosingBalance,
		Statement:             statement,
		MatchedTransactions:   []string{},
		IsFirstReconciliation: params.IsFirstReconciliation,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	syncUnmatched(session)
	return session, nil
}

// ApplyMatches marks each statement line in matches as matched to its system
// transaction. Re-applying a pairing that is already in place is a no-op.
func ApplyMatches(session *models.ReconciliationSession, matches []models.TransactionMatch) (*models.ReconciliationSession, error) {
	out := session.Clone()
	if len(matches) == 0 {
		return out, nil
	}
	if err := requireDraft(out, "change matches on"); err != nil {
		return nil, err
	}

	for _, m := range matches {
		if err := matchOne(out, m.StatementTransactionID, []string{m.SystemTransactionID}); err != nil {
			return nil, err
		}
	}
	syncUnmatched(out)
	return out, nil
}

// ApplyMultiMatches applies split and combined groups. Every statement line
// in a group is matched to every system transaction in it.
func ApplyMultiMatches(session *models.ReconciliationSession, matches []models.MultiTransactionMatch) (*models.ReconciliationSession, error) {
	out := session.Clone()
	if len(matches) == 0 {
		return out, nil
	}
	if err := requireDraft(out, "change matches on"); err != nil {
		return nil, err
	}

	for _, m := range matches {
		if len(m.SystemTransactionIDs) == 0 {
			return nil, errors.ValidationError(errors.CodeMissingField, "system_transaction_ids", m.MatchType, nil)
		}
		for _, stmtID := range m.StatementTransactionIDs {
			if err := matchOne(out, stmtID, m.SystemTransactionIDs); err != nil {
				return nil, err
			}
		}
	}
	syncUnmatched(out)
	return out, nil
}

// AddManualMatch pairs one statement line with one system transaction on
// the user's say-so.
func AddManualMatch(session *models.ReconciliationSession, statementTxID, systemTxID string) (*models.ReconciliationSession, error) {
	if strings.TrimSpace(systemTxID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "system_transaction_id", systemTxID, nil)
	}
	if err := requireDraft(session, "change matches on"); err != nil {
		return nil, err
	}

	idx := session.Statement.IndexOf(statementTxID)
	if idx < 0 {
		return nil, errors.NotFoundError("statement transaction", statementTxID)
	}
	if session.Statement.Transactions[idx].Matched {
		return nil, errors.ConstraintError(errors.CodeAlreadyMatched, "This transaction is already matched").
			WithContext("statement_transaction_id", statementTxID).
			WithSuggestion("remove the existing match before matching it again")
	}

	out := session.Clone()
	if err := matchOne(out, statementTxID, []string{systemTxID}); err != nil {
		return nil, err
	}
	syncUnmatched(out)
	return out, nil
}

// RemoveMatch returns a matched statement line to the unmatched set. Its
// system transactions leave matched_transactions unless another line still
// references them.
func RemoveMatch(session *models.ReconciliationSession, statementTxID string) (*models.ReconciliationSession, error) {
	if err := requireDraft(session, "change matches on"); err != nil {
		return nil, err
	}

	idx := session.Statement.IndexOf(statementTxID)
	if idx < 0 {
		return nil, errors.NotFoundError("statement transaction", statementTxID)
	}
	if !session.Statement.Transactions[idx].Matched {
		return nil, errors.ConstraintError(errors.CodeNotMatched, "This transaction is not matched").
			WithContext("statement_transaction_id", statementTxID)
	}

	out := session.Clone()
	tx := &out.Statement.Transactions[idx]
	released := tx.SystemIDs()
	tx.Matched = false
	tx.MatchedTransactionID = ""
	tx.MatchedTransactionIDs = nil

	stillUsed := make(map[string]bool)
	for i := range out.Statement.Transactions {
		if out.Statement.Transactions[i].Matched {
			for _, id := range out.Statement.Transactions[i].SystemIDs() {
				stillUsed[id] = true
			}
		}
	}
	drop := make(map[string]bool, len(released))
	for _, id := range released {
		if !stillUsed[id] {
			drop[id] = true
		}
	}

	kept := make([]string, 0, len(out.MatchedTransactions))
	for _, id := range out.MatchedTransactions {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	out.MatchedTransactions = kept
	syncUnmatched(out)
	return out, nil
}

// CalculateDiscrepancy returns (closing - opening) minus the net amount on
// accountID of every matched system transaction. Matched ids missing from
// system contribute nothing.
func CalculateDiscrepancy(session *models.ReconciliationSession, system []models.JournalEntry, accountID string) int64 {
	matched := make(map[string]bool, len(session.MatchedTransactions))
	for _, id := range session.MatchedTransactions {
		matched[id] = true
	}

	var booked int64
	for i := range system {
		if matched[system[i].ID] {
			booked += system[i].NetAmount(accountID)
			delete(matched, system[i].ID)
		}
	}

	return (session.ClosingBalance - session.OpeningBalance) - booked
}

// WithDiscrepancy returns a copy of the session with its stored discrepancy
// recomputed against system.
func WithDiscrepancy(session *models.ReconciliationSession, system []models.JournalEntry, accountID string) *models.ReconciliationSession {
	out := session.Clone()
	out.Discrepancy = CalculateDiscrepancy(session, system, accountID)
	return out
}

// GetReconciliationSummary derives counts and balance state from the
// session and its stored discrepancy.
func GetReconciliationSummary(session *models.ReconciliationSession) Summary {
	summary := Summary{
		Status:                     session.Status,
		TotalStatementTransactions: len(session.Statement.Transactions),
		MatchedSystemCount:         len(session.MatchedTransactions),
		Discrepancy:                session.Discrepancy,
		IsBalanced:                 models.AbsInt64(session.Discrepancy) < BalancedTolerance,
	}

	for i := range session.Statement.Transactions {
		tx := &session.Statement.Transactions[i]
		if tx.Matched {
			summary.MatchedCount++
			summary.MatchedAmount += tx.Amount
		} else {
			summary.UnmatchedStatementCount++
			summary.UnmatchedAmount += tx.Amount
		}
	}

	if summary.TotalStatementTransactions > 0 {
		summary.MatchRate = int(math.Round(float64(summary.MatchedCount) * 100 / float64(summary.TotalStatementTransactions)))
	}
	return summary
}

// CompleteReconciliation closes a DRAFT session
func CompleteReconciliation(session *models.ReconciliationSession, notes string, now time.Time) (*models.ReconciliationSession, error) {
	if session.Status != models.StatusDraft {
		return nil, invalidTransition(session.Status, models.StatusCompleted).
			WithSuggestion("only draft reconciliations can be completed")
	}

	out := session.Clone()
	out.Status = models.StatusCompleted
	out.Notes = notes
	completed := now
	out.CompletedAt = &completed
	out.UpdatedAt = now
	return out, nil
}

// ReopenReconciliation moves a COMPLETED session to REOPENED. A reason is required.
func ReopenReconciliation(session *models.ReconciliationSession, reason, userID string, now time.Time) (*models.ReconciliationSession, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "reason", reason, nil).
			WithSuggestion("explain why the reconciliation is being reopened")
	}
	if session.Status != models.StatusCompleted {
		return nil, invalidTransition(session.Status, models.StatusReopened).
			WithSuggestion("only completed reconciliations can be reopened")
	}

	out := session.Clone()
	out.Status = models.StatusReopened
	reopened := now
	out.ReopenedAt = &reopened
	out.ReopenedBy = userID
	out.ReopenedReason = strings.TrimSpace(reason)
	out.UpdatedAt = now
	return out, nil
}

func matchOne(session *models.ReconciliationSession, statementTxID string, systemIDs []string) error {
	idx := session.Statement.IndexOf(statementTxID)
	if idx < 0 {
		return errors.NotFoundError("statement transaction", statementTxID)
	}
	tx := &session.Statement.Transactions[idx]

	if tx.Matched {
		if sameIDs(tx.SystemIDs(), systemIDs) {
			return nil
		}
		return errors.ConstraintError(errors.CodeAlreadyMatched, "This transaction is already matched").
			WithContext("statement_transaction_id", statementTxID)
	}

	tx.Matched = true
	tx.MatchedTransactionID = systemIDs[0]
	if len(systemIDs) > 1 {
		tx.MatchedTransactionIDs = append([]string(nil), systemIDs...)
	}

	for _, id := range systemIDs {
		if !containsID(session.MatchedTransactions, id) {
			session.MatchedTransactions = append(session.MatchedTransactions, id)
		}
	}
	return nil
}

// syncUnmatched rebuilds unmatched_statement_items from the statement lines,
// which keeps the matched and unmatched sets a partition.
func syncUnmatched(session *models.ReconciliationSession) {
	unmatched := make([]string, 0, len(session.Statement.Transactions))
	for i := range session.Statement.Transactions {
		if !session.Statement.Transactions[i].Matched {
			unmatched = append(unmatched, session.Statement.Transactions[i].ID)
		}
	}
	session.UnmatchedStatementItems = unmatched
}

func requireDraft(session *models.ReconciliationSession, action string) *errors.ReconcilerError {
	if session.Status == models.StatusDraft {
		return nil
	}
	return errors.ConstraintError(errors.CodeInvalidTransition, "Cannot "+action+" a "+strings.ToLower(string(session.Status))+" reconciliation").
		WithContext("session_id", session.ID).
		WithContext("status", session.Status)
}

func invalidTransition(from, to models.SessionStatus) *errors.ReconcilerError {
	return errors.ConstraintError(errors.CodeInvalidTransition, "Cannot move reconciliation from "+string(from)+" to "+string(to)).
		WithContext("from", from).
		WithContext("to", to)
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsID(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
