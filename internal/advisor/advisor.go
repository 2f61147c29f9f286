// Package advisor explains what is left over after matching.
//
// Suggestions are rule based and independent, so one statement line can
// collect more than one. The advisor never touches the session: callers
// decide whether to post a FixAction to the ledger.
package advisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/patterns"
	"reconciliation-engine/internal/storage"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// FixCreateJournalEntry is the only fix action type the advisor emits
const FixCreateJournalEntry = "create_journal_entry"

const (
	confidenceBankFee     = 85
	confidenceInterest    = 90
	confidenceDuplicate   = 60
	confidenceOutstanding = 70

	outstandingMinDays = 45
	outstandingMaxDays = 180
)

var (
	feeKeywords      = []string{"fee", "charge", "service"}
	interestKeywords = []string{"interest", "dividend"}
)

// Advisor produces discrepancy suggestions
type Advisor struct {
	ledger storage.LedgerStore
	logger logger.Logger
	now    func() time.Time
}

// NewAdvisor creates an advisor. With a nil ledger the outstanding check
// rule is skipped since book transaction ages cannot be looked up.
func NewAdvisor(ledger storage.LedgerStore) *Advisor {
	return &Advisor{
		ledger: ledger,
		logger: logger.GetGlobalLogger().WithComponent("discrepancy_advisor"),
		now:    time.Now,
	}
}

// WithClock overrides the time source used to age book transactions
func (a *Advisor) WithClock(now func() time.Time) *Advisor {
	a.now = now
	return a
}

// SuggestDiscrepancyResolutions classifies leftover statement lines and book
// transactions. discrepancy is reported in the log only; every suggestion
// carries its own amount.
func (a *Advisor) SuggestDiscrepancyResolutions(
	ctx context.Context,
	companyID, accountID string,
	unmatched []models.StatementTransaction,
	unmatchedBookIDs []string,
	discrepancy int64,
) ([]models.DiscrepancySuggestion, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "company_id", companyID, nil)
	}
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "account_id", accountID, nil)
	}

	suggestions := make([]models.DiscrepancySuggestion, 0)
	for i := range unmatched {
		suggestions = append(suggestions, classifyLine(&unmatched[i], accountID)...)
	}
	suggestions = append(suggestions, findDuplicates(unmatched)...)

	outstanding, err := a.outstandingChecks(ctx, companyID, accountID, unmatchedBookIDs)
	if err != nil {
		return nil, err
	}
	suggestions = append(suggestions, outstanding...)

	a.logger.WithFields(logger.Fields{
		"company_id":  companyID,
		"account_id":  accountID,
		"unmatched":   len(unmatched),
		"book":        len(unmatchedBookIDs),
		"discrepancy": discrepancy,
		"suggestions": len(suggestions),
	}).Debug("Analyzed discrepancy")

	return suggestions, nil
}

func classifyLine(tx *models.StatementTransaction, accountID string) []models.DiscrepancySuggestion {
	var out []models.DiscrepancySuggestion
	words := wordSet(tx.Description)

	if hasKeyword(words, feeKeywords) {
		out = append(out, models.DiscrepancySuggestion{
			Pattern:              models.PatternBankFee,
			Description:          fmt.Sprintf("%q looks like a bank fee that is not in the books", tx.Description),
			SuggestedAction:      "Record the fee as a bank charges expense",
			AffectedTransactions: []string{tx.ID},
			Amount:               tx.Amount,
			Confidence:           confidenceBankFee,
			AutoFixable:          true,
			FixAction:            fixAction(tx, accountID, "bank_fees"),
		})
	}

	if hasKeyword(words, interestKeywords) {
		out = append(out, models.DiscrepancySuggestion{
			Pattern:              models.PatternInterest,
			Description:          fmt.Sprintf("%q looks like interest that is not in the books", tx.Description),
			SuggestedAction:      "Record the interest as income",
			AffectedTransactions: []string{tx.ID},
			Amount:               tx.Amount,
			Confidence:           confidenceInterest,
			AutoFixable:          true,
			FixAction:            fixAction(tx, accountID, "interest_income"),
		})
	}

	return out
}

func fixAction(tx *models.StatementTransaction, accountID, counterHint string) *models.FixAction {
	return &models.FixAction{
		Type:               FixCreateJournalEntry,
		AccountID:          accountID,
		Amount:             tx.Amount,
		Memo:               tx.Description,
		CounterAccountHint: counterHint,
	}
}

// findDuplicates flags every group of unmatched lines that share an absolute
// amount. Groups are ordered by the position of their first line.
func findDuplicates(unmatched []models.StatementTransaction) []models.DiscrepancySuggestion {
	groups := make(map[int64][]int)
	var order []int64
	for i := range unmatched {
		amount := unmatched[i].AbsAmount()
		if amount == 0 {
			continue
		}
		if _, ok := groups[amount]; !ok {
			order = append(order, amount)
		}
		groups[amount] = append(groups[amount], i)
	}

	var out []models.DiscrepancySuggestion
	for _, amount := range order {
		idx := groups[amount]
		if len(idx) < 2 {
			continue
		}
		ids := make([]string, len(idx))
		for j, i := range idx {
			ids[j] = unmatched[i].ID
		}
		out = append(out, models.DiscrepancySuggestion{
			Pattern:              models.PatternDuplicate,
			Description:          fmt.Sprintf("%d statement lines share the amount %s", len(ids), models.FormatMinorUnits(amount)),
			SuggestedAction:      "Check whether the bank posted the same transaction more than once",
			AffectedTransactions: ids,
			Amount:               amount,
			Confidence:           confidenceDuplicate,
		})
	}
	return out
}

// outstandingChecks flags book transactions old enough to be uncleared
// checks but not so old they are likely errors.
func (a *Advisor) outstandingChecks(ctx context.Context, companyID, accountID string, ids []string) ([]models.DiscrepancySuggestion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if a.ledger == nil {
		a.logger.Debug("No ledger configured, skipping outstanding check analysis")
		return nil, nil
	}

	entries, err := a.ledger.QueryTransactions(ctx, storage.TransactionFilter{
		CompanyID: companyID,
		AccountID: accountID,
		IDs:       ids,
	})
	if err != nil {
		return nil, errors.InternalError(errors.CodeStorageFailure, "query book transactions", err).
			WithContext("account_id", accountID)
	}

	byID := make(map[string]*models.JournalEntry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}

	today := models.DateOnly(a.now())
	var out []models.DiscrepancySuggestion
	var missing []string
	for _, id := range ids {
		entry, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if models.DateOnly(entry.Date).After(today) {
			continue
		}
		age := models.DaysBetween(models.DateOnly(entry.Date), today)
		if age < outstandingMinDays || age > outstandingMaxDays {
			continue
		}
		out = append(out, models.DiscrepancySuggestion{
			Pattern:              models.PatternOutstandingCheck,
			Description:          fmt.Sprintf("Book transaction from %s has not cleared the bank after %d days", entry.Date.Format("2006-01-02"), age),
			SuggestedAction:      "Confirm with the payee whether the check was received, or void and reissue it",
			AffectedTransactions: []string{entry.ID},
			Amount:               entry.NetAmount(accountID),
			Confidence:           confidenceOutstanding,
		})
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		a.logger.WithFields(logger.Fields{
			"account_id": accountID,
			"missing":    strings.Join(missing, ","),
		}).Warn("Ignoring unknown book transactions")
	}
	return out, nil
}

// wordSet returns the normalized words of a description
func wordSet(description string) map[string]bool {
	words := strings.Fields(patterns.NormalizeText(description))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// hasKeyword matches whole words and their plural, so "fees" matches but
// "coffee" does not.
func hasKeyword(words map[string]bool, keywords []string) bool {
	for _, k := range keywords {
		if words[k] || words[k+"s"] {
			return true
		}
	}
	return false
}
