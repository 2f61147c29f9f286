// Package models holds the value types shared by the parser, matcher,
// session state machine and history service. Monetary amounts are int64
// minor units (cents) everywhere; decimals only appear at parse and
// display boundaries.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StatementTransaction is one line item from an externally supplied bank statement
type StatementTransaction struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Matched     bool      `json:"matched"`

	// MatchedTransactionID is the primary system transaction for a single match.
	MatchedTransactionID string `json:"matchedTransactionId,omitempty"`
	// MatchedTransactionIDs lists every system transaction for a split match.
	MatchedTransactionIDs []string `json:"matchedTransactionIds,omitempty"`
}

type statementTransactionJSON struct {
	ID                    string   `json:"id"`
	Date                  int64    `json:"date"`
	Description           string   `json:"description"`
	Amount                int64    `json:"amount"`
	Matched               bool     `json:"matched"`
	MatchedTransactionID  string   `json:"matchedTransactionId,omitempty"`
	MatchedTransactionIDs []string `json:"matchedTransactionIds,omitempty"`
}

// MarshalJSON writes the date as epoch milliseconds
func (st StatementTransaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(statementTransactionJSON{
		ID:                    st.ID,
		Date:                  st.Date.UnixMilli(),
		Description:           st.Description,
		Amount:                st.Amount,
		Matched:               st.Matched,
		MatchedTransactionID:  st.MatchedTransactionID,
		MatchedTransactionIDs: st.MatchedTransactionIDs,
	})
}

// UnmarshalJSON reads the epoch millisecond date form
func (st *StatementTransaction) UnmarshalJSON(data []byte) error {
	var raw statementTransactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal statement transaction: %w", err)
	}
	*st = StatementTransaction{
		ID:                    raw.ID,
		Date:                  time.UnixMilli(raw.Date).UTC(),
		Description:           raw.Description,
		Amount:                raw.Amount,
		Matched:               raw.Matched,
		MatchedTransactionID:  raw.MatchedTransactionID,
		MatchedTransactionIDs: raw.MatchedTransactionIDs,
	}
	return nil
}

// SystemIDs returns every system transaction id this line is matched to
func (st *StatementTransaction) SystemIDs() []string {
	if len(st.MatchedTransactionIDs) > 0 {
		return st.MatchedTransactionIDs
	}
	if st.MatchedTransactionID != "" {
		return []string{st.MatchedTransactionID}
	}
	return nil
}

// AbsAmount returns the unsigned amount in minor units
func (st *StatementTransaction) AbsAmount() int64 {
	return AbsInt64(st.Amount)
}

// StatementPeriod bounds a statement by date
type StatementPeriod struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// Contains reports whether t falls inside the period, inclusive of both end dates
func (p StatementPeriod) Contains(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(DateOnly(p.StartDate)) && !d.After(DateOnly(p.EndDate))
}

// ParsedStatement is the normalized output of the statement parser
type ParsedStatement struct {
	Period         StatementPeriod        `json:"statementPeriod"`
	OpeningBalance int64                  `json:"openingBalance"`
	ClosingBalance int64                  `json:"closingBalance"`
	Transactions   []StatementTransaction `json:"transactions"`
	Format         string                 `json:"format"`
}

// Clone returns a deep copy
func (ps ParsedStatement) Clone() ParsedStatement {
	out := ps
	out.Transactions = make([]StatementTransaction, len(ps.Transactions))
	for i, tx := range ps.Transactions {
		tx.MatchedTransactionIDs = cloneStrings(tx.MatchedTransactionIDs)
		out.Transactions[i] = tx
	}
	return out
}

// IndexOf returns the position of a statement transaction, or -1
func (ps *ParsedStatement) IndexOf(id string) int {
	for i := range ps.Transactions {
		if ps.Transactions[i].ID == id {
			return i
		}
	}
	return -1
}

// JournalStatus is the lifecycle of a ledger entry
type JournalStatus string

const (
	JournalStatusPending    JournalStatus = "PENDING"
	JournalStatusCleared    JournalStatus = "CLEARED"
	JournalStatusReconciled JournalStatus = "RECONCILED"
	JournalStatusVoided     JournalStatus = "VOIDED"
)

// JournalLine is one side of a double-entry posting
type JournalLine struct {
	AccountID string `json:"accountId"`
	Debit     int64  `json:"debit"`
	Credit    int64  `json:"credit"`
}

// JournalEntry is a system transaction owned by the ledger store
type JournalEntry struct {
	ID        string        `json:"id"`
	CompanyID string        `json:"companyId"`
	Date      time.Time     `json:"date"`
	Memo      string        `json:"memo"`
	Lines     []JournalLine `json:"lines"`
	Status    JournalStatus `json:"status"`
}

// NetAmount returns debits minus credits on the given account. For a bank
// (asset) account a deposit is positive, which lines up with statement signs.
func (je *JournalEntry) NetAmount(accountID string) int64 {
	var net int64
	for _, line := range je.Lines {
		if line.AccountID == accountID {
			net += line.Debit - line.Credit
		}
	}
	return net
}

// TouchesAccount reports whether any line posts to accountID
func (je *JournalEntry) TouchesAccount(accountID string) bool {
	for _, line := range je.Lines {
		if line.AccountID == accountID {
			return true
		}
	}
	return false
}

// Validate checks that the entry is balanced and identified
func (je *JournalEntry) Validate() error {
	if strings.TrimSpace(je.ID) == "" {
		return fmt.Errorf("journal entry ID cannot be empty")
	}
	if len(je.Lines) == 0 {
		return fmt.Errorf("journal entry %s has no lines", je.ID)
	}
	var debits, credits int64
	for _, line := range je.Lines {
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("journal entry %s has a negative line amount", je.ID)
		}
		debits += line.Debit
		credits += line.Credit
	}
	if debits != credits {
		return fmt.Errorf("journal entry %s is unbalanced: debits %d, credits %d", je.ID, debits, credits)
	}
	return nil
}

// AccountType classifies ledger accounts
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// Account is the read-only view of a chart-of-accounts entry
type Account struct {
	ID        string      `json:"id"`
	CompanyID string      `json:"companyId"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	Active    bool        `json:"active"`
}

// ParseMinorUnits converts a human decimal string such as "-1,234.50",
// "$12" or "(40.00)" to integer minor units.
func ParseMinorUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "").Replace(s)
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// FormatMinorUnits renders minor units as a two-place decimal string
func FormatMinorUnits(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

// ParseTimeWithFormats attempts to parse a date using the formats bank exports commonly use
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"01/02/2006",
		"1/2/2006",
		"01/02/06",
		"02/01/2006",
		"2006/01/02",
		"02-01-2006",
		"02-Jan-2006",
		"2 Jan 2006",
		"Jan 2, 2006",
		"January 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b
func DaysBetween(a, b time.Time) int {
	diff := DateOnly(a).Sub(DateOnly(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// AbsInt64 returns |v|
func AbsInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
