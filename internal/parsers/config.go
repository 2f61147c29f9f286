package parsers

import (
	"strings"

	"reconciliation-engine/internal/models"
)

// Standard column names understood by the statement parser
const (
	ColumnID          = "id"
	ColumnDate        = "date"
	ColumnDescription = "description"
	ColumnAmount      = "amount"
	ColumnDebit       = "debit"
	ColumnCredit      = "credit"
	ColumnBalance     = "balance"
)

// ColumnAliases maps a standard column to the header spellings banks use for it
type ColumnAliases map[string][]string

// DefaultStatementAliases covers the exports of most retail and business banks
func DefaultStatementAliases() ColumnAliases {
	return ColumnAliases{
		ColumnID:          {"id", "transaction id", "reference", "ref", "fitid", "transaction reference"},
		ColumnDate:        {"date", "transaction date", "posted", "posting date", "posted date", "value date", "booking date"},
		ColumnDescription: {"description", "memo", "details", "narrative", "payee", "transaction description", "name"},
		ColumnAmount:      {"amount", "value", "amt", "transaction amount"},
		ColumnDebit:       {"debit", "withdrawal", "withdrawals", "money out", "paid out"},
		ColumnCredit:      {"credit", "deposit", "deposits", "money in", "paid in"},
		ColumnBalance:     {"balance", "running balance", "ledger balance"},
	}
}

// StatementColumns holds resolved column positions, -1 when absent
type StatementColumns struct {
	ID          int
	Date        int
	Description int
	Amount      int
	Debit       int
	Credit      int
	Balance     int
}

// HasAmount reports whether a signed amount can be produced from the columns
func (sc StatementColumns) HasAmount() bool {
	return sc.Amount >= 0 || (sc.Debit >= 0 && sc.Credit >= 0)
}

// Missing lists the required columns that were not resolved
func (sc StatementColumns) Missing() []string {
	var missing []string
	if sc.Date < 0 {
		missing = append(missing, "Date")
	}
	if sc.Description < 0 {
		missing = append(missing, "Description")
	}
	if !sc.HasAmount() {
		missing = append(missing, "Amount")
	}
	return missing
}

// ResolveStatementColumns maps header names onto standard columns
func ResolveStatementColumns(parseCtx *ParseContext, aliases ColumnAliases) StatementColumns {
	find := func(column string) int {
		for _, alias := range aliases[column] {
			if idx := parseCtx.GetColumnIndex(alias); idx >= 0 {
				return idx
			}
		}
		return -1
	}

	return StatementColumns{
		ID:          find(ColumnID),
		Date:        find(ColumnDate),
		Description: find(ColumnDescription),
		Amount:      find(ColumnAmount),
		Debit:       find(ColumnDebit),
		Credit:      find(ColumnCredit),
		Balance:     find(ColumnBalance),
	}
}

// InferStatementColumns guesses positions from a data row when the file has
// no recognizable header: the first date-like field is the date, the last
// amount-like field is the amount, and the longest remaining text is the description.
func InferStatementColumns(record []string) (StatementColumns, bool) {
	cols := StatementColumns{ID: -1, Date: -1, Description: -1, Amount: -1, Debit: -1, Credit: -1, Balance: -1}

	for i, field := range record {
		field = strings.TrimSpace(field)
		if cols.Date < 0 {
			if _, err := models.ParseTimeWithFormats(field); err == nil {
				cols.Date = i
				continue
			}
		}
		if _, err := models.ParseMinorUnits(field); err == nil && field != "" {
			cols.Amount = i
		}
	}

	longest := -1
	for i, field := range record {
		if i == cols.Date || i == cols.Amount {
			continue
		}
		if len(strings.TrimSpace(field)) > longest {
			longest = len(strings.TrimSpace(field))
			cols.Description = i
		}
	}

	return cols, len(cols.Missing()) == 0
}

// LedgerColumns holds resolved column positions for journal line exports
type LedgerColumns struct {
	EntryID   int
	Date      int
	Memo      int
	AccountID int
	Debit     int
	Credit    int
	Status    int
}

// DefaultLedgerAliases covers the journal export header spellings
func DefaultLedgerAliases() ColumnAliases {
	return ColumnAliases{
		"entry_id":   {"entry id", "journal id", "transaction id", "id"},
		"date":       {"date", "entry date", "transaction date"},
		"memo":       {"memo", "description", "narration"},
		"account_id": {"account id", "account"},
		"debit":      {"debit", "dr"},
		"credit":     {"credit", "cr"},
		"status":     {"status", "state"},
	}
}

// ResolveLedgerColumns maps header names onto ledger columns
func ResolveLedgerColumns(parseCtx *ParseContext, aliases ColumnAliases) LedgerColumns {
	find := func(column string) int {
		for _, alias := range aliases[column] {
			if idx := parseCtx.GetColumnIndex(alias); idx >= 0 {
				return idx
			}
		}
		return -1
	}
	return LedgerColumns{
		EntryID:   find("entry_id"),
		Date:      find("date"),
		Memo:      find("memo"),
		AccountID: find("account_id"),
		Debit:     find("debit"),
		Credit:    find("credit"),
		Status:    find("status"),
	}
}

// Missing lists the required ledger columns that were not resolved
func (lc LedgerColumns) Missing() []string {
	var missing []string
	if lc.EntryID < 0 {
		missing = append(missing, "entry_id")
	}
	if lc.Date < 0 {
		missing = append(missing, "date")
	}
	if lc.AccountID < 0 {
		missing = append(missing, "account_id")
	}
	if lc.Debit < 0 {
		missing = append(missing, "debit")
	}
	if lc.Credit < 0 {
		missing = append(missing, "credit")
	}
	return missing
}
