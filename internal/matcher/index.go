package matcher

import (
	"sort"
	"time"

	"reconciliation-engine/internal/models"
)

// indexedTransaction is a system transaction reduced to what matching needs
type indexedTransaction struct {
	pos    int
	entry  *models.JournalEntry
	amount int64
	date   time.Time
}

// TransactionIndex provides fast candidate lookup for system transactions.
// Entries are sorted by their net amount on one account, so an amount
// window is two binary searches instead of a scan.
type TransactionIndex struct {
	accountID string
	byAmount  []*indexedTransaction
	byID      map[string]*indexedTransaction
}

// NewTransactionIndex builds an index over the entries that post a non-zero
// amount to accountID. Entries that net to zero on the account are skipped.
func NewTransactionIndex(entries []models.JournalEntry, accountID string) *TransactionIndex {
	idx := &TransactionIndex{
		accountID: accountID,
		byAmount:  make([]*indexedTransaction, 0, len(entries)),
		byID:      make(map[string]*indexedTransaction, len(entries)),
	}

	for i := range entries {
		entry := &entries[i]
		amount := entry.NetAmount(accountID)
		if amount == 0 {
			continue
		}
		it := &indexedTransaction{
			pos:    i,
			entry:  entry,
			amount: amount,
			date:   models.DateOnly(entry.Date),
		}
		idx.byAmount = append(idx.byAmount, it)
		idx.byID[entry.ID] = it
	}

	sort.SliceStable(idx.byAmount, func(i, j int) bool {
		return idx.byAmount[i].amount < idx.byAmount[j].amount
	})

	return idx
}

// Size returns the number of indexed transactions
func (idx *TransactionIndex) Size() int {
	return len(idx.byAmount)
}

// Get returns the indexed transaction for an id
func (idx *TransactionIndex) Get(id string) (*indexedTransaction, bool) {
	it, ok := idx.byID[id]
	return it, ok
}

// FindCandidates returns entries whose amount lies in [amount-tol, amount+tol]
// and whose date is within dateTolerance days of date, in amount order.
func (idx *TransactionIndex) FindCandidates(amount, tol int64, date time.Time, dateTolerance int) []*indexedTransaction {
	lo := sort.Search(len(idx.byAmount), func(i int) bool {
		return idx.byAmount[i].amount >= amount-tol
	})
	hi := sort.Search(len(idx.byAmount), func(i int) bool {
		return idx.byAmount[i].amount > amount+tol
	})

	day := models.DateOnly(date)
	var out []*indexedTransaction
	for _, it := range idx.byAmount[lo:hi] {
		if models.DaysBetween(day, it.date) <= dateTolerance {
			out = append(out, it)
		}
	}
	return out
}

// InDateWindow returns entries within dateTolerance days of date whose
// amount has the same sign as sign. Used to build split-search pools.
func (idx *TransactionIndex) InDateWindow(date time.Time, dateTolerance int, sign int64) []*indexedTransaction {
	day := models.DateOnly(date)
	var out []*indexedTransaction
	for _, it := range idx.byAmount {
		if (it.amount > 0) != (sign > 0) {
			continue
		}
		if models.DaysBetween(day, it.date) <= dateTolerance {
			out = append(out, it)
		}
	}
	return out
}
