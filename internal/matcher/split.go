package matcher

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/pkg/errors"
)

// splitSearch finds N:1 and 1:N groupings among what single matching left.
// The search is a bounded subset-sum: members are drawn from a pool of at
// most MaxSplitCandidates items nearest by date, and groups hold at most
// MaxSplitSize members.
type splitSearch struct {
	config    *MatchingConfig
	index     *TransactionIndex
	statement []models.StatementTransaction
	usedStmt  []bool
	usedSys   map[string]bool
	tol       int64
}

// member is a split candidate reduced to amount and date
type member struct {
	key    int
	amount int64
	date   time.Time
}

func newSplitSearch(config *MatchingConfig, index *TransactionIndex, statement []models.StatementTransaction, usedStmt []bool, usedSys map[string]bool) *splitSearch {
	return &splitSearch{
		config:    config,
		index:     index,
		statement: statement,
		usedStmt:  usedStmt,
		usedSys:   usedSys,
		tol:       config.amountToleranceMinor(),
	}
}

func (s *splitSearch) run(ctx context.Context) ([]models.MultiTransactionMatch, error) {
	var out []models.MultiTransactionMatch

	split, err := s.splitSystem(ctx)
	if err != nil {
		return nil, err
	}
	out = append(out, split...)

	combined, err := s.combineStatement(ctx)
	if err != nil {
		return nil, err
	}
	return append(out, combined...), nil
}

// splitSystem matches one statement line to several system transactions
func (s *splitSearch) splitSystem(ctx context.Context) ([]models.MultiTransactionMatch, error) {
	var out []models.MultiTransactionMatch
	var lastDay time.Time

	for _, pos := range dateOrder(s.statement) {
		if s.usedStmt[pos] {
			continue
		}
		stmt := &s.statement[pos]
		day := models.DateOnly(stmt.Date)
		if !day.Equal(lastDay) {
			if err := ctx.Err(); err != nil {
				return nil, errors.InternalError(errors.CodeCancelled, "split search", err)
			}
			lastDay = day
		}

		var pool []member
		var entries []*indexedTransaction
		for _, it := range s.index.InDateWindow(stmt.Date, s.config.DateToleranceDays, stmt.Amount) {
			if s.usedSys[it.entry.ID] {
				continue
			}
			pool = append(pool, member{key: len(entries), amount: it.amount, date: it.date})
			entries = append(entries, it)
		}

		picked, diff, spread := s.bestSubset(pool, day, stmt.Amount)
		if picked == nil {
			continue
		}

		ids := make([]string, len(picked))
		for i, m := range picked {
			ids[i] = entries[m.key].entry.ID
			s.usedSys[ids[i]] = true
		}
		s.usedStmt[pos] = true

		matchType := models.MatchSplitDeposit
		if stmt.Amount < 0 {
			matchType = models.MatchSplitPayment
		}
		out = append(out, models.MultiTransactionMatch{
			MatchType:               matchType,
			SystemTransactionIDs:    ids,
			StatementTransactionIDs: []string{stmt.ID},
			Score:                   s.score(diff, spread),
			Reasons:                 groupReasons(len(ids), "system transactions", diff, spread),
		})
	}

	return out, nil
}

// combineStatement matches several statement lines to one system transaction
func (s *splitSearch) combineStatement(ctx context.Context) ([]models.MultiTransactionMatch, error) {
	var out []models.MultiTransactionMatch

	for _, it := range s.index.byAmount {
		if err := ctx.Err(); err != nil {
			return nil, errors.InternalError(errors.CodeCancelled, "split search", err)
		}
		if s.usedSys[it.entry.ID] {
			continue
		}

		var pool []member
		for pos := range s.statement {
			stmt := &s.statement[pos]
			if s.usedStmt[pos] || (stmt.Amount > 0) != (it.amount > 0) {
				continue
			}
			if models.DaysBetween(stmt.Date, it.date) > s.config.DateToleranceDays {
				continue
			}
			pool = append(pool, member{key: pos, amount: stmt.Amount, date: models.DateOnly(stmt.Date)})
		}

		picked, diff, spread := s.bestSubset(pool, it.date, it.amount)
		if picked == nil {
			continue
		}

		ids := make([]string, len(picked))
		for i, m := range picked {
			ids[i] = s.statement[m.key].ID
			s.usedStmt[m.key] = true
		}
		s.usedSys[it.entry.ID] = true

		matchType := models.MatchCombinedDeposit
		if it.amount < 0 {
			matchType = models.MatchCombinedPayment
		}
		out = append(out, models.MultiTransactionMatch{
			MatchType:               matchType,
			SystemTransactionIDs:    []string{it.entry.ID},
			StatementTransactionIDs: ids,
			Score:                   s.score(diff, spread),
			Reasons:                 groupReasons(len(ids), "statement lines", diff, spread),
		})
	}

	return out, nil
}

// bestSubset returns the smallest group of pool members whose amounts sum
// to target within tolerance. Among groups of that size the one with the
// smallest date spread from anchor wins; remaining ties go to pool order.
func (s *splitSearch) bestSubset(pool []member, anchor time.Time, target int64) ([]member, int64, int) {
	if len(pool) < 2 {
		return nil, 0, 0
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return models.DaysBetween(pool[i].date, anchor) < models.DaysBetween(pool[j].date, anchor)
	})
	if len(pool) > s.config.MaxSplitCandidates {
		pool = pool[:s.config.MaxSplitCandidates]
	}

	maxSize := s.config.MaxSplitSize
	if maxSize > len(pool) {
		maxSize = len(pool)
	}

	for size := 2; size <= maxSize; size++ {
		var best []member
		var bestDiff int64
		bestSpread := math.MaxInt

		combinations(len(pool), size, func(picks []int) {
			var sum int64
			spread := 0
			for _, p := range picks {
				sum += pool[p].amount
				if d := models.DaysBetween(pool[p].date, anchor); d > spread {
					spread = d
				}
			}
			diff := models.AbsInt64(sum - target)
			if diff > s.tol || spread >= bestSpread {
				return
			}
			best = best[:0]
			for _, p := range picks {
				best = append(best, pool[p])
			}
			bestDiff = diff
			bestSpread = spread
		})

		if best != nil {
			return best, bestDiff, bestSpread
		}
	}

	return nil, 0, 0
}

// score rates a group on amount and date closeness only. Groups never reach
// the EXACT tier.
func (s *splitSearch) score(diff int64, spread int) float64 {
	w := s.config.Weights
	amount := closeness(float64(diff), float64(s.tol))
	date := closeness(float64(spread), float64(s.config.DateToleranceDays+1))
	score := (w.Amount*amount + w.Date*date) / (w.Amount + w.Date) * 100
	return round2(math.Min(score, nonExactCap))
}

func groupReasons(n int, what string, diff int64, spread int) []string {
	reasons := []string{fmt.Sprintf("Sum of %d %s", n, what)}
	if diff == 0 {
		reasons = append(reasons, "Exact amount match")
	} else {
		reasons = append(reasons, fmt.Sprintf("Amount within tolerance (difference %s)", models.FormatMinorUnits(diff)))
	}
	if spread == 0 {
		reasons = append(reasons, "Same date")
	} else {
		reasons = append(reasons, fmt.Sprintf("Dates within %d days", spread))
	}
	return reasons
}

// combinations calls fn with every k-subset of [0, n) in lexicographic order.
// fn must not retain the slice.
func combinations(n, k int, fn func([]int)) {
	if k > n || k <= 0 {
		return
	}
	picks := make([]int, k)
	for i := range picks {
		picks[i] = i
	}
	for {
		fn(picks)

		i := k - 1
		for i >= 0 && picks[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		picks[i]++
		for j := i + 1; j < k; j++ {
			picks[j] = picks[j-1] + 1
		}
	}
}
