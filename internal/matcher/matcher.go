package matcher

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/patterns"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// nonExactCap keeps every non-exact pairing below the EXACT tier
const nonExactCap = 97.0

// progressThreshold is the statement size at which matching logs progress
const progressThreshold = 200

// MatchingEngine is the core engine responsible for transaction matching
type MatchingEngine struct {
	Config *MatchingConfig
	logger logger.Logger
}

// Result is the output of one matching run
type Result struct {
	Matches      []models.TransactionMatch      `json:"matches"`
	MultiMatches []models.MultiTransactionMatch `json:"multiMatches"`
	// Accuracy is the percentage of statement transactions resolved
	Accuracy   float64         `json:"accuracy"`
	Statistics MatchStatistics `json:"statistics"`
}

// MatchStatistics provides aggregate counts about a matching run
type MatchStatistics struct {
	StatementTransactions int           `json:"statement_transactions"`
	SystemTransactions    int           `json:"system_transactions"`
	ExactMatches          int           `json:"exact_matches"`
	HighMatches           int           `json:"high_matches"`
	MediumMatches         int           `json:"medium_matches"`
	LowMatches            int           `json:"low_matches"`
	MultiMatches          int           `json:"multi_matches"`
	Unresolved            int           `json:"unresolved"`
	PatternBoosted        int           `json:"pattern_boosted"`
	Duration              time.Duration `json:"duration"`
}

// candidatePair is one scored statement/system pairing awaiting resolution
type candidatePair struct {
	stmtPos int
	sys     *indexedTransaction
	score   float64
	reasons []string
	boosted bool
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config: config,
		logger: logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// Match pairs statement transactions with system transactions posted to
// accountID. It never mutates its inputs. Matching is greedy: the highest
// scoring pairing is accepted first and its members leave the candidate
// pool, which is fast but not globally optimal.
func (me *MatchingEngine) Match(ctx context.Context, statement []models.StatementTransaction, system []models.JournalEntry, accountID string) (*Result, error) {
	if err := me.Config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", me.Config.String(), err)
	}
	if accountID == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "account_id", accountID, nil)
	}

	start := time.Now()
	index := NewTransactionIndex(system, accountID)
	tol := me.Config.amountToleranceMinor()
	lookup := me.patternLookup()

	result := &Result{
		Matches:      []models.TransactionMatch{},
		MultiMatches: []models.MultiTransactionMatch{},
	}
	result.Statistics.StatementTransactions = len(statement)
	result.Statistics.SystemTransactions = index.Size()

	var progress *logger.ProgressTracker
	if len(statement) >= progressThreshold {
		progress = logger.NewProgressTracker(logger.ProgressConfig{
			Operation: "match statement",
			Total:     int64(len(statement)),
			Logger:    me.logger,
		})
	}

	var pairs []candidatePair
	var lastDay time.Time
	for _, pos := range dateOrder(statement) {
		stmt := &statement[pos]
		day := models.DateOnly(stmt.Date)
		if !day.Equal(lastDay) {
			if err := ctx.Err(); err != nil {
				return nil, errors.InternalError(errors.CodeCancelled, "match statement", err)
			}
			lastDay = day
		}

		for _, sys := range index.FindCandidates(stmt.Amount, tol, stmt.Date, me.Config.DateToleranceDays) {
			pair := me.scorePair(pos, stmt, sys, lookup)
			if pair.score >= me.Config.MinConfidenceScore {
				pairs = append(pairs, pair)
			}
		}

		if progress != nil {
			progress.Add(1)
		}
	}
	if progress != nil {
		progress.Complete()
	}

	usedStmt := make([]bool, len(statement))
	usedSys := make(map[string]bool)
	for _, pair := range resolveGreedy(pairs) {
		if usedStmt[pair.stmtPos] || usedSys[pair.sys.entry.ID] {
			continue
		}
		usedStmt[pair.stmtPos] = true
		usedSys[pair.sys.entry.ID] = true

		confidence := me.Config.Tier(pair.score)
		result.Matches = append(result.Matches, models.TransactionMatch{
			StatementTransactionID: statement[pair.stmtPos].ID,
			SystemTransactionID:    pair.sys.entry.ID,
			Confidence:             confidence,
			Score:                  round2(pair.score),
			Reasons:                pair.reasons,
		})
		me.countTier(&result.Statistics, confidence)
		if pair.boosted {
			result.Statistics.PatternBoosted++
		}
	}

	if me.Config.EnableMultiTransactionMatching {
		search := newSplitSearch(me.Config, index, statement, usedStmt, usedSys)
		multi, err := search.run(ctx)
		if err != nil {
			return nil, err
		}
		result.MultiMatches = append(result.MultiMatches, multi...)
		result.Statistics.MultiMatches = len(multi)
	}

	resolved := 0
	for _, used := range usedStmt {
		if used {
			resolved++
		}
	}
	result.Statistics.Unresolved = len(statement) - resolved
	result.Accuracy = accuracy(resolved, len(statement))
	result.Statistics.Duration = time.Since(start)

	me.logger.WithFields(logger.Fields{
		"account_id":    accountID,
		"statement":     len(statement),
		"system":        index.Size(),
		"matches":       len(result.Matches),
		"multi_matches": len(result.MultiMatches),
		"accuracy":      result.Accuracy,
		"duration":      result.Statistics.Duration.String(),
	}).Debug("Matching completed")

	return result, nil
}

// scorePair computes the score and reasons for one candidate pairing
func (me *MatchingEngine) scorePair(pos int, stmt *models.StatementTransaction, sys *indexedTransaction, lookup map[string]*models.ReconciliationPattern) candidatePair {
	cfg := me.Config
	var reasons []string

	amountDiff := models.AbsInt64(stmt.Amount - sys.amount)
	amountScore := closeness(float64(amountDiff), float64(cfg.amountToleranceMinor()))
	if amountDiff == 0 {
		reasons = append(reasons, "Exact amount match")
	} else {
		reasons = append(reasons, fmt.Sprintf("Amount within tolerance (difference %s)", models.FormatMinorUnits(amountDiff)))
	}

	days := models.DaysBetween(stmt.Date, sys.date)
	dateScore := closeness(float64(days), float64(cfg.DateToleranceDays+1))
	if days == 0 {
		reasons = append(reasons, "Same date")
	} else {
		reasons = append(reasons, fmt.Sprintf("Date within tolerance (%d days)", days))
	}

	similarity := DescriptionSimilarity(stmt.Description, sys.entry.Memo)
	descriptionMatch := similarity >= cfg.DescriptionSimilarityThreshold
	descriptionScore := cfg.Weights.Description * similarity / 100
	if descriptionMatch {
		descriptionScore = cfg.Weights.Description
		reasons = append(reasons, fmt.Sprintf("Description match (%.0f%% similar)", similarity))
	}

	score := cfg.Weights.Amount*amountScore + cfg.Weights.Date*dateScore + descriptionScore

	boost, reason := me.patternBoost(stmt, sys.entry, lookup)
	if boost > 0 {
		score += boost
		reasons = append(reasons, reason)
	}

	score = math.Min(score, 100)
	if !(amountDiff == 0 && days == 0 && descriptionMatch) {
		score = math.Min(score, nonExactCap)
	}

	return candidatePair{
		stmtPos: pos,
		sys:     sys,
		score:   score,
		reasons: reasons,
		boosted: boost > 0,
	}
}

// patternBoost returns the learned-pattern bonus for a pairing. The full
// boost needs the memo to match a learned n-gram or the vendor name; an
// amount inside the vendor's typical range earns half.
func (me *MatchingEngine) patternBoost(stmt *models.StatementTransaction, sys *models.JournalEntry, lookup map[string]*models.ReconciliationPattern) (float64, string) {
	if len(lookup) == 0 {
		return 0, ""
	}
	vendor, ok := patterns.ExtractVendor(stmt.Description)
	if !ok {
		return 0, ""
	}
	pattern, ok := lookup[vendor]
	if !ok {
		return 0, ""
	}

	full := me.Config.PatternBoostWeight * pattern.Confidence / 100
	if pattern.MatchesMemo(patterns.NormalizeText(sys.Memo)) || pattern.MatchesMemo(patterns.MemoNGram(sys.Memo)) {
		return full, fmt.Sprintf("Learned pattern for %s (%.0f%% confidence)", pattern.VendorName, pattern.Confidence)
	}
	if pattern.TypicalAmountRange.Contains(stmt.AbsAmount()) {
		return full / 2, fmt.Sprintf("Typical amount for %s", pattern.VendorName)
	}
	return 0, ""
}

// patternLookup indexes the configured patterns by vendor name
func (me *MatchingEngine) patternLookup() map[string]*models.ReconciliationPattern {
	if !me.Config.UsePatternLearning || len(me.Config.Patterns) == 0 {
		return nil
	}
	lookup := make(map[string]*models.ReconciliationPattern, len(me.Config.Patterns))
	for _, p := range me.Config.Patterns {
		if p == nil || p.DeletedAt != nil || p.VendorName == "" {
			continue
		}
		lookup[p.VendorName] = p
	}
	return lookup
}

func (me *MatchingEngine) countTier(stats *MatchStatistics, confidence models.Confidence) {
	switch confidence {
	case models.ConfidenceExact:
		stats.ExactMatches++
	case models.ConfidenceHigh:
		stats.HighMatches++
	case models.ConfidenceMedium:
		stats.MediumMatches++
	case models.ConfidenceLow:
		stats.LowMatches++
	}
}

// resolveGreedy orders pairs best first. Ties fall back to input order so
// runs are deterministic.
func resolveGreedy(pairs []candidatePair) []candidatePair {
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		if pairs[i].stmtPos != pairs[j].stmtPos {
			return pairs[i].stmtPos < pairs[j].stmtPos
		}
		return pairs[i].sys.pos < pairs[j].sys.pos
	})
	return pairs
}

// dateOrder returns statement positions sorted by date, stable on input order
func dateOrder(statement []models.StatementTransaction) []int {
	order := make([]int, len(statement))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return statement[order[i]].Date.Before(statement[order[j]].Date)
	})
	return order
}

// closeness maps a distance within a tolerance to [0, 1]. A zero distance is
// always 1; with no tolerance anything else is 0.
func closeness(distance, tolerance float64) float64 {
	if distance == 0 {
		return 1
	}
	if tolerance <= 0 {
		return 0
	}
	return math.Max(0, 1-distance/tolerance)
}

func accuracy(resolved, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(resolved) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
