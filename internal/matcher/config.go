// Package matcher pairs bank statement lines with ledger entries.
//
// Matching runs in three stages:
//  1. Candidate selection through an amount-sorted index, filtered by date
//  2. Scoring on amount, date and description closeness, plus an optional
//     boost from learned vendor patterns
//  3. Greedy one-pass resolution, highest score first, followed by a bounded
//     subset-sum search for split and combined transactions
//
// The matcher is pure: it reads its inputs and returns a Result, and never
// mutates a session or touches storage.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DateToleranceDays = 5
//	config.Patterns = learned
//
//	engine := matcher.NewMatchingEngine(config)
//	result, err := engine.Match(ctx, statement.Transactions, entries, "acct-checking")
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"reconciliation-engine/internal/models"
)

// MatchingWeights splits the 100-point base score between the criteria.
type MatchingWeights struct {
	Amount      float64 `json:"amount" mapstructure:"amount"`
	Date        float64 `json:"date" mapstructure:"date"`
	Description float64 `json:"description" mapstructure:"description"`
}

// ConfidenceThresholds maps scores to tiers. LOW starts at MinConfidenceScore.
type ConfidenceThresholds struct {
	Exact  float64 `json:"exact" mapstructure:"exact"`
	High   float64 `json:"high" mapstructure:"high"`
	Medium float64 `json:"medium" mapstructure:"medium"`
}

// MatchingConfig holds the parameters for one matching run.
//
// Key configuration areas:
//   - Tolerances: how far apart amounts and dates may be for a candidate
//   - Quality: the minimum score to accept a pairing and the tier cut-offs
//   - Learning: whether learned vendor patterns boost scores
//   - Multi-matching: whether leftovers are tried as split or combined groups
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): balanced approach for most statements
//   - StrictMatchingConfig(): exact amounts, tight dates
//   - RelaxedMatchingConfig(): loose tolerances for messy exports
type MatchingConfig struct {
	// DateToleranceDays is the largest date gap, in days, for a candidate
	DateToleranceDays int `json:"date_tolerance_days" mapstructure:"date_tolerance_days"`

	// AmountTolerance is the largest amount gap in currency units (e.g. 0.50)
	AmountTolerance decimal.Decimal `json:"amount_tolerance" mapstructure:"amount_tolerance"`

	// DescriptionSimilarityThreshold (0-100) is the similarity at which the
	// description counts as matching and earns its full weight
	DescriptionSimilarityThreshold float64 `json:"description_similarity_threshold" mapstructure:"description_similarity_threshold"`

	// MinConfidenceScore (0-100) is the lowest score accepted as a match
	MinConfidenceScore float64 `json:"min_confidence_score" mapstructure:"min_confidence_score"`

	// UsePatternLearning enables the learned-pattern boost
	UsePatternLearning bool `json:"use_pattern_learning" mapstructure:"use_pattern_learning"`

	// Patterns are the company's learned vendor patterns
	Patterns []*models.ReconciliationPattern `json:"-" mapstructure:"-"`

	// PatternBoostWeight is the boost granted by a pattern at 100 confidence
	PatternBoostWeight float64 `json:"pattern_boost_weight" mapstructure:"pattern_boost_weight"`

	// EnableMultiTransactionMatching turns on the split/combined search
	EnableMultiTransactionMatching bool `json:"enable_multi_transaction_matching" mapstructure:"enable_multi_transaction_matching"`

	// MaxSplitSize bounds the number of members in a split group
	MaxSplitSize int `json:"max_split_size" mapstructure:"max_split_size"`

	// MaxSplitCandidates bounds the pool searched for one split group
	MaxSplitCandidates int `json:"max_split_candidates" mapstructure:"max_split_candidates"`

	Weights    MatchingWeights      `json:"weights" mapstructure:"weights"`
	Thresholds ConfidenceThresholds `json:"thresholds" mapstructure:"thresholds"`
}

func defaultWeights() MatchingWeights {
	return MatchingWeights{Amount: 55, Date: 25, Description: 20}
}

func defaultThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{Exact: 98, High: 85, Medium: 70}
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:              3,
		AmountTolerance:                decimal.Zero,
		DescriptionSimilarityThreshold: 70,
		MinConfidenceScore:             60,
		UsePatternLearning:             true,
		PatternBoostWeight:             40,
		EnableMultiTransactionMatching: true,
		MaxSplitSize:                   4,
		MaxSplitCandidates:             16,
		Weights:                        defaultWeights(),
		Thresholds:                     defaultThresholds(),
	}
}

// StrictMatchingConfig returns a configuration for strict matching
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.DateToleranceDays = 1
	config.DescriptionSimilarityThreshold = 80
	config.MinConfidenceScore = 80
	config.Thresholds = ConfidenceThresholds{Exact: 98, High: 90, Medium: 80}
	config.MaxSplitSize = 3
	return config
}

// RelaxedMatchingConfig returns a configuration for relaxed matching
func RelaxedMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.DateToleranceDays = 7
	config.AmountTolerance = decimal.NewFromInt(1)
	config.DescriptionSimilarityThreshold = 50
	config.MinConfidenceScore = 50
	return config
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance days cannot be negative: %d", mc.DateToleranceDays)
	}

	if mc.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", mc.AmountTolerance)
	}

	if mc.DescriptionSimilarityThreshold < 0 || mc.DescriptionSimilarityThreshold > 100 {
		return fmt.Errorf("description similarity threshold must be between 0 and 100: %f", mc.DescriptionSimilarityThreshold)
	}

	if mc.MinConfidenceScore < 0 || mc.MinConfidenceScore > 100 {
		return fmt.Errorf("minimum confidence score must be between 0 and 100: %f", mc.MinConfidenceScore)
	}

	if mc.PatternBoostWeight < 0 || mc.PatternBoostWeight > 100 {
		return fmt.Errorf("pattern boost weight must be between 0 and 100: %f", mc.PatternBoostWeight)
	}

	if mc.EnableMultiTransactionMatching {
		if mc.MaxSplitSize < 2 {
			return fmt.Errorf("max split size must be at least 2: %d", mc.MaxSplitSize)
		}
		if mc.MaxSplitCandidates < mc.MaxSplitSize {
			return fmt.Errorf("max split candidates (%d) must be at least max split size (%d)", mc.MaxSplitCandidates, mc.MaxSplitSize)
		}
	}

	if err := mc.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	if err := mc.Thresholds.Validate(mc.MinConfidenceScore); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	return nil
}

// Validate checks if the matching weights are valid
func (mw *MatchingWeights) Validate() error {
	if mw.Amount < 0 || mw.Date < 0 || mw.Description < 0 {
		return fmt.Errorf("weights cannot be negative: %+v", *mw)
	}

	total := mw.Amount + mw.Date + mw.Description
	if total < 99 || total > 101 {
		return fmt.Errorf("weights should sum to 100, got %f", total)
	}

	return nil
}

// Validate checks that tiers are strictly ordered above the minimum score
func (ct *ConfidenceThresholds) Validate(minScore float64) error {
	if !(ct.Exact > ct.High && ct.High > ct.Medium && ct.Medium >= minScore) {
		return fmt.Errorf("thresholds must satisfy exact > high > medium >= min confidence (%v)", minScore)
	}
	if ct.Exact > 100 {
		return fmt.Errorf("exact threshold cannot exceed 100: %f", ct.Exact)
	}
	return nil
}

// Clone creates a deep copy of the matching configuration. Patterns are
// shared since the matcher only reads them.
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	out := *mc
	out.Patterns = append([]*models.ReconciliationPattern(nil), mc.Patterns...)
	return &out
}

// amountToleranceMinor converts the tolerance to minor units
func (mc *MatchingConfig) amountToleranceMinor() int64 {
	return mc.AmountTolerance.Shift(2).Round(0).IntPart()
}

// Tier maps a score to a confidence tier. Scores below the minimum map to "".
func (mc *MatchingConfig) Tier(score float64) models.Confidence {
	switch {
	case score >= mc.Thresholds.Exact:
		return models.ConfidenceExact
	case score >= mc.Thresholds.High:
		return models.ConfidenceHigh
	case score >= mc.Thresholds.Medium:
		return models.ConfidenceMedium
	case score >= mc.MinConfidenceScore:
		return models.ConfidenceLow
	default:
		return ""
	}
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{DateTolerance: %d days, AmountTolerance: %s, DescriptionThreshold: %.0f, MinConfidence: %.0f, Patterns: %v, MultiMatch: %v}",
		mc.DateToleranceDays, mc.AmountTolerance.StringFixed(2), mc.DescriptionSimilarityThreshold, mc.MinConfidenceScore,
		mc.UsePatternLearning, mc.EnableMultiTransactionMatching)
}
