// Package patterns learns per-vendor matching heuristics from confirmed
// and rejected matches, and exposes them to the matcher as a score boost.
package patterns

import (
	"math"
	"time"

	"github.com/google/uuid"

	"reconciliation-engine/internal/models"
)

const (
	// DefaultConfidence is the starting confidence of a new pattern
	DefaultConfidence = 50.0
	// MaxDescriptionPatterns caps the memo n-grams kept per pattern
	MaxDescriptionPatterns = 10
)

// Observation is one piece of feedback about a statement/book pairing
type Observation struct {
	Statement  models.StatementTransaction
	System     models.JournalEntry
	Successful bool
	At         time.Time
}

// NewPattern creates an empty pattern for a normalized vendor name
func NewPattern(companyID, vendorName string, now time.Time) *models.ReconciliationPattern {
	return &models.ReconciliationPattern{
		ID:                  uuid.NewString(),
		CompanyID:           companyID,
		VendorName:          vendorName,
		DescriptionPatterns: []string{},
		Confidence:          DefaultConfidence,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// UpdateConfidence moves confidence toward 100 on success and toward 0 on
// failure. The step shrinks as observations accumulate, so the value stays
// in [0, 100] and settles as evidence grows.
func UpdateConfidence(confidence float64, observations int, successful bool) float64 {
	step := float64(observations + 2)
	if successful {
		confidence += (100 - confidence) / step
	} else {
		confidence -= confidence / step
	}
	return math.Max(0, math.Min(100, confidence))
}

// Apply folds one observation into a copy of the pattern. Amount range and
// typical day always describe the vendor's statement lines; the memo n-gram
// is only learned from confirmed matches.
func Apply(pattern *models.ReconciliationPattern, obs Observation) *models.ReconciliationPattern {
	out := pattern.Clone()
	n := out.MatchCount

	if obs.Successful {
		if gram := MemoNGram(obs.System.Memo); gram != "" && !contains(out.DescriptionPatterns, gram) {
			out.DescriptionPatterns = append(out.DescriptionPatterns, gram)
			if over := len(out.DescriptionPatterns) - MaxDescriptionPatterns; over > 0 {
				out.DescriptionPatterns = out.DescriptionPatterns[over:]
			}
		}
		at := obs.At
		out.LastMatchedAt = &at
	}

	out.TypicalAmountRange = out.TypicalAmountRange.Extend(obs.Statement.AbsAmount())

	day := obs.Statement.Date.Day()
	if n == 0 || out.TypicalDayOfMonth == 0 {
		out.TypicalDayOfMonth = day
	} else {
		out.TypicalDayOfMonth = int(math.Round(float64(out.TypicalDayOfMonth*n+day) / float64(n+1)))
	}

	out.Confidence = UpdateConfidence(out.Confidence, n, obs.Successful)
	out.MatchCount = n + 1
	out.UpdatedAt = obs.At
	return out
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
