package models

import (
	"strings"
	"time"
)

// Confidence is the tier assigned to a scored match
type Confidence string

const (
	ConfidenceExact  Confidence = "EXACT"
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Rank orders tiers so that a higher rank means a stronger match
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceExact:
		return 4
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// TransactionMatch pairs one statement line with one system transaction
type TransactionMatch struct {
	StatementTransactionID string     `json:"statementTransactionId"`
	SystemTransactionID    string     `json:"systemTransactionId"`
	Confidence             Confidence `json:"confidence"`
	Score                  float64    `json:"score"`
	Reasons                []string   `json:"reasons"`
}

// MultiMatchType names the shape of a multi-transaction grouping
type MultiMatchType string

const (
	// MatchSplitDeposit is N system deposits summing to one statement deposit.
	MatchSplitDeposit MultiMatchType = "split_deposit"
	// MatchSplitPayment is N system payments summing to one statement withdrawal.
	MatchSplitPayment MultiMatchType = "split_payment"
	// MatchCombinedDeposit is one system deposit recorded as several statement lines.
	MatchCombinedDeposit MultiMatchType = "combined_deposit"
	// MatchCombinedPayment is one system payment recorded as several statement lines.
	MatchCombinedPayment MultiMatchType = "combined_payment"
)

// MultiTransactionMatch is an N:1 or 1:N grouping whose sums agree within tolerance
type MultiTransactionMatch struct {
	MatchType               MultiMatchType `json:"match_type"`
	SystemTransactionIDs    []string       `json:"system_transaction_ids"`
	StatementTransactionIDs []string       `json:"statement_transaction_ids"`
	Score                   float64        `json:"score"`
	Reasons                 []string       `json:"reasons,omitempty"`
}

// AmountRange is an inclusive range of absolute amounts in minor units
type AmountRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Contains reports whether amount lies in the range. A zero range contains nothing.
func (r AmountRange) Contains(amount int64) bool {
	if r.Min == 0 && r.Max == 0 {
		return false
	}
	return amount >= r.Min && amount <= r.Max
}

// Extend widens the range to include amount
func (r AmountRange) Extend(amount int64) AmountRange {
	if r.Min == 0 && r.Max == 0 {
		return AmountRange{Min: amount, Max: amount}
	}
	if amount < r.Min {
		r.Min = amount
	}
	if amount > r.Max {
		r.Max = amount
	}
	return r
}

// ReconciliationPattern is a learned per-vendor matching heuristic
type ReconciliationPattern struct {
	ID                  string      `json:"id"`
	CompanyID           string      `json:"company_id"`
	VendorName          string      `json:"vendor_name"`
	DescriptionPatterns []string    `json:"description_patterns"`
	TypicalAmountRange  AmountRange `json:"typical_amount_range"`
	TypicalDayOfMonth   int         `json:"typical_day_of_month"`
	Confidence          float64     `json:"confidence"`
	MatchCount          int         `json:"match_count"`
	LastMatchedAt       *time.Time  `json:"last_matched_at,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	DeletedAt           *time.Time  `json:"deleted_at,omitempty"`
}

// Clone returns a deep copy
func (p *ReconciliationPattern) Clone() *ReconciliationPattern {
	if p == nil {
		return nil
	}
	out := *p
	out.DescriptionPatterns = cloneStrings(p.DescriptionPatterns)
	if p.LastMatchedAt != nil {
		t := *p.LastMatchedAt
		out.LastMatchedAt = &t
	}
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// MatchesMemo reports whether a normalized memo contains any learned n-gram
func (p *ReconciliationPattern) MatchesMemo(normalizedMemo string) bool {
	if normalizedMemo == "" {
		return false
	}
	for _, gram := range p.DescriptionPatterns {
		if gram != "" && strings.Contains(normalizedMemo, gram) {
			return true
		}
	}
	return p.VendorName != "" && strings.Contains(normalizedMemo, p.VendorName)
}
