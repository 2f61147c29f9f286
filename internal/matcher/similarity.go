package matcher

import (
	"math"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"reconciliation-engine/internal/patterns"
)

// DescriptionSimilarity returns a 0-100 similarity between a bank
// description and a ledger memo. It takes the better of two measures:
// token overlap, which tolerates extra words on either side, and a
// Levenshtein ratio, which tolerates typos and truncation.
func DescriptionSimilarity(a, b string) float64 {
	na := patterns.NormalizeText(a)
	nb := patterns.NormalizeText(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}

	return math.Max(tokenOverlap(na, nb), editRatio(na, nb)) * 100
}

// tokenOverlap is |A∩B| / min(|A|,|B|) over distinct tokens
func tokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for token := range setA {
		if setB[token] {
			shared++
		}
	}

	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	return float64(shared) / float64(smaller)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(s) {
		set[token] = true
	}
	return set
}

// editRatio is 1 - distance/maxLen
func editRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	return 1 - float64(distance)/float64(longest)
}
