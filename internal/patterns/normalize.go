package patterns

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Legal-entity suffixes dropped from the end of vendor names.
var entitySuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "co": true, "corp": true,
	"corporation": true, "company": true, "limited": true, "plc": true, "lp": true,
}

// Leading channel words banks prepend to card and transfer lines.
var channelWords = map[string]bool{
	"pos": true, "ach": true, "debit": true, "credit": true, "card": true,
	"purchase": true, "payment": true, "checkcard": true, "online": true,
	"transfer": true, "deposit": true, "withdrawal": true, "recurring": true, "dd": true,
}

var memoStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "from": true, "with": true,
	"payment": true, "invoice": true, "inv": true, "bill": true, "paid": true,
	"ref": true, "txn": true, "transaction": true,
}

const maxVendorTokens = 3

// maxMemoTokens is the length of the memo n-gram stored on a pattern
const maxMemoTokens = 3

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeText case-folds, strips accents and replaces punctuation with
// single spaces, so that "Café-Roma, LLC" and "cafe roma llc" compare equal.
func NormalizeText(s string) string {
	folded := cases.Fold().String(stripMarks(s))

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeVendor normalizes a vendor name and drops trailing entity suffixes
func NormalizeVendor(name string) string {
	tokens := strings.Fields(NormalizeText(name))
	for len(tokens) > 1 && entitySuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Card processors that prefix the merchant with "<processor>*".
var processorPrefixes = map[string]bool{
	"sq": true, "tst": true, "paypal": true, "pp": true, "sp": true,
}

// ExtractVendor pulls a vendor name out of a bank description. Leading
// channel words, bare numbers and processor prefixes are skipped, then up to
// three tokens are taken. A token that looks like a reference number ends the
// name after contributing its leading alphabetic run.
func ExtractVendor(description string) (string, bool) {
	fields := strings.Fields(description)

	i := 0
	for i < len(fields) {
		field := fields[i]
		switch {
		case channelWords[NormalizeText(field)], leadingLetters(field) == "" && !strings.HasPrefix(field, "*"):
			i++
			continue
		}
		if rest, ok := stripProcessor(field, fields[i+1:]); ok {
			if rest == "" {
				i++
				continue
			}
			fields[i] = rest
		}
		break
	}

	var taken []string
	for ; i < len(fields) && len(taken) < maxVendorTokens; i++ {
		field := strings.TrimLeft(fields[i], "*")
		if isReferenceToken(field) {
			if word := NormalizeText(leadingLetters(field)); word != "" {
				taken = append(taken, word)
			}
			break
		}
		word := NormalizeText(field)
		if word == "" {
			continue
		}
		taken = append(taken, word)
	}

	vendor := NormalizeVendor(strings.Join(taken, " "))
	if vendor == "" || entitySuffixes[vendor] || processorPrefixes[vendor] {
		return "", false
	}
	return vendor, true
}

// stripProcessor recognizes "SQ*MERCHANT", "TST* MERCHANT" and "SQ *MERCHANT".
// It returns what is left of field after the prefix, empty when the merchant
// starts in the next field.
func stripProcessor(field string, next []string) (string, bool) {
	if star := strings.Index(field, "*"); star > 0 {
		if processorPrefixes[NormalizeText(field[:star])] {
			return field[star+1:], true
		}
		return "", false
	}
	if processorPrefixes[NormalizeText(field)] && len(next) > 0 && strings.HasPrefix(next[0], "*") {
		return "", true
	}
	return "", false
}

// leadingLetters returns the run of letters at the start of token
func leadingLetters(token string) string {
	for i, r := range token {
		if !unicode.IsLetter(r) {
			return token[:i]
		}
	}
	return token
}

func isReferenceToken(token string) bool {
	if strings.ContainsAny(token, "#*/") {
		return true
	}
	for _, r := range token {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// MemoNGram is the first few significant tokens of a memo, normalized
func MemoNGram(memo string) string {
	var grams []string
	for _, token := range strings.Fields(NormalizeText(memo)) {
		if len([]rune(token)) < 3 || memoStopwords[token] || isReferenceToken(token) {
			continue
		}
		grams = append(grams, token)
		if len(grams) == maxMemoTokens {
			break
		}
	}
	return strings.Join(grams, " ")
}
