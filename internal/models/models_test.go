package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseMinorUnits(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"plain", "150.00", 15000, false},
		{"negative", "-150.00", -15000, false},
		{"currency and separators", "$1,234.56", 123456, false},
		{"parentheses", "(40.00)", -4000, false},
		{"trailing minus", "12.50-", -1250, false},
		{"whole number", "12", 1200, false},
		{"rounds half away from zero", "0.005", 1, false},
		{"empty", "  ", 0, true},
		{"garbage", "twelve", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMinorUnits(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMinorUnits(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseMinorUnits(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatMinorUnits(t *testing.T) {
	if got := FormatMinorUnits(-15050); got != "-150.50" {
		t.Errorf("expected -150.50, got %s", got)
	}
	if got := FormatMinorUnits(7); got != "0.07" {
		t.Errorf("expected 0.07, got %s", got)
	}
}

func TestJournalEntryNetAmount(t *testing.T) {
	entry := JournalEntry{
		ID: "je-1",
		Lines: []JournalLine{
			{AccountID: "bank", Debit: 5000},
			{AccountID: "revenue", Credit: 5000},
		},
	}

	if got := entry.NetAmount("bank"); got != 5000 {
		t.Errorf("expected bank net 5000, got %d", got)
	}
	if got := entry.NetAmount("revenue"); got != -5000 {
		t.Errorf("expected revenue net -5000, got %d", got)
	}
	if entry.TouchesAccount("expenses") {
		t.Error("entry should not touch expenses")
	}
	if err := entry.Validate(); err != nil {
		t.Errorf("expected balanced entry, got %v", err)
	}

	entry.Lines[1].Credit = 4000
	if err := entry.Validate(); err == nil || !strings.Contains(err.Error(), "unbalanced") {
		t.Errorf("expected unbalanced error, got %v", err)
	}
}

func TestStatementTransactionJSONUsesEpochMillis(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	tx := StatementTransaction{ID: "stmt-1", Date: date, Description: "Deposit", Amount: 5000}

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"date":1705276800000`) {
		t.Errorf("expected epoch millis in %s", data)
	}

	var decoded StatementTransaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Date.Equal(date) {
		t.Errorf("expected date %v, got %v", date, decoded.Date)
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 2, 28, 1, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 2 {
		t.Errorf("expected 2 days across leap day, got %d", got)
	}
	if got := DaysBetween(b, a); got != 2 {
		t.Errorf("expected symmetric result, got %d", got)
	}
}

func TestAmountRange(t *testing.T) {
	var r AmountRange
	if r.Contains(0) {
		t.Error("empty range should contain nothing")
	}
	r = r.Extend(5000).Extend(3000).Extend(4000)
	if r.Min != 3000 || r.Max != 5000 {
		t.Errorf("expected [3000,5000], got [%d,%d]", r.Min, r.Max)
	}
	if !r.Contains(4500) {
		t.Error("expected 4500 to be in range")
	}
}

func TestVersionVectorIncrement(t *testing.T) {
	original := VersionVector{"laptop": 2}
	next := original.Increment("laptop").Increment("phone")

	if original["laptop"] != 2 {
		t.Error("Increment must not mutate the receiver")
	}
	if next["laptop"] != 3 || next["phone"] != 1 {
		t.Errorf("unexpected vector %v", next)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := &ReconciliationSession{
		MatchedTransactions: []string{"je-1"},
		Statement: ParsedStatement{Transactions: []StatementTransaction{
			{ID: "stmt-1", MatchedTransactionIDs: []string{"je-1", "je-2"}},
		}},
	}
	c := s.Clone()
	c.MatchedTransactions[0] = "changed"
	c.Statement.Transactions[0].MatchedTransactionIDs[0] = "changed"

	if s.MatchedTransactions[0] != "je-1" {
		t.Error("matched transactions aliased")
	}
	if s.Statement.Transactions[0].MatchedTransactionIDs[0] != "je-1" {
		t.Error("statement transactions aliased")
	}
}
