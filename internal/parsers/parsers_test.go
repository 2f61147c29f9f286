package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reconciliation-engine/pkg/errors"
)

// Helper function to create temporary CSV file
func createTempCSVFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "statement.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		line string
		want rune
	}{
		{"Date,Description,Amount", ','},
		{"Date;Description;Amount", ';'},
		{"Date\tDescription\tAmount", '\t'},
		{"Date|Description|Amount", '|'},
		{`"Date","Desc; with semi","Amount"`, ','},
		{"single", ','},
	}

	for _, tt := range tests {
		if got := DetectDelimiter(tt.line); got != tt.want {
			t.Errorf("DetectDelimiter(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestStatementParser_Basic(t *testing.T) {
	raw := "Date,Description,Amount\n" +
		"2024-01-15,ACME SUPPLIES #4821,-150.00\n" +
		"2024-01-03,Customer deposit,1200.50\n" +
		"2024-01-20,Monthly service fee,-12.00\n"

	parser := NewStatementParser(nil)
	statement, stats, err := parser.ParseString(context.Background(), raw, ParseOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(statement.Transactions) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(statement.Transactions))
	}
	if stats.RecordsValid != 3 || stats.Skipped() != 0 {
		t.Errorf("Expected 3 valid rows and none skipped, got %d/%d", stats.RecordsValid, stats.Skipped())
	}

	// Sorted by date
	first := statement.Transactions[0]
	if first.Description != "Customer deposit" || first.Amount != 120050 {
		t.Errorf("Unexpected first transaction: %+v", first)
	}
	if statement.Transactions[1].Amount != -15000 {
		t.Errorf("Expected -15000, got %d", statement.Transactions[1].Amount)
	}

	wantStart := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	if !statement.Period.StartDate.Equal(wantStart) || !statement.Period.EndDate.Equal(wantEnd) {
		t.Errorf("Unexpected period %v - %v", statement.Period.StartDate, statement.Period.EndDate)
	}
	if statement.OpeningBalance != 0 || statement.ClosingBalance != 0 {
		t.Errorf("Expected zero balances without a balance column, got %d/%d", statement.OpeningBalance, statement.ClosingBalance)
	}
	if statement.Format != StatementFormatCSV {
		t.Errorf("Expected csv format, got %s", statement.Format)
	}

	ids := make(map[string]bool)
	for _, tx := range statement.Transactions {
		if tx.ID == "" || ids[tx.ID] {
			t.Errorf("Expected unique non-empty ids, got %q", tx.ID)
		}
		ids[tx.ID] = true
		if tx.Matched {
			t.Errorf("Freshly parsed transaction %s should be unmatched", tx.ID)
		}
	}
}

func TestStatementParser_SkipsBadRows(t *testing.T) {
	raw := "Date,Description,Amount\n" +
		"2024-02-01,Good row,10.00\n" +
		"2024-02-02,Bad amount,ten dollars\n" +
		"not-a-date,Bad date,5.00\n" +
		"\n" +
		"2024-02-03,Another good row,-4.25\n"

	statement, stats, err := NewStatementParser(nil).ParseString(context.Background(), raw, ParseOptions{})
	if err != nil {
		t.Fatalf("Expected partial success, got %v", err)
	}
	if len(statement.Transactions) != 2 {
		t.Errorf("Expected 2 transactions, got %d", len(statement.Transactions))
	}
	if len(stats.Errors) != 2 {
		t.Fatalf("Expected 2 row errors, got %d", len(stats.Errors))
	}
	if stats.Errors[0].Field != "amount" || stats.Errors[0].Line != 3 {
		t.Errorf("Unexpected first error: %+v", stats.Errors[0])
	}
	if stats.Errors[1].Field != "date" {
		t.Errorf("Expected date error, got %s", stats.Errors[1].Field)
	}
}

func TestStatementParser_NoRecoverableRows(t *testing.T) {
	raw := "Date,Description,Amount\nbad,row,abc\n"

	_, _, err := NewStatementParser(nil).ParseString(context.Background(), raw, ParseOptions{})
	if err == nil {
		t.Fatal("Expected error for statement with no valid rows")
	}
	if !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("Expected validation-class error, got %v", err)
	}
	rerr, _ := errors.AsReconcilerError(err)
	if rerr.Code != errors.CodeNoRows {
		t.Errorf("Expected no_rows code, got %s", rerr.Code)
	}
}

func TestStatementParser_EmptyInput(t *testing.T) {
	_, _, err := NewStatementParser(nil).ParseString(context.Background(), "  \n", ParseOptions{})
	if err == nil {
		t.Fatal("Expected error for empty input")
	}
}

func TestStatementParser_AliasesAndDebitCredit(t *testing.T) {
	raw := "Posting Date;Payee;Withdrawal;Deposit;Running Balance\n" +
		"01/05/2024;Rent;1,000.00;;4000.00\n" +
		"01/07/2024;Client payment;;250.00;4250.00\n"

	statement, _, err := NewStatementParser(nil).ParseString(context.Background(), raw, ParseOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if statement.Transactions[0].Amount != -100000 {
		t.Errorf("Expected withdrawal -100000, got %d", statement.Transactions[0].Amount)
	}
	if statement.Transactions[1].Amount != 25000 {
		t.Errorf("Expected deposit 25000, got %d", statement.Transactions[1].Amount)
	}
	if statement.OpeningBalance != 500000 {
		t.Errorf("Expected opening balance 500000, got %d", statement.OpeningBalance)
	}
	if statement.ClosingBalance != 425000 {
		t.Errorf("Expected closing balance 425000, got %d", statement.ClosingBalance)
	}
}

func TestStatementParser_HeaderlessInference(t *testing.T) {
	raw := "2024-03-01,Coffee shop,-4.50\n2024-03-02,Refund,4.50\n"

	statement, _, err := NewStatementParser(nil).ParseString(context.Background(), raw, ParseOptions{})
	if err != nil {
		t.Fatalf("Expected inference to succeed, got %v", err)
	}
	if len(statement.Transactions) != 2 {
		t.Fatalf("Expected the first row to be kept as data, got %d transactions", len(statement.Transactions))
	}
	if statement.Transactions[0].Description != "Coffee shop" {
		t.Errorf("Unexpected description %q", statement.Transactions[0].Description)
	}
}

func TestStatementParser_MissingColumns(t *testing.T) {
	raw := "Foo,Bar\nx,y\n"
	_, _, err := NewStatementParser(nil).ParseString(context.Background(), raw, ParseOptions{})
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeMissingColumn {
		t.Fatalf("Expected missing column error, got %v", err)
	}
}

func TestStatementParser_Overrides(t *testing.T) {
	raw := "Date,Description,Amount,Balance\n2024-01-15,Deposit,50.00,1050.00\n"
	opening, closing := int64(100000), int64(105000)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	statement, _, err := NewStatementParser(nil).ParseString(context.Background(), raw, ParseOptions{
		OpeningBalance: &opening,
		ClosingBalance: &closing,
		PeriodStart:    &start,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if statement.OpeningBalance != opening || statement.ClosingBalance != closing {
		t.Errorf("Expected overrides to win, got %d/%d", statement.OpeningBalance, statement.ClosingBalance)
	}
	if !statement.Period.StartDate.Equal(start) {
		t.Errorf("Expected period start override, got %v", statement.Period.StartDate)
	}
}

func TestStatementParser_ExplicitIDsDeduplicated(t *testing.T) {
	raw := "Reference,Date,Description,Amount\nA1,2024-01-01,One,1.00\nA1,2024-01-02,Two,2.00\n"

	statement, _, err := NewStatementParser(nil).ParseString(context.Background(), raw, ParseOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if statement.Transactions[0].ID != "A1" || statement.Transactions[1].ID != "A1-2" {
		t.Errorf("Unexpected ids %s, %s", statement.Transactions[0].ID, statement.Transactions[1].ID)
	}
}

func TestStatementParser_ParseFile(t *testing.T) {
	path := createTempCSVFile(t, "Date,Description,Amount\n2024-01-15,Deposit,50.00\n")

	statement, _, err := NewStatementParser(nil).ParseFile(context.Background(), path, ParseOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(statement.Transactions) != 1 {
		t.Errorf("Expected 1 transaction, got %d", len(statement.Transactions))
	}

	if _, _, err := NewStatementParser(nil).ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), ParseOptions{}); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestStatementParser_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewStatementParser(nil).ParseString(ctx, "Date,Description,Amount\n2024-01-15,Deposit,50.00\n", ParseOptions{})
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeCancelled {
		t.Fatalf("Expected cancellation error, got %v", err)
	}
}

func TestLedgerParser(t *testing.T) {
	raw := "entry_id,date,memo,account_id,debit,credit,status\n" +
		"je-1,2024-01-15,Client payment,bank,50.00,,CLEARED\n" +
		"je-1,2024-01-15,Client payment,revenue,,50.00,CLEARED\n" +
		"je-2,2024-01-16,Broken,bank,10.00,,\n" +
		"je-2,2024-01-16,Broken,expenses,,9.00,\n"

	entries, stats, err := NewLedgerParser(nil).Parse(context.Background(), strings.NewReader(raw), "co-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected only the balanced entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.CompanyID != "co-1" || entry.Status != "CLEARED" || len(entry.Lines) != 2 {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if entry.NetAmount("bank") != 5000 {
		t.Errorf("Expected bank net 5000, got %d", entry.NetAmount("bank"))
	}
	if len(stats.Errors) != 1 {
		t.Errorf("Expected 1 rejected entry, got %d", len(stats.Errors))
	}
}

func TestLedgerParser_RequiresCompany(t *testing.T) {
	if _, _, err := NewLedgerParser(nil).Parse(context.Background(), strings.NewReader("x"), " "); err == nil {
		t.Error("Expected validation error for missing company")
	}
}

func TestParseContext_GetColumnIndex(t *testing.T) {
	parseCtx := NewParseContext(context.Background())
	parseCtx.HeaderMap = map[string]int{"transaction date": 0, "amount": 2}

	tests := []struct {
		name string
		want int
	}{
		{"Transaction_Date", 0},
		{"AMOUNT", 2},
		{"transaction-date", 0},
		{"balance", -1},
	}
	for _, tt := range tests {
		if got := parseCtx.GetColumnIndex(tt.name); got != tt.want {
			t.Errorf("GetColumnIndex(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func BenchmarkStatementParser(b *testing.B) {
	raw := "Date,Description,Amount\n"
	for i := 0; i < 500; i++ {
		raw += "2024-01-15,Vendor payment 1234,-150.00\n"
	}
	parser := NewStatementParser(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := parser.ParseString(context.Background(), raw, ParseOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}
