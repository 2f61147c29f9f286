package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"reconciliation-engine/internal/matcher"
	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/parsers"
	"reconciliation-engine/internal/reconciler"
	"reconciliation-engine/pkg/errors"
)

func date(month time.Month, day int) time.Time {
	return time.Date(2024, month, day, 0, 0, 0, 0, time.UTC)
}

// createSampleWorkflowResult builds a run with one exact match, one split
// and one unmatched fee line.
func createSampleWorkflowResult() *reconciler.WorkflowResult {
	session := &models.ReconciliationSession{
		ID:             "sess-1",
		CompanyID:      "co-1",
		AccountID:      "acct-bank",
		Status:         models.StatusDraft,
		OpeningBalance: 100000,
		ClosingBalance: 104700,
		Statement: models.ParsedStatement{
			Period: models.StatementPeriod{StartDate: date(time.March, 1), EndDate: date(time.March, 31)},
			Transactions: []models.StatementTransaction{
				{ID: "stmt-1", Date: date(time.March, 3), Description: "ACME PAYROLL", Amount: 5000, Matched: true, MatchedTransactionID: "je-1"},
				{ID: "stmt-2", Date: date(time.March, 31), Description: "SERVICE FEE", Amount: -300},
				{ID: "stmt-3", Date: date(time.March, 10), Description: "DEPOSIT", Amount: 2500, Matched: true, MatchedTransactionIDs: []string{"je-2", "je-3"}},
			},
		},
		MatchedTransactions:     []string{"je-1", "je-2", "je-3"},
		UnmatchedStatementItems: []string{"stmt-2"},
		Discrepancy:             -300,
	}

	stats := parsers.NewParseStats()
	stats.TotalLines = 4
	stats.RecordsParsed = 3
	stats.RecordsValid = 3

	return &reconciler.WorkflowResult{
		Session: session,
		Match: &matcher.Result{
			Matches: []models.TransactionMatch{
				{StatementTransactionID: "stmt-1", SystemTransactionID: "je-1", Confidence: models.ConfidenceExact, Score: 100, Reasons: []string{"exact amount", "same day"}},
			},
			MultiMatches: []models.MultiTransactionMatch{
				{MatchType: models.MatchCombinedDeposit, SystemTransactionIDs: []string{"je-2", "je-3"}, StatementTransactionIDs: []string{"stmt-3"}, Score: 85},
			},
			Accuracy:   66.67,
			Statistics: matcher.MatchStatistics{StatementTransactions: 3, SystemTransactions: 4, ExactMatches: 1, MultiMatches: 1, Unresolved: 1},
		},
		Summary: reconciler.GetReconciliationSummary(session),
		Suggestions: []models.DiscrepancySuggestion{
			{
				Pattern:              models.PatternBankFee,
				Description:          "Bank fee not recorded in the books",
				SuggestedAction:      "Record a bank fee expense",
				AffectedTransactions: []string{"stmt-2"},
				Amount:               -300,
				Confidence:           85,
				AutoFixable:          true,
			},
		},
		ParseStats:  stats,
		SystemCount: 4,
		Warnings:    []string{"Statement does not balance: discrepancy -3.00"},
		Duration:    150 * time.Millisecond,
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{name: "default config", config: nil},
		{name: "valid config", config: DefaultReportConfig()},
		{
			name:        "invalid format",
			config:      &ReportConfig{Format: "invalid", MaxListItems: 10},
			expectError: true,
		},
		{
			name:        "zero list items",
			config:      &ReportConfig{Format: FormatConsole},
			expectError: true,
		},
		{
			name:        "quote as CSV delimiter",
			config:      &ReportConfig{Format: FormatCSV, MaxListItems: 10, CSVDelimiter: '"'},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"xml", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("OutputFormat(%q).IsValid() = %v, want %v", tt.format, got, tt.valid)
		}
	}
}

func TestConsoleReport(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeMatches = true
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleWorkflowResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"RECONCILIATION REPORT",
		"Period: 2024-03-01 to 2024-03-31",
		"=== SUMMARY ===",
		"Matched:        2 (67%)",
		"=== BALANCES ===",
		"Opening Balance:  1000.00",
		"Closing Balance:  1047.00",
		"Discrepancy:      -3.00",
		"Of Period Change: 6.38%",
		"Balanced:         no",
		"=== MATCH QUALITY BREAKDOWN ===",
		"Split:   1",
		"=== MATCHES ===",
		"stmt-1 -> je-1  EXACT",
		"=== UNMATCHED STATEMENT LINES ===",
		"SERVICE FEE",
		"=== SUGGESTIONS ===",
		"BANK_FEE (85%) [auto-fixable]",
		"=== PARSING ===",
		"Rows Accepted: 3 of 3 (100.0%)",
		"WARNING: Statement does not balance",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("console output missing %q\n%s", want, output)
		}
	}
}

func TestConsoleReportTruncatesLists(t *testing.T) {
	result := createSampleWorkflowResult()
	for i := 0; i < 5; i++ {
		result.Session.Statement.Transactions = append(result.Session.Statement.Transactions, models.StatementTransaction{
			ID: fmt.Sprintf("extra-%d", i), Date: date(time.March, 20), Description: "UNKNOWN", Amount: -100,
		})
	}

	config := DefaultReportConfig()
	config.MaxListItems = 2
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if !strings.Contains(buf.String(), "... and 4 more") {
		t.Errorf("expected truncated unmatched list, got:\n%s", buf.String())
	}
}

func TestJSONReport(t *testing.T) {
	generator, _ := NewReportGenerator(&ReportConfig{
		Format:            FormatJSON,
		IncludeUnmatched:  true,
		IncludeParseStats: true,
		MaxListItems:      10,
	})

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleWorkflowResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if !envelope.Success {
		t.Errorf("expected success envelope")
	}
	if envelope.Data["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", envelope.Data["session_id"])
	}
	if _, ok := envelope.Data["matches"]; ok {
		t.Errorf("matches should be omitted when IncludeMatches is false")
	}
	if _, ok := envelope.Data["suggestions"]; ok {
		t.Errorf("suggestions should be omitted when IncludeSuggestions is false")
	}
	unmatched, ok := envelope.Data["unmatched_statement_items"].([]interface{})
	if !ok || len(unmatched) != 1 {
		t.Fatalf("expected one unmatched statement item, got %v", envelope.Data["unmatched_statement_items"])
	}
	summary := envelope.Data["summary"].(map[string]interface{})
	if summary["discrepancy"] != float64(-300) {
		t.Errorf("summary discrepancy = %v, want -300", summary["discrepancy"])
	}
}

func TestCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.IncludeMatches = true
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleWorkflowResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV output: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(records))
	}
	if records[0][0] != "Status" || records[0][5] != "System_IDs" {
		t.Errorf("unexpected header: %v", records[0])
	}

	byID := make(map[string][]string)
	for _, r := range records[1:] {
		byID[r[1]] = r
	}
	if got := byID["stmt-1"]; got[0] != "Matched" || got[5] != "je-1" || got[6] != "EXACT" || got[7] != "100.00" {
		t.Errorf("stmt-1 row = %v", got)
	}
	if got := byID["stmt-2"]; got[0] != "Unmatched" || got[4] != "-3.00" || got[5] != "" {
		t.Errorf("stmt-2 row = %v", got)
	}
	if got := byID["stmt-3"]; got[5] != "je-2 je-3" || got[6] != string(models.MatchCombinedDeposit) {
		t.Errorf("stmt-3 row = %v", got)
	}
}

func TestCSVReportDelimiterAndHeaders(t *testing.T) {
	generator, _ := NewReportGenerator(&ReportConfig{
		Format:           FormatCSV,
		IncludeUnmatched: true,
		MaxListItems:     10,
		CSVDelimiter:     ';',
		CSVHeaders:       false,
	})

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleWorkflowResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the unmatched row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Unmatched;stmt-2;2024-03-31;SERVICE FEE;-3.00") {
		t.Errorf("unexpected row: %s", lines[0])
	}
}

func TestGenerateReportNilResult(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for nil result")
	}
}

func TestHistoryReport(t *testing.T) {
	completed := date(time.April, 2)
	history := []models.RecordSummary{
		{
			ID: "rec-2", Status: models.StatusCompleted,
			PeriodStart: date(time.March, 1), PeriodEnd: date(time.March, 31),
			OpeningBalance: 100000, ClosingBalance: 104700, Discrepancy: 0,
			MatchedCount: 12, UnmatchedCount: 1, CompletedAt: &completed, UserID: "u-1",
		},
	}

	t.Run("console", func(t *testing.T) {
		generator, _ := NewReportGenerator(nil)
		var buf bytes.Buffer
		if err := generator.GenerateHistoryReport("acct-bank", history, &buf); err != nil {
			t.Fatalf("GenerateHistoryReport failed: %v", err)
		}
		if !strings.Contains(buf.String(), "rec-2  2024-03-01 to 2024-03-31") || !strings.Contains(buf.String(), "matched 12/13") {
			t.Errorf("unexpected output:\n%s", buf.String())
		}
	})

	t.Run("empty", func(t *testing.T) {
		generator, _ := NewReportGenerator(nil)
		var buf bytes.Buffer
		_ = generator.GenerateHistoryReport("acct-bank", nil, &buf)
		if !strings.Contains(buf.String(), "No reconciliations yet") {
			t.Errorf("unexpected output:\n%s", buf.String())
		}
	})

	t.Run("csv", func(t *testing.T) {
		config := DefaultReportConfig()
		config.Format = FormatCSV
		generator, _ := NewReportGenerator(config)
		var buf bytes.Buffer
		if err := generator.GenerateHistoryReport("acct-bank", history, &buf); err != nil {
			t.Fatalf("GenerateHistoryReport failed: %v", err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 2 || records[1][5] != "1047.00" || records[1][9] != "2024-04-02" {
			t.Errorf("unexpected CSV: %v", records)
		}
	})
}

func TestStreakReport(t *testing.T) {
	last := date(time.April, 30)
	next := date(time.May, 30)
	streak := &models.ReconciliationStreak{
		CurrentStreak:          4,
		BestStreak:             4,
		LastReconciliationDate: &last,
		NextDueDate:            &next,
		StreakStatus:           models.StreakActive,
		MilestonesAchieved:     []models.Milestone{{Milestone: 3, AchievedAt: date(time.March, 31)}},
	}

	generator, _ := NewReportGenerator(nil)
	var buf bytes.Buffer
	if err := generator.GenerateStreakReport("acct-bank", streak, &buf); err != nil {
		t.Fatalf("GenerateStreakReport failed: %v", err)
	}
	for _, want := range []string{"Current Streak:   4 months", "Next Due:         2024-05-30", "Milestone:        3 months on 2024-03-31"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("streak output missing %q\n%s", want, buf.String())
		}
	}

	if err := generator.GenerateStreakReport("acct-bank", nil, &buf); err == nil {
		t.Errorf("expected error for nil streak")
	}
}

func TestDashboardReport(t *testing.T) {
	dashboard := &models.UnreconciledDashboard{
		CompanyID:     "co-1",
		Counts:        map[models.AgeFlag]int{models.FlagWarning: 1, models.FlagAttention: 0, models.FlagUrgent: 2},
		Total:         3,
		OldestAgeDays: 120,
		Accounts: []models.AccountAttention{
			{AccountID: "acct-bank", AccountName: "Checking", Counts: map[models.AgeFlag]int{models.FlagWarning: 1, models.FlagUrgent: 2}, OldestAgeDays: 120},
		},
	}

	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateDashboardReport(dashboard, &buf); err != nil {
		t.Fatalf("GenerateDashboardReport failed: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	want := []string{"acct-bank", "Checking", "1", "0", "2", "120"}
	if strings.Join(records[1], ",") != strings.Join(want, ",") {
		t.Errorf("dashboard row = %v, want %v", records[1], want)
	}
}

func TestUnreconciledReport(t *testing.T) {
	items := []models.UnreconciledTransaction{
		{TransactionID: "je-7", AccountID: "acct-bank", Date: date(time.January, 10), AgeDays: 95, Flag: models.FlagUrgent, Amount: -4200, Description: "CHECK 1042"},
	}

	generator, _ := NewReportGenerator(nil)
	var buf bytes.Buffer
	if err := generator.GenerateUnreconciledReport("acct-bank", items, &buf); err != nil {
		t.Fatalf("GenerateUnreconciledReport failed: %v", err)
	}
	if !strings.Contains(buf.String(), "URGENT") || !strings.Contains(buf.String(), "-42.00") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	_ = generator.GenerateUnreconciledReport("acct-bank", nil, &buf)
	if !strings.Contains(buf.String(), "Nothing older than 30 days") {
		t.Errorf("unexpected empty output:\n%s", buf.String())
	}
}

func TestPatternReportSortsByConfidence(t *testing.T) {
	patterns := []*models.ReconciliationPattern{
		{ID: "p-1", VendorName: "Low Co", Confidence: 55, TypicalAmountRange: models.AmountRange{Min: -1000, Max: -900}},
		{ID: "p-2", VendorName: "High Co", Confidence: 92.5, MatchCount: 8, TypicalAmountRange: models.AmountRange{Min: -5000, Max: -5000}},
	}

	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GeneratePatternReport(patterns, &buf); err != nil {
		t.Fatalf("GeneratePatternReport failed: %v", err)
	}
	var envelope struct {
		Data []models.ReconciliationPattern `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(envelope.Data) != 2 || envelope.Data[0].ID != "p-2" {
		t.Errorf("expected High Co first, got %+v", envelope.Data)
	}
	if patterns[0].ID != "p-1" {
		t.Errorf("input slice must not be reordered")
	}
}

func TestWriteErrorJSON(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.WriteError(&buf, errors.NotFoundError("reconciliation record", "rec-404")); err != nil {
		t.Fatalf("WriteError failed: %v", err)
	}

	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(buf.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if envelope.Success {
		t.Errorf("expected failure envelope")
	}
	if envelope.Error.Code != string(errors.CategoryNotFound) {
		t.Errorf("error code = %s, want %s", envelope.Error.Code, errors.CategoryNotFound)
	}
	if !strings.Contains(envelope.Error.Message, "rec-404") {
		t.Errorf("error message = %q", envelope.Error.Message)
	}
}

func TestGenerateMessage(t *testing.T) {
	data := map[string]interface{}{"imported": 3}

	console, _ := NewReportGenerator(nil)
	var buf bytes.Buffer
	if err := console.GenerateMessage(&buf, "Imported 3 journal entries", data); err != nil {
		t.Fatalf("GenerateMessage failed: %v", err)
	}
	if buf.String() != "Imported 3 journal entries\n" {
		t.Errorf("unexpected console output %q", buf.String())
	}

	config := DefaultReportConfig()
	config.Format = FormatJSON
	jsonGen, _ := NewReportGenerator(config)
	buf.Reset()
	if err := jsonGen.GenerateMessage(&buf, "ignored", data); err != nil {
		t.Fatalf("GenerateMessage failed: %v", err)
	}
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !envelope.Success || envelope.Data["imported"] != 3 {
		t.Errorf("unexpected envelope %+v", envelope)
	}
}
