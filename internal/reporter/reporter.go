// Package reporter renders reconciliation outcomes for people and programs.
//
// Supported output formats:
//   - Console: aligned sections for terminal display
//   - JSON: the success/data/error envelope for programmatic consumption
//   - CSV: one row per item for spreadsheet applications
//
// Report types available:
//   - Reconciliation reports: summary, matches, leftovers and suggestions of one run
//   - History reports: the completed reconciliations of an account
//   - Streak reports: the monthly reconciliation streak
//   - Unreconciled reports: aged ledger entries and the cross-account dashboard
//   - Pattern reports: the vendor patterns learned so far
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/reconciler"
	"reconciliation-engine/pkg/errors"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

const dateLayout = "2006-01-02"

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatches     bool `json:"include_matches"`
	IncludeUnmatched   bool `json:"include_unmatched"`
	IncludeSuggestions bool `json:"include_suggestions"`
	IncludeParseStats  bool `json:"include_parse_stats"`

	// MaxListItems truncates console lists
	MaxListItems int `json:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeMatches:     false,
		IncludeUnmatched:   true,
		IncludeSuggestions: true,
		IncludeParseStats:  true,
		MaxListItems:       10,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxListItems < 1 {
		return fmt.Errorf("max list items must be at least 1, got %d", c.MaxListItems)
	}

	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter: %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// GenerateReport renders one reconciliation run
func (rg *ReportGenerator) GenerateReport(result *reconciler.WorkflowResult, writer io.Writer) error {
	if result == nil || result.Session == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return writeJSON(writer, rg.filterResultForOutput(result))
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.WorkflowResult, writer io.Writer) error {
	session := result.Session
	summary := result.Summary

	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Account: %s  Period: %s to %s\n",
		session.AccountID,
		session.Statement.Period.StartDate.Format(dateLayout),
		session.Statement.Period.EndDate.Format(dateLayout))
	fmt.Fprintf(writer, "Status: %s  Duration: %v\n\n", session.Status, result.Duration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Statement Lines:  %d\n", summary.TotalStatementTransactions)
	fmt.Fprintf(writer, "  Matched:        %d (%d%%)\n", summary.MatchedCount, summary.MatchRate)
	fmt.Fprintf(writer, "  Unmatched:      %d\n", summary.UnmatchedStatementCount)
	fmt.Fprintf(writer, "Ledger Entries:   %d loaded, %d matched\n", result.SystemCount, summary.MatchedSystemCount)
	if result.Match != nil {
		fmt.Fprintf(writer, "Accuracy:         %.2f%%\n", result.Match.Accuracy)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== BALANCES ===\n")
	rg.printBalances(result, writer)
	fmt.Fprintf(writer, "\n")

	if result.Match != nil {
		stats := result.Match.Statistics
		fmt.Fprintf(writer, "=== MATCH QUALITY BREAKDOWN ===\n")
		fmt.Fprintf(writer, "Exact:   %d\n", stats.ExactMatches)
		fmt.Fprintf(writer, "High:    %d\n", stats.HighMatches)
		fmt.Fprintf(writer, "Medium:  %d\n", stats.MediumMatches)
		fmt.Fprintf(writer, "Low:     %d\n", stats.LowMatches)
		fmt.Fprintf(writer, "Split:   %d\n", stats.MultiMatches)
		if result.PatternsUsed > 0 {
			fmt.Fprintf(writer, "Boosted by %d learned patterns: %d\n", result.PatternsUsed, stats.PatternBoosted)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeMatches && result.Match != nil && len(result.Match.Matches) > 0 {
		fmt.Fprintf(writer, "=== MATCHES ===\n")
		rg.printMatches(result.Match.Matches, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatched {
		unmatched := reconciler.UnmatchedStatementLines(session)
		if len(unmatched) > 0 {
			fmt.Fprintf(writer, "=== UNMATCHED STATEMENT LINES ===\n")
			rg.printStatementList(unmatched, writer)
			fmt.Fprintf(writer, "\n")
		}
	}

	if rg.config.IncludeSuggestions && len(result.Suggestions) > 0 {
		fmt.Fprintf(writer, "=== SUGGESTIONS ===\n")
		rg.printSuggestions(result.Suggestions, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeParseStats && result.ParseStats != nil {
		fmt.Fprintf(writer, "=== PARSING ===\n")
		fmt.Fprintf(writer, "Lines Read:    %d\n", result.ParseStats.TotalLines)
		fmt.Fprintf(writer, "Rows Accepted: %d of %d (%.1f%%)\n",
			result.ParseStats.RecordsValid, result.ParseStats.RecordsParsed, result.ParseStats.SuccessRate())
		fmt.Fprintf(writer, "\n")
	}

	if result.Record != nil {
		fmt.Fprintf(writer, "Saved as %s; learned %d patterns\n", result.Record.ID, result.PatternsLearned)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(writer, "WARNING: %s\n", w)
	}

	return nil
}

func (rg *ReportGenerator) printBalances(result *reconciler.WorkflowResult, writer io.Writer) {
	session := result.Session
	fmt.Fprintf(writer, "Opening Balance:  %s\n", money(session.OpeningBalance))
	fmt.Fprintf(writer, "Closing Balance:  %s\n", money(session.ClosingBalance))
	fmt.Fprintf(writer, "Discrepancy:      %s\n", money(result.Summary.Discrepancy))

	change := session.ClosingBalance - session.OpeningBalance
	if result.Summary.Discrepancy != 0 && change != 0 {
		pct := decimal.NewFromInt(models.AbsInt64(result.Summary.Discrepancy)).
			Div(decimal.NewFromInt(models.AbsInt64(change))).
			Mul(decimal.NewFromInt(100))
		fmt.Fprintf(writer, "Of Period Change: %s%%\n", pct.StringFixed(2))
	}
	if result.Summary.IsBalanced {
		fmt.Fprintf(writer, "Balanced:         yes\n")
	} else {
		fmt.Fprintf(writer, "Balanced:         no\n")
	}
}

func (rg *ReportGenerator) printMatches(matches []models.TransactionMatch, writer io.Writer) {
	for i, m := range matches {
		if i >= rg.config.MaxListItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(matches)-i)
			break
		}
		fmt.Fprintf(writer, "  %d. %s -> %s  %s (%.1f)  %s\n",
			i+1, m.StatementTransactionID, m.SystemTransactionID, m.Confidence, m.Score, strings.Join(m.Reasons, "; "))
	}
}

func (rg *ReportGenerator) printStatementList(lines []models.StatementTransaction, writer io.Writer) {
	fmt.Fprintf(writer, "Total: %d\n", len(lines))
	for i, tx := range lines {
		if i >= rg.config.MaxListItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(lines)-i)
			break
		}
		fmt.Fprintf(writer, "  %d. %s  %s  %12s  %s\n",
			i+1, tx.ID, tx.Date.Format(dateLayout), money(tx.Amount), tx.Description)
	}
}

func (rg *ReportGenerator) printSuggestions(suggestions []models.DiscrepancySuggestion, writer io.Writer) {
	for _, s := range suggestions {
		fix := ""
		if s.AutoFixable {
			fix = " [auto-fixable]"
		}
		fmt.Fprintf(writer, "  - %s (%d%%)%s: %s\n", s.Pattern, s.Confidence, fix, s.Description)
		fmt.Fprintf(writer, "    %s; amount %s; affects %s\n", s.SuggestedAction, money(s.Amount), strings.Join(s.AffectedTransactions, ", "))
	}
}

// generateCSVReport writes one row per statement line
func (rg *ReportGenerator) generateCSVReport(result *reconciler.WorkflowResult, writer io.Writer) error {
	type matchInfo struct {
		systemIDs  string
		confidence string
		score      string
		reasons    string
	}
	byStatement := make(map[string]matchInfo)
	if result.Match != nil {
		for _, m := range result.Match.Matches {
			byStatement[m.StatementTransactionID] = matchInfo{
				systemIDs:  m.SystemTransactionID,
				confidence: string(m.Confidence),
				score:      strconv.FormatFloat(m.Score, 'f', 2, 64),
				reasons:    strings.Join(m.Reasons, "; "),
			}
		}
		for _, m := range result.Match.MultiMatches {
			for _, id := range m.StatementTransactionIDs {
				byStatement[id] = matchInfo{
					systemIDs:  strings.Join(m.SystemTransactionIDs, " "),
					confidence: string(m.MatchType),
					score:      strconv.FormatFloat(m.Score, 'f', 2, 64),
					reasons:    strings.Join(m.Reasons, "; "),
				}
			}
		}
	}

	var rows [][]string
	for _, tx := range result.Session.Statement.Transactions {
		status := "Unmatched"
		if tx.Matched {
			status = "Matched"
			if !rg.config.IncludeMatches {
				continue
			}
		} else if !rg.config.IncludeUnmatched {
			continue
		}
		info := byStatement[tx.ID]
		if tx.Matched && info.systemIDs == "" {
			info.systemIDs = strings.Join(tx.SystemIDs(), " ")
			info.confidence = "MANUAL"
		}
		rows = append(rows, []string{
			status, tx.ID, tx.Date.Format(dateLayout), tx.Description, money(tx.Amount),
			info.systemIDs, info.confidence, info.score, info.reasons,
		})
	}

	return rg.writeCSV(writer, []string{
		"Status", "Statement_ID", "Date", "Description", "Amount", "System_IDs", "Confidence", "Score", "Reasons",
	}, rows)
}

// GenerateHistoryReport renders an account's reconciliation history
func (rg *ReportGenerator) GenerateHistoryReport(accountID string, history []models.RecordSummary, writer io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		return writeJSON(writer, history)
	case FormatCSV:
		rows := make([][]string, 0, len(history))
		for _, h := range history {
			rows = append(rows, []string{
				h.ID, string(h.Status), h.PeriodStart.Format(dateLayout), h.PeriodEnd.Format(dateLayout),
				money(h.OpeningBalance), money(h.ClosingBalance), money(h.Discrepancy),
				strconv.Itoa(h.MatchedCount), strconv.Itoa(h.UnmatchedCount), formatTime(h.CompletedAt), h.UserID,
			})
		}
		return rg.writeCSV(writer, []string{
			"ID", "Status", "Period_Start", "Period_End", "Opening", "Closing", "Discrepancy",
			"Matched", "Unmatched", "Completed_At", "User",
		}, rows)
	}

	fmt.Fprintf(writer, "RECONCILIATION HISTORY: %s\n\n", accountID)
	if len(history) == 0 {
		fmt.Fprintf(writer, "No reconciliations yet\n")
		return nil
	}
	for _, h := range history {
		fmt.Fprintf(writer, "%s  %s to %s  %-9s  closing %12s  discrepancy %10s  matched %d/%d\n",
			h.ID,
			h.PeriodStart.Format(dateLayout), h.PeriodEnd.Format(dateLayout),
			h.Status, money(h.ClosingBalance), money(h.Discrepancy),
			h.MatchedCount, h.MatchedCount+h.UnmatchedCount)
	}
	return nil
}

// GenerateStreakReport renders a reconciliation streak
func (rg *ReportGenerator) GenerateStreakReport(accountID string, streak *models.ReconciliationStreak, writer io.Writer) error {
	if streak == nil {
		return fmt.Errorf("streak cannot be nil")
	}

	switch rg.config.Format {
	case FormatJSON:
		return writeJSON(writer, streak)
	case FormatCSV:
		milestones := make([]string, 0, len(streak.MilestonesAchieved))
		for _, m := range streak.MilestonesAchieved {
			milestones = append(milestones, strconv.Itoa(m.Milestone))
		}
		return rg.writeCSV(writer, []string{
			"Account", "Current", "Best", "Status", "Last_Reconciled", "Next_Due", "Milestones",
		}, [][]string{{
			accountID, strconv.Itoa(streak.CurrentStreak), strconv.Itoa(streak.BestStreak), string(streak.StreakStatus),
			formatTime(streak.LastReconciliationDate), formatTime(streak.NextDueDate), strings.Join(milestones, " "),
		}})
	}

	fmt.Fprintf(writer, "RECONCILIATION STREAK: %s\n\n", accountID)
	fmt.Fprintf(writer, "Current Streak:   %d months\n", streak.CurrentStreak)
	fmt.Fprintf(writer, "Best Streak:      %d months\n", streak.BestStreak)
	fmt.Fprintf(writer, "Status:           %s\n", streak.StreakStatus)
	if streak.LastReconciliationDate != nil {
		fmt.Fprintf(writer, "Last Reconciled:  %s\n", streak.LastReconciliationDate.Format(dateLayout))
		fmt.Fprintf(writer, "Next Due:         %s\n", streak.NextDueDate.Format(dateLayout))
	}
	for _, m := range streak.MilestonesAchieved {
		fmt.Fprintf(writer, "Milestone:        %d months on %s\n", m.Milestone, m.AchievedAt.Format(dateLayout))
	}
	return nil
}

// GenerateUnreconciledReport renders the flagged entries of one account
func (rg *ReportGenerator) GenerateUnreconciledReport(accountID string, items []models.UnreconciledTransaction, writer io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		return writeJSON(writer, items)
	case FormatCSV:
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{
				it.TransactionID, it.Date.Format(dateLayout), strconv.Itoa(it.AgeDays), string(it.Flag), money(it.Amount), it.Description,
			})
		}
		return rg.writeCSV(writer, []string{"Transaction_ID", "Date", "Age_Days", "Flag", "Amount", "Description"}, rows)
	}

	fmt.Fprintf(writer, "UNRECONCILED TRANSACTIONS: %s\n\n", accountID)
	if len(items) == 0 {
		fmt.Fprintf(writer, "Nothing older than 30 days\n")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(writer, "  %-9s %4d days  %s  %12s  %s  %s\n",
			it.Flag, it.AgeDays, it.Date.Format(dateLayout), money(it.Amount), it.TransactionID, it.Description)
	}
	return nil
}

// GenerateDashboardReport renders the cross-account attention dashboard
func (rg *ReportGenerator) GenerateDashboardReport(dashboard *models.UnreconciledDashboard, writer io.Writer) error {
	if dashboard == nil {
		return fmt.Errorf("dashboard cannot be nil")
	}

	switch rg.config.Format {
	case FormatJSON:
		return writeJSON(writer, dashboard)
	case FormatCSV:
		rows := make([][]string, 0, len(dashboard.Accounts))
		for _, a := range dashboard.Accounts {
			rows = append(rows, []string{
				a.AccountID, a.AccountName,
				strconv.Itoa(a.Counts[models.FlagWarning]),
				strconv.Itoa(a.Counts[models.FlagAttention]),
				strconv.Itoa(a.Counts[models.FlagUrgent]),
				strconv.Itoa(a.OldestAgeDays),
			})
		}
		return rg.writeCSV(writer, []string{"Account_ID", "Account", "Warning", "Attention", "Urgent", "Oldest_Days"}, rows)
	}

	fmt.Fprintf(writer, "UNRECONCILED DASHBOARD: %s\n\n", dashboard.CompanyID)
	fmt.Fprintf(writer, "Total Flagged:  %d\n", dashboard.Total)
	fmt.Fprintf(writer, "  Warning:      %d\n", dashboard.Counts[models.FlagWarning])
	fmt.Fprintf(writer, "  Attention:    %d\n", dashboard.Counts[models.FlagAttention])
	fmt.Fprintf(writer, "  Urgent:       %d\n", dashboard.Counts[models.FlagUrgent])
	fmt.Fprintf(writer, "Oldest:         %d days\n\n", dashboard.OldestAgeDays)
	for _, a := range dashboard.Accounts {
		fmt.Fprintf(writer, "  %-20s W:%d A:%d U:%d  oldest %d days\n",
			a.AccountName, a.Counts[models.FlagWarning], a.Counts[models.FlagAttention], a.Counts[models.FlagUrgent], a.OldestAgeDays)
	}
	return nil
}

// GeneratePatternReport renders learned vendor patterns, most confident first
func (rg *ReportGenerator) GeneratePatternReport(patterns []*models.ReconciliationPattern, writer io.Writer) error {
	sorted := append([]*models.ReconciliationPattern(nil), patterns...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })

	switch rg.config.Format {
	case FormatJSON:
		return writeJSON(writer, sorted)
	case FormatCSV:
		rows := make([][]string, 0, len(sorted))
		for _, p := range sorted {
			rows = append(rows, []string{
				p.ID, p.VendorName, strconv.FormatFloat(p.Confidence, 'f', 1, 64), strconv.Itoa(p.MatchCount),
				money(p.TypicalAmountRange.Min), money(p.TypicalAmountRange.Max), strconv.Itoa(p.TypicalDayOfMonth),
				strings.Join(p.DescriptionPatterns, "|"),
			})
		}
		return rg.writeCSV(writer, []string{
			"ID", "Vendor", "Confidence", "Matches", "Amount_Min", "Amount_Max", "Typical_Day", "Description_Patterns",
		}, rows)
	}

	fmt.Fprintf(writer, "LEARNED PATTERNS: %d\n\n", len(sorted))
	for _, p := range sorted {
		fmt.Fprintf(writer, "  %-30s %5.1f%%  %3d matches  %s to %s  day %d\n",
			p.VendorName, p.Confidence, p.MatchCount,
			money(p.TypicalAmountRange.Min), money(p.TypicalAmountRange.Max), p.TypicalDayOfMonth)
	}
	return nil
}

// WriteError renders a failure. JSON output uses the same envelope as success.
func (rg *ReportGenerator) WriteError(writer io.Writer, err error) error {
	if rg.config.Format == FormatJSON {
		return json.NewEncoder(writer).Encode(errors.ResultOf[any](nil, err))
	}
	_, werr := fmt.Fprintf(writer, "Error: %v\n", err)
	return werr
}

func (rg *ReportGenerator) writeCSV(writer io.Writer, headers []string, rows [][]string) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, row := range rows {
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.WorkflowResult) map[string]interface{} {
	output := map[string]interface{}{
		"session_id": result.Session.ID,
		"status":     result.Session.Status,
		"summary":    result.Summary,
		"completed":  result.Completed,
		"duration":   result.Duration.String(),
	}

	if result.Match != nil {
		output["accuracy"] = result.Match.Accuracy
		output["statistics"] = result.Match.Statistics
		if rg.config.IncludeMatches {
			output["matches"] = result.Match.Matches
			output["multi_matches"] = result.Match.MultiMatches
		}
	}
	if rg.config.IncludeUnmatched {
		output["unmatched_statement_items"] = reconciler.UnmatchedStatementLines(result.Session)
	}
	if rg.config.IncludeSuggestions && result.Suggestions != nil {
		output["suggestions"] = result.Suggestions
	}
	if rg.config.IncludeParseStats && result.ParseStats != nil {
		output["parse_stats"] = result.ParseStats
	}
	if result.Record != nil {
		output["record_id"] = result.Record.ID
	}
	if len(result.Warnings) > 0 {
		output["warnings"] = result.Warnings
	}

	return output
}

func writeJSON(writer io.Writer, data interface{}) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(errors.ResultOf(data, nil))
}

func money(minor int64) string {
	return models.FormatMinorUnits(minor)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

// GenerateAccountReport renders the chart of accounts
func (rg *ReportGenerator) GenerateAccountReport(accounts []models.Account, writer io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		return writeJSON(writer, accounts)
	case FormatCSV:
		rows := make([][]string, 0, len(accounts))
		for _, a := range accounts {
			rows = append(rows, []string{a.ID, a.Name, string(a.Type), strconv.FormatBool(a.Active)})
		}
		return rg.writeCSV(writer, []string{"ID", "Name", "Type", "Active"}, rows)
	}

	if len(accounts) == 0 {
		fmt.Fprintf(writer, "No accounts\n")
		return nil
	}
	for _, a := range accounts {
		state := ""
		if !a.Active {
			state = " (inactive)"
		}
		fmt.Fprintf(writer, "  %-20s %-30s %s%s\n", a.ID, a.Name, a.Type, state)
	}
	return nil
}

// GenerateRecordReport renders one stored reconciliation
func (rg *ReportGenerator) GenerateRecordReport(record *models.ReconciliationRecord, writer io.Writer) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	switch rg.config.Format {
	case FormatJSON:
		return writeJSON(writer, record)
	case FormatCSV:
		return rg.writeCSV(writer, []string{
			"ID", "Account", "Status", "Opening", "Closing", "Calculated", "Discrepancy", "Matched", "Reopened_At", "Reopened_Reason",
		}, [][]string{{
			record.ID, record.AccountID, string(record.Status),
			money(record.OpeningBalance), money(record.ClosingBalance), money(record.CalculatedBalance), money(record.Discrepancy),
			strconv.Itoa(len(record.MatchedTransactions)), formatTime(record.ReopenedAt), record.ReopenedReason,
		}})
	}

	fmt.Fprintf(writer, "RECONCILIATION %s\n\n", record.ID)
	fmt.Fprintf(writer, "Account:          %s\n", record.AccountID)
	fmt.Fprintf(writer, "Period:           %s to %s\n",
		record.Statement.Period.StartDate.Format(dateLayout), record.Statement.Period.EndDate.Format(dateLayout))
	fmt.Fprintf(writer, "Status:           %s\n", record.Status)
	fmt.Fprintf(writer, "Closing Balance:  %s\n", money(record.ClosingBalance))
	fmt.Fprintf(writer, "Calculated:       %s\n", money(record.CalculatedBalance))
	fmt.Fprintf(writer, "Discrepancy:      %s\n", money(record.Discrepancy))
	fmt.Fprintf(writer, "Ledger Entries:   %d matched, %d unmatched\n",
		len(record.MatchedTransactions), len(record.UnmatchedBookTransactions))
	if record.ReopenedAt != nil {
		fmt.Fprintf(writer, "Reopened:         %s by %s: %s\n",
			record.ReopenedAt.Format(dateLayout), record.ReopenedBy, record.ReopenedReason)
	}
	return nil
}

// GenerateMessage renders the outcome of a command that has no report of its
// own. JSON output carries data; the other formats print message.
func (rg *ReportGenerator) GenerateMessage(writer io.Writer, message string, data interface{}) error {
	switch rg.config.Format {
	case FormatJSON:
		return writeJSON(writer, data)
	case FormatCSV:
		return rg.writeCSV(writer, []string{"Message"}, [][]string{{message}})
	}
	_, err := fmt.Fprintln(writer, message)
	return err
}
