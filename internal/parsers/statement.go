package parsers

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// StatementFormatCSV is the only statement format currently understood
const StatementFormatCSV = "csv"

// ParseOptions carries caller overrides that win over anything detected in the file
type ParseOptions struct {
	OpeningBalance *int64
	ClosingBalance *int64
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// StatementParser parses bank statement exports
type StatementParser struct {
	*BaseParser
	aliases ColumnAliases
}

// NewStatementParser creates a statement parser. A nil config uses defaults.
func NewStatementParser(config *ParseConfig) *StatementParser {
	return &StatementParser{
		BaseParser: NewBaseParser(config, "statement_parser"),
		aliases:    DefaultStatementAliases(),
	}
}

// WithAliases returns a parser that also recognizes extra header spellings
func (sp *StatementParser) WithAliases(extra ColumnAliases) *StatementParser {
	merged := DefaultStatementAliases()
	for column, names := range extra {
		merged[column] = append(merged[column], names...)
	}
	return &StatementParser{BaseParser: sp.BaseParser, aliases: merged}
}

// ParseString parses raw statement text
func (sp *StatementParser) ParseString(ctx context.Context, raw string, opts ParseOptions) (*models.ParsedStatement, *ParseStats, error) {
	return sp.Parse(ctx, strings.NewReader(raw), opts)
}

// ParseFile parses a statement file from disk
func (sp *StatementParser) ParseFile(ctx context.Context, path string, opts ParseOptions) (*models.ParsedStatement, *ParseStats, error) {
	file, err := os.Open(path)
	if err != nil {
		sp.logger.WithError(err).WithField("file_path", path).Error("Failed to open statement file")
		return nil, nil, errors.ValidationError(errors.CodeInvalidValue, "statement file", path, err).
			WithSuggestion("check that the file exists and is readable")
	}
	defer file.Close()

	return sp.Parse(ctx, file, opts)
}

type statementRow struct {
	tx         models.StatementTransaction
	balance    int64
	hasBalance bool
}

// Parse reads a statement into a ParsedStatement. Rows with unreadable
// dates or amounts are skipped and reported in the stats; the call only
// fails when no row survives.
func (sp *StatementParser) Parse(ctx context.Context, r io.Reader, opts ParseOptions) (*models.ParsedStatement, *ParseStats, error) {
	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	reader, err := sp.OpenReader(r, parseCtx)
	if err != nil {
		return nil, stats, err
	}

	headerRow, err := sp.ReadHeaders(reader, parseCtx)
	if err != nil {
		return nil, stats, err
	}

	var pending [][]string
	cols := ResolveStatementColumns(parseCtx, sp.aliases)
	if missing := cols.Missing(); len(missing) > 0 {
		inferred, ok := InferStatementColumns(headerRow)
		if !ok {
			sp.logger.WithFields(logger.Fields{
				"missing_columns":   missing,
				"available_headers": parseCtx.Headers,
			}).Error("Required statement columns are missing")
			return nil, stats, errors.ParseError(errors.CodeMissingColumn, 1, strings.Join(missing, ", "), "", nil)
		}
		sp.logger.Debug("No recognizable header, inferring column order from the first row")
		cols = inferred
		pending = append(pending, headerRow)
	}

	var rows []statementRow
	seenIDs := make(map[string]int)

	handle := func(record []string) {
		stats.RecordsParsed++
		row, parseErr := sp.parseRow(record, parseCtx, cols)
		if parseErr != nil {
			stats.AddError(parseErr)
			sp.logger.WithFields(logger.Fields{
				"line":  parseErr.Line,
				"field": parseErr.Field,
				"value": parseErr.Value,
			}).Warn("Skipping unreadable statement row")
			return
		}
		if row.tx.ID == "" {
			row.tx.ID = fmt.Sprintf("stmt-%d", len(rows)+1)
		}
		if n := seenIDs[row.tx.ID]; n > 0 {
			seenIDs[row.tx.ID] = n + 1
			row.tx.ID = fmt.Sprintf("%s-%d", row.tx.ID, n+1)
		} else {
			seenIDs[row.tx.ID] = 1
		}
		rows = append(rows, row)
		stats.RecordsValid++
	}

	for _, record := range pending {
		handle(record)
	}

	for {
		record, err := sp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if rerr, ok := errors.AsReconcilerError(err); ok && rerr.Code == errors.CodeCancelled {
				return nil, stats, rerr
			}
			stats.RecordsParsed++
			stats.AddError(&ParseError{Line: parseCtx.LineNumber, Message: "failed to read record", Err: err})
			continue
		}
		handle(record)

		if sp.config.MaxErrors > 0 && len(stats.Errors) >= sp.config.MaxErrors {
			sp.logger.WithField("errors", len(stats.Errors)).Warn("Too many unreadable rows, stopping")
			break
		}
	}
	stats.TotalLines = parseCtx.LineNumber

	if len(rows) == 0 {
		return nil, stats, errors.ParseError(errors.CodeNoRows, 0, "", "", nil).
			WithContext("skipped_rows", len(stats.Errors))
	}

	statement := sp.buildStatement(rows, opts)

	sp.logger.WithFields(logger.Fields{
		"transactions": len(statement.Transactions),
		"skipped":      stats.Skipped(),
		"period_start": statement.Period.StartDate.Format("2006-01-02"),
		"period_end":   statement.Period.EndDate.Format("2006-01-02"),
	}).Info("Parsed bank statement")

	return statement, stats, nil
}

func (sp *StatementParser) parseRow(record []string, parseCtx *ParseContext, cols StatementColumns) (statementRow, *ParseError) {
	var row statementRow

	dateStr := sp.GetFieldValue(record, cols.Date)
	date, err := models.ParseTimeWithFormats(dateStr)
	if err != nil {
		return row, &ParseError{Line: parseCtx.LineNumber, Column: cols.Date, Field: "date", Value: dateStr, Message: "invalid date", Err: err}
	}

	amount, field, value, err := sp.rowAmount(record, cols)
	if err != nil {
		return row, &ParseError{Line: parseCtx.LineNumber, Column: cols.Amount, Field: field, Value: value, Message: "invalid amount", Err: err}
	}

	row.tx = models.StatementTransaction{
		ID:          sp.GetFieldValue(record, cols.ID),
		Date:        models.DateOnly(date),
		Description: strings.Join(strings.Fields(sp.GetFieldValue(record, cols.Description)), " "),
		Amount:      amount,
	}

	if cols.Balance >= 0 {
		if balance, err := models.ParseMinorUnits(sp.GetFieldValue(record, cols.Balance)); err == nil {
			row.balance = balance
			row.hasBalance = true
		}
	}
	return row, nil
}

// rowAmount reads a signed amount from either a single column or a debit/credit pair
func (sp *StatementParser) rowAmount(record []string, cols StatementColumns) (int64, string, string, error) {
	if cols.Amount >= 0 {
		value := sp.GetFieldValue(record, cols.Amount)
		amount, err := models.ParseMinorUnits(value)
		return amount, "amount", value, err
	}

	debitStr := sp.GetFieldValue(record, cols.Debit)
	creditStr := sp.GetFieldValue(record, cols.Credit)
	if debitStr == "" && creditStr == "" {
		return 0, "amount", "", fmt.Errorf("both debit and credit are empty")
	}

	var debit, credit int64
	var err error
	if debitStr != "" {
		if debit, err = models.ParseMinorUnits(debitStr); err != nil {
			return 0, "debit", debitStr, err
		}
	}
	if creditStr != "" {
		if credit, err = models.ParseMinorUnits(creditStr); err != nil {
			return 0, "credit", creditStr, err
		}
	}
	return models.AbsInt64(credit) - models.AbsInt64(debit), "amount", "", nil
}

func (sp *StatementParser) buildStatement(rows []statementRow, opts ParseOptions) *models.ParsedStatement {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].tx.Date.Before(rows[j].tx.Date)
	})

	statement := &models.ParsedStatement{
		Format:       StatementFormatCSV,
		Transactions: make([]models.StatementTransaction, len(rows)),
	}
	for i, row := range rows {
		statement.Transactions[i] = row.tx
	}

	statement.Period = models.StatementPeriod{
		StartDate: rows[0].tx.Date,
		EndDate:   rows[len(rows)-1].tx.Date,
	}

	// Running balances give both ends of the statement.
	first, last := -1, -1
	for i, row := range rows {
		if !row.hasBalance {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first >= 0 {
		statement.OpeningBalance = rows[first].balance - rows[first].tx.Amount
		statement.ClosingBalance = rows[last].balance
	}

	if opts.OpeningBalance != nil {
		statement.OpeningBalance = *opts.OpeningBalance
	}
	if opts.ClosingBalance != nil {
		statement.ClosingBalance = *opts.ClosingBalance
	}
	if opts.PeriodStart != nil {
		statement.Period.StartDate = models.DateOnly(*opts.PeriodStart)
	}
	if opts.PeriodEnd != nil {
		statement.Period.EndDate = models.DateOnly(*opts.PeriodEnd)
	}

	return statement
}
