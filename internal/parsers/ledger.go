package parsers

import (
	"context"
	"io"
	"os"
	"strings"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// LedgerParser reads journal line exports (one row per posting line,
// grouped into entries by entry id) so a local ledger can be seeded.
type LedgerParser struct {
	*BaseParser
	aliases ColumnAliases
}

// NewLedgerParser creates a ledger parser. A nil config uses defaults.
func NewLedgerParser(config *ParseConfig) *LedgerParser {
	return &LedgerParser{
		BaseParser: NewBaseParser(config, "ledger_parser"),
		aliases:    DefaultLedgerAliases(),
	}
}

// ParseFile parses a journal export from disk
func (lp *LedgerParser) ParseFile(ctx context.Context, path, companyID string) ([]models.JournalEntry, *ParseStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.ValidationError(errors.CodeInvalidValue, "ledger file", path, err)
	}
	defer file.Close()
	return lp.Parse(ctx, file, companyID)
}

// Parse groups journal lines into entries. Entries that do not balance are
// dropped and reported in the stats.
func (lp *LedgerParser) Parse(ctx context.Context, r io.Reader, companyID string) ([]models.JournalEntry, *ParseStats, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, nil, errors.ValidationError(errors.CodeMissingField, "company_id", companyID, nil)
	}

	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	reader, err := lp.OpenReader(r, parseCtx)
	if err != nil {
		return nil, stats, err
	}
	if _, err := lp.ReadHeaders(reader, parseCtx); err != nil {
		return nil, stats, err
	}

	cols := ResolveLedgerColumns(parseCtx, lp.aliases)
	if missing := cols.Missing(); len(missing) > 0 {
		return nil, stats, errors.ParseError(errors.CodeMissingColumn, 1, strings.Join(missing, ", "), "", nil)
	}

	var order []string
	entries := make(map[string]*models.JournalEntry)
	firstLine := make(map[string]int)

	for {
		record, err := lp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if rerr, ok := errors.AsReconcilerError(err); ok && rerr.Code == errors.CodeCancelled {
				return nil, stats, rerr
			}
			stats.AddError(&ParseError{Line: parseCtx.LineNumber, Message: "failed to read record", Err: err})
			continue
		}
		stats.RecordsParsed++

		entryID := lp.GetFieldValue(record, cols.EntryID)
		if entryID == "" {
			stats.AddError(&ParseError{Line: parseCtx.LineNumber, Field: "entry_id", Message: "missing entry id"})
			continue
		}

		line, parseErr := lp.parseLine(record, parseCtx, cols)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		entry, exists := entries[entryID]
		if !exists {
			dateStr := lp.GetFieldValue(record, cols.Date)
			date, err := models.ParseTimeWithFormats(dateStr)
			if err != nil {
				stats.AddError(&ParseError{Line: parseCtx.LineNumber, Field: "date", Value: dateStr, Message: "invalid date", Err: err})
				continue
			}
			status := models.JournalStatus(strings.ToUpper(lp.GetFieldValue(record, cols.Status)))
			if status == "" {
				status = models.JournalStatusPending
			}
			entry = &models.JournalEntry{
				ID:        entryID,
				CompanyID: companyID,
				Date:      models.DateOnly(date),
				Memo:      lp.GetFieldValue(record, cols.Memo),
				Status:    status,
			}
			entries[entryID] = entry
			firstLine[entryID] = parseCtx.LineNumber
			order = append(order, entryID)
		}
		entry.Lines = append(entry.Lines, line)
		stats.RecordsValid++
	}
	stats.TotalLines = parseCtx.LineNumber

	result := make([]models.JournalEntry, 0, len(order))
	for _, id := range order {
		entry := entries[id]
		if err := entry.Validate(); err != nil {
			stats.AddError(&ParseError{Line: firstLine[id], Field: "entry_id", Value: id, Message: "entry rejected", Err: err})
			continue
		}
		result = append(result, *entry)
	}

	if len(result) == 0 {
		return nil, stats, errors.ParseError(errors.CodeNoRows, 0, "", "", nil)
	}

	lp.logger.WithFields(logger.Fields{
		"entries": len(result),
		"errors":  len(stats.Errors),
	}).Info("Parsed ledger export")

	return result, stats, nil
}

func (lp *LedgerParser) parseLine(record []string, parseCtx *ParseContext, cols LedgerColumns) (models.JournalLine, *ParseError) {
	accountID := lp.GetFieldValue(record, cols.AccountID)
	if accountID == "" {
		return models.JournalLine{}, &ParseError{Line: parseCtx.LineNumber, Field: "account_id", Message: "missing account id"}
	}

	parse := func(idx int, field string) (int64, *ParseError) {
		value := lp.GetFieldValue(record, idx)
		if value == "" {
			return 0, nil
		}
		amount, err := models.ParseMinorUnits(value)
		if err != nil {
			return 0, &ParseError{Line: parseCtx.LineNumber, Column: idx, Field: field, Value: value, Message: "invalid amount", Err: err}
		}
		return models.AbsInt64(amount), nil
	}

	debit, perr := parse(cols.Debit, "debit")
	if perr != nil {
		return models.JournalLine{}, perr
	}
	credit, perr := parse(cols.Credit, "credit")
	if perr != nil {
		return models.JournalLine{}, perr
	}
	return models.JournalLine{AccountID: accountID, Debit: debit, Credit: credit}, nil
}
