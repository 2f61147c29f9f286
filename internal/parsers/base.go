// Package parsers turns raw CSV exports into the normalized values the
// reconciliation engine works with.
//
// Two parsers are provided:
//   - StatementParser: bank statement exports (Date, Description, Amount at minimum)
//   - LedgerParser: journal line exports used to seed the local ledger store
//
// Both share BaseParser, which handles delimiter detection, header mapping
// and the skip-and-continue policy: a row that cannot be read is recorded in
// ParseStats with its line number and parsing moves on. Only an input with no
// recoverable rows is a hard failure.
//
// Example usage:
//
//	parser := parsers.NewStatementParser(nil)
//	statement, stats, err := parser.ParseString(ctx, raw, parsers.ParseOptions{})
//	if err != nil {
//		return err
//	}
//	log.Infof("parsed %d rows, skipped %d", stats.RecordsValid, stats.Skipped())
package parsers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// ParseError represents an error that occurred while reading one row
type ParseError struct {
	Line    int
	Column  int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s='%s'): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s='%s'): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	// Delimiter forces a field separator. Zero means detect from the first line.
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	// MaxErrors aborts parsing once this many rows have failed. Zero means no limit.
	MaxErrors int
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        0,
		Comment:          '#',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxErrors:        0,
	}
}

// candidateDelimiters are tried in order; ties go to the earlier entry
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent(component)
	log.WithFields(logger.Fields{
		"delimiter":  string(config.Delimiter),
		"max_errors": config.MaxErrors,
	}).Debug("Created parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	Delimiter  rune
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[normalizeHeader(name)]; exists {
		return index
	}
	return -1
}

// OpenReader buffers the input, detects the delimiter and returns a configured csv.Reader
func (bp *BaseParser) OpenReader(r io.Reader, parseCtx *ParseContext) (*csv.Reader, error) {
	if r == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "statement", nil, nil)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "read input", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.ParseError(errors.CodeNoRows, 0, "", "", nil)
	}

	delimiter := bp.config.Delimiter
	if delimiter == 0 {
		delimiter = DetectDelimiter(firstLine(data))
	}
	parseCtx.Delimiter = delimiter

	bp.logger.WithFields(logger.Fields{
		"bytes":     len(data),
		"delimiter": string(delimiter),
	}).Debug("Opened input")

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader, nil
}

// ReadHeaders reads the first row and indexes it by normalized name.
// The raw row is returned so callers can fall back to treating it as data.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.ParseError(errors.CodeNoRows, 0, "", "", nil)
		}
		bp.logger.WithError(err).Error("Failed to read header row")
		return nil, errors.ParseError(errors.CodeInvalidFormat, 1, "headers", "", err)
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	parseCtx.HeaderMap = make(map[string]int, len(headers))
	for i, header := range headers {
		parseCtx.Headers[i] = strings.TrimSpace(header)
		key := normalizeHeader(header)
		if _, exists := parseCtx.HeaderMap[key]; !exists {
			parseCtx.HeaderMap[key] = i
		}
	}

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Read headers")
	return headers, nil
}

// ReadRecord reads the next non-empty record
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "csv parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			parseCtx.LineNumber++
			bp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read CSV record")
			return nil, err
		}
		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		return record, nil
	}
}

// GetFieldValue returns the trimmed value at index, or "" when the row is short
func (bp *BaseParser) GetFieldValue(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats summarizes a parse run
type ParseStats struct {
	TotalLines    int           `json:"total_lines"`
	RecordsParsed int           `json:"records_parsed"`
	RecordsValid  int           `json:"records_valid"`
	Errors        []*ParseError `json:"-"`
}

// NewParseStats creates an empty ParseStats
func NewParseStats() *ParseStats {
	return &ParseStats{Errors: make([]*ParseError, 0)}
}

// AddError records a skipped row
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
}

// Skipped returns how many rows were read but rejected
func (ps *ParseStats) Skipped() int {
	return ps.RecordsParsed - ps.RecordsValid
}

// SuccessRate returns the percentage of read rows that were accepted
func (ps *ParseStats) SuccessRate() float64 {
	if ps.RecordsParsed == 0 {
		return 0
	}
	return float64(ps.RecordsValid) / float64(ps.RecordsParsed) * 100
}

// DetectDelimiter picks the candidate separator that occurs most often
// outside quotes on the header line.
func DetectDelimiter(line string) rune {
	best := candidateDelimiters[0]
	bestCount := 0
	for _, candidate := range candidateDelimiters {
		count := 0
		inQuotes := false
		for _, r := range line {
			switch {
			case r == '"':
				inQuotes = !inQuotes
			case r == candidate && !inQuotes:
				count++
			}
		}
		if count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

func firstLine(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", "-", " ", ".", "").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}
