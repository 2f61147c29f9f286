// Package fixtures generates paired ledger and bank statement exports for
// exercising reconciliation end to end. Every scenario carries the outcome a
// reconciliation of its files should reach.
package fixtures

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"reconciliation-engine/internal/models"
)

const (
	dateLayout = "2006-01-02"

	// DefaultBankAccount is the ledger account the generated statements belong to
	DefaultBankAccount = "bank"
)

var (
	journalHeader   = []string{"entry_id", "date", "memo", "account_id", "debit", "credit", "status"}
	statementHeader = []string{"Date", "Description", "Amount", "Balance"}

	vendors = []string{
		"ACME SUPPLIES", "OFFICE DEPOT", "CITY UTILITIES", "STAPLES", "AMAZON MARKETPLACE",
		"GOOGLE WORKSPACE", "DELTA AIR", "SHELL OIL", "VERIZON WIRELESS", "FEDEX SHIPPING",
	}
	customers = []string{
		"CLIENT PAYMENT NORTHWIND", "CLIENT PAYMENT CONTOSO", "STRIPE PAYOUT", "WIRE IN FABRIKAM",
	}
)

// Expected is what reconciling a scenario should produce
type Expected struct {
	Matched     int
	Unmatched   int
	Discrepancy int64
	Balanced    bool
}

// Scenario is one ledger export and the statement that should reconcile
// against it
type Scenario struct {
	Name      string
	AccountID string
	Opening   int64
	Journal   [][]string
	Statement [][]string
	Expected  Expected
}

// Config bounds the generated amounts and dates
type Config struct {
	AccountID string
	StartDate time.Time
	Days      int
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	Opening   decimal.Decimal
}

// DefaultConfig returns a one-month window of amounts between 5.00 and 2,500.00
func DefaultConfig() *Config {
	return &Config{
		AccountID: DefaultBankAccount,
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Days:      28,
		MinAmount: decimal.NewFromInt(5),
		MaxAmount: decimal.NewFromInt(2500),
		Opening:   decimal.NewFromInt(10000),
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.AccountID == "" {
		return fmt.Errorf("account id is required")
	}
	if c.Days < 1 {
		return fmt.Errorf("days must be at least 1: %d", c.Days)
	}
	if !c.MinAmount.IsPositive() || c.MaxAmount.LessThan(c.MinAmount) {
		return fmt.Errorf("invalid amount range %s to %s", c.MinAmount.StringFixed(2), c.MaxAmount.StringFixed(2))
	}
	return nil
}

// Generator builds scenarios. The same seed always yields the same files.
type Generator struct {
	config *Config
	rng    *rand.Rand
	seq    int
	used   map[int64]bool
}

// NewGenerator creates a generator; a nil config uses DefaultConfig
func NewGenerator(seed int64, config *Config) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		used:   make(map[int64]bool),
	}, nil
}

// line is one bank movement with the ledger entries that book it
type line struct {
	date        time.Time
	description string
	amount      int64
	booked      []booking
}

type booking struct {
	date   time.Time
	memo   string
	amount int64
}

// Clean returns n movements that each match one ledger entry exactly
func (g *Generator) Clean(n int) *Scenario {
	lines := make([]line, 0, n)
	for i := 0; i < n; i++ {
		lines = append(lines, g.exactLine())
	}
	return g.build("clean", lines, Expected{Matched: n, Balanced: true})
}

// BankFee returns a clean statement plus a service fee nobody booked
func (g *Generator) BankFee(n int) *Scenario {
	lines := make([]line, 0, n+1)
	for i := 0; i < n; i++ {
		lines = append(lines, g.exactLine())
	}
	fee := int64(-1500)
	lines = append(lines, line{
		date:        g.lastDay(),
		description: "MONTHLY SERVICE FEE",
		amount:      fee,
	})
	return g.build("bank-fee", lines, Expected{Matched: n, Unmatched: 1, Discrepancy: fee})
}

// Timing returns movements the ledger booked two days before the bank
// cleared them
func (g *Generator) Timing(n int) *Scenario {
	lines := make([]line, 0, n)
	for i := 0; i < n; i++ {
		l := g.exactLine()
		l.booked[0].date = l.date.AddDate(0, 0, -2)
		lines = append(lines, l)
	}
	return g.build("timing", lines, Expected{Matched: n, Balanced: true})
}

// SplitDeposit returns one bank deposit that the ledger booked as two invoices
func (g *Generator) SplitDeposit() *Scenario {
	date := g.config.StartDate.AddDate(0, 0, 14)
	first, second := g.uniqueAmount(), g.uniqueAmount()
	lines := []line{{
		date:        date,
		description: "DEPOSIT",
		amount:      first + second,
		booked: []booking{
			{date: date, memo: g.invoiceMemo(), amount: first},
			{date: date, memo: g.invoiceMemo(), amount: second},
		},
	}}
	return g.build("split-deposit", lines, Expected{Matched: 1, Balanced: true})
}

// Volume returns n exact movements spread across the window, for load runs
func (g *Generator) Volume(n int) *Scenario {
	s := g.Clean(n)
	s.Name = "volume"
	return s
}

// All returns one of each scenario
func (g *Generator) All() []*Scenario {
	return []*Scenario{g.Clean(20), g.BankFee(10), g.Timing(10), g.SplitDeposit()}
}

func (g *Generator) exactLine() line {
	date := g.config.StartDate.AddDate(0, 0, g.rng.Intn(g.config.Days))
	amount := g.uniqueAmount()

	var description string
	if g.rng.Float64() < 0.6 {
		// 60% outflows
		amount = -amount
		description = fmt.Sprintf("%s #%04d", vendors[g.rng.Intn(len(vendors))], g.rng.Intn(10000))
	} else {
		description = customers[g.rng.Intn(len(customers))]
	}

	return line{
		date:        date,
		description: description,
		amount:      amount,
		booked:      []booking{{date: date, memo: description, amount: amount}},
	}
}

// uniqueAmount returns a positive amount in range that no earlier line used,
// so exact matching never has to break ties
func (g *Generator) uniqueAmount() int64 {
	span := g.config.MaxAmount.Sub(g.config.MinAmount)
	for {
		d := decimal.NewFromFloat(g.rng.Float64()).Mul(span).Add(g.config.MinAmount).Round(2)
		minor := d.Shift(2).IntPart()
		if minor > 0 && !g.used[minor] {
			g.used[minor] = true
			return minor
		}
	}
}

func (g *Generator) invoiceMemo() string {
	g.seq++
	return fmt.Sprintf("Invoice %d", 1000+g.seq)
}

func (g *Generator) lastDay() time.Time {
	return g.config.StartDate.AddDate(0, 0, g.config.Days-1)
}

func (g *Generator) nextEntryID() string {
	g.seq++
	return fmt.Sprintf("JE%06d", g.seq)
}

func (g *Generator) build(name string, lines []line, expected Expected) *Scenario {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].date.Before(lines[j].date) })

	opening := g.config.Opening.Shift(2).IntPart()
	s := &Scenario{
		Name:      name,
		AccountID: g.config.AccountID,
		Opening:   opening,
		Journal:   [][]string{journalHeader},
		Statement: [][]string{statementHeader},
		Expected:  expected,
	}

	balance := opening
	for _, l := range lines {
		balance += l.amount
		s.Statement = append(s.Statement, []string{
			l.date.Format(dateLayout), l.description, models.FormatMinorUnits(l.amount), models.FormatMinorUnits(balance),
		})
		for _, b := range l.booked {
			s.Journal = append(s.Journal, g.journalRows(b)...)
		}
	}
	return s
}

// journalRows books amount against the bank account with a balancing line
// on an income or expense account
func (g *Generator) journalRows(b booking) [][]string {
	id := g.nextEntryID()
	date := b.date.Format(dateLayout)
	magnitude := models.FormatMinorUnits(models.AbsInt64(b.amount))

	if b.amount >= 0 {
		return [][]string{
			{id, date, b.memo, g.config.AccountID, magnitude, "", string(models.JournalStatusCleared)},
			{id, date, b.memo, "revenue", "", magnitude, string(models.JournalStatusCleared)},
		}
	}
	return [][]string{
		{id, date, b.memo, "expenses", magnitude, "", string(models.JournalStatusCleared)},
		{id, date, b.memo, g.config.AccountID, "", magnitude, string(models.JournalStatusCleared)},
	}
}

// Closing is the statement's closing balance
func (s *Scenario) Closing() int64 {
	closing := s.Opening
	for _, row := range s.Statement[1:] {
		amount, err := models.ParseMinorUnits(row[2])
		if err == nil {
			closing += amount
		}
	}
	return closing
}

// Write stores the scenario as <name>_journal.csv and <name>_statement.csv
// under dir and returns both paths
func (s *Scenario) Write(dir string) (journalPath, statementPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	journalPath = filepath.Join(dir, s.Name+"_journal.csv")
	if err := writeCSV(journalPath, s.Journal); err != nil {
		return "", "", err
	}
	statementPath = filepath.Join(dir, s.Name+"_statement.csv")
	if err := writeCSV(statementPath, s.Statement); err != nil {
		return "", "", err
	}
	return journalPath, statementPath, nil
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
