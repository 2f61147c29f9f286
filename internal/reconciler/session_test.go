package reconciler

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/pkg/errors"
)

const bankAccount = "acct-bank"

var testNow = time.Date(2024, time.February, 1, 9, 0, 0, 0, time.UTC)

func day(month time.Month, d int) time.Time {
	return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
}

func deposit(id string, date time.Time, amount int64) models.JournalEntry {
	return models.JournalEntry{
		ID:     id,
		Date:   date,
		Status: models.JournalStatusCleared,
		Lines: []models.JournalLine{
			{AccountID: bankAccount, Debit: amount},
			{AccountID: "acct-income", Credit: amount},
		},
	}
}

func newSession(t *testing.T, opening, closing int64, txs ...models.StatementTransaction) *models.ReconciliationSession {
	t.Helper()
	session, err := CreateReconciliation(CreateParams{
		CompanyID: "co-1",
		AccountID: bankAccount,
		Statement: models.ParsedStatement{
			OpeningBalance: opening,
			ClosingBalance: closing,
			Transactions:   txs,
		},
	}, testNow)
	if err != nil {
		t.Fatalf("CreateReconciliation() error = %v", err)
	}
	return session
}

func threeLines() []models.StatementTransaction {
	return []models.StatementTransaction{
		{ID: "stmt-1", Date: day(1, 5), Description: "DEPOSIT A", Amount: 1000},
		{ID: "stmt-2", Date: day(1, 6), Description: "DEPOSIT B", Amount: 2000},
		{ID: "stmt-3", Date: day(1, 7), Description: "DEPOSIT C", Amount: 3000},
	}
}

func match(stmtID, sysID string) models.TransactionMatch {
	return models.TransactionMatch{StatementTransactionID: stmtID, SystemTransactionID: sysID, Confidence: models.ConfidenceExact, Score: 100}
}

func assertCategory(t *testing.T, err error, category errors.ErrorCategory) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", category)
	}
	if !errors.IsCategory(err, category) {
		t.Fatalf("Expected %s error, got %v", category, err)
	}
}

func assertPartition(t *testing.T, s *models.ReconciliationSession) {
	t.Helper()
	unmatched := make(map[string]bool)
	for _, id := range s.UnmatchedStatementItems {
		if unmatched[id] {
			t.Fatalf("duplicate unmatched id %s", id)
		}
		unmatched[id] = true
	}
	for _, tx := range s.Statement.Transactions {
		if tx.Matched == unmatched[tx.ID] {
			t.Fatalf("statement %s matched=%v but unmatched membership=%v", tx.ID, tx.Matched, unmatched[tx.ID])
		}
	}
	if len(unmatched) > len(s.Statement.Transactions) {
		t.Fatalf("unmatched set has ids outside the statement")
	}

	referenced := make(map[string]bool)
	for _, tx := range s.Statement.Transactions {
		if tx.Matched {
			for _, id := range tx.SystemIDs() {
				referenced[id] = true
			}
		}
	}
	seen := make(map[string]bool)
	for _, id := range s.MatchedTransactions {
		if seen[id] {
			t.Fatalf("duplicate matched system id %s", id)
		}
		seen[id] = true
		if !referenced[id] {
			t.Fatalf("matched system id %s not referenced by any statement line", id)
		}
	}
}

func TestCreateReconciliation(t *testing.T) {
	s := newSession(t, 100000, 106000, threeLines()...)

	if s.Status != models.StatusDraft {
		t.Errorf("Expected DRAFT, got %s", s.Status)
	}
	if s.ID == "" {
		t.Error("Expected a generated id")
	}
	if len(s.MatchedTransactions) != 0 {
		t.Errorf("Expected no matched transactions, got %v", s.MatchedTransactions)
	}
	if want := []string{"stmt-1", "stmt-2", "stmt-3"}; !reflect.DeepEqual(s.UnmatchedStatementItems, want) {
		t.Errorf("Expected unmatched %v, got %v", want, s.UnmatchedStatementItems)
	}
	if s.OpeningBalance != 100000 || s.ClosingBalance != 106000 {
		t.Errorf("Expected balances from the statement, got %d/%d", s.OpeningBalance, s.ClosingBalance)
	}
	assertPartition(t, s)
}

func TestCreateReconciliationValidation(t *testing.T) {
	tests := []struct {
		name   string
		params CreateParams
	}{
		{"missing company", CreateParams{AccountID: bankAccount}},
		{"missing account", CreateParams{CompanyID: "co-1"}},
		{"missing line id", CreateParams{CompanyID: "co-1", AccountID: bankAccount, Statement: models.ParsedStatement{
			Transactions: []models.StatementTransaction{{Amount: 1}},
		}}},
		{"duplicate line id", CreateParams{CompanyID: "co-1", AccountID: bankAccount, Statement: models.ParsedStatement{
			Transactions: []models.StatementTransaction{{ID: "a"}, {ID: "a"}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateReconciliation(tt.params, testNow)
			assertCategory(t, err, errors.CategoryValidation)
		})
	}
}

func TestApplyMatchesEmptyIsIdentity(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)

	out, err := ApplyMatches(s, nil)
	if err != nil {
		t.Fatalf("ApplyMatches() error = %v", err)
	}
	if !reflect.DeepEqual(s, out) {
		t.Errorf("Expected an equal session, got %+v", out)
	}
	if out == s {
		t.Error("Expected a new session value")
	}
}

func TestApplyMatchesIsIdempotentPerMatch(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)

	once, err := ApplyMatches(s, []models.TransactionMatch{match("stmt-1", "je-1")})
	if err != nil {
		t.Fatalf("ApplyMatches() error = %v", err)
	}
	twice, err := ApplyMatches(once, []models.TransactionMatch{match("stmt-1", "je-1")})
	if err != nil {
		t.Fatalf("ApplyMatches() second error = %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Expected re-applying a match to be a no-op")
	}
	if s.Statement.Transactions[0].Matched {
		t.Error("ApplyMatches mutated its input")
	}
}

func TestApplyMatchesUnknownStatement(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)
	_, err := ApplyMatches(s, []models.TransactionMatch{match("stmt-9", "je-1")})
	assertCategory(t, err, errors.CategoryNotFound)
}

func TestApplyMultiMatches(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)

	out, err := ApplyMultiMatches(s, []models.MultiTransactionMatch{{
		MatchType:               models.MatchSplitDeposit,
		SystemTransactionIDs:    []string{"je-1", "je-2"},
		StatementTransactionIDs: []string{"stmt-3"},
	}})
	if err != nil {
		t.Fatalf("ApplyMultiMatches() error = %v", err)
	}

	tx := out.Statement.Transactions[2]
	if !tx.Matched || !reflect.DeepEqual(tx.SystemIDs(), []string{"je-1", "je-2"}) {
		t.Errorf("Expected stmt-3 matched to both entries, got %+v", tx)
	}
	if !reflect.DeepEqual(out.MatchedTransactions, []string{"je-1", "je-2"}) {
		t.Errorf("Expected matched transactions [je-1 je-2], got %v", out.MatchedTransactions)
	}
	assertPartition(t, out)

	removed, err := RemoveMatch(out, "stmt-3")
	if err != nil {
		t.Fatalf("RemoveMatch() error = %v", err)
	}
	if len(removed.MatchedTransactions) != 0 {
		t.Errorf("Expected split members released, got %v", removed.MatchedTransactions)
	}
}

func TestAddManualMatch(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)

	out, err := AddManualMatch(s, "stmt-2", "je-7")
	if err != nil {
		t.Fatalf("AddManualMatch() error = %v", err)
	}
	if !out.Statement.Transactions[1].Matched || out.Statement.Transactions[1].MatchedTransactionID != "je-7" {
		t.Errorf("Expected stmt-2 matched to je-7, got %+v", out.Statement.Transactions[1])
	}

	_, err = AddManualMatch(out, "stmt-2", "je-8")
	assertCategory(t, err, errors.CategoryConstraint)
	if rerr, _ := errors.AsReconcilerError(err); rerr.Message != "This transaction is already matched" {
		t.Errorf("Expected a specific message, got %q", rerr.Message)
	}

	_, err = AddManualMatch(out, "stmt-missing", "je-8")
	assertCategory(t, err, errors.CategoryNotFound)

	_, err = AddManualMatch(out, "stmt-1", "")
	assertCategory(t, err, errors.CategoryValidation)
}

func TestRemoveMatchRoundTrip(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)

	matched, err := ApplyMatches(s, []models.TransactionMatch{match("stmt-1", "je-1"), match("stmt-2", "je-2")})
	if err != nil {
		t.Fatalf("ApplyMatches() error = %v", err)
	}
	out, err := RemoveMatch(matched, "stmt-1")
	if err != nil {
		t.Fatalf("RemoveMatch() error = %v", err)
	}

	found := false
	for _, id := range out.UnmatchedStatementItems {
		if id == "stmt-1" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected stmt-1 back in unmatched items, got %v", out.UnmatchedStatementItems)
	}
	if !reflect.DeepEqual(out.MatchedTransactions, []string{"je-2"}) {
		t.Errorf("Expected je-1 removed from matched transactions, got %v", out.MatchedTransactions)
	}

	_, err = RemoveMatch(out, "stmt-1")
	assertCategory(t, err, errors.CategoryConstraint)

	_, err = RemoveMatch(out, "stmt-missing")
	assertCategory(t, err, errors.CategoryNotFound)
}

func TestRemoveMatchKeepsSharedSystemID(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)
	s, _ = AddManualMatch(s, "stmt-1", "je-1")
	s, _ = AddManualMatch(s, "stmt-2", "je-1")

	out, err := RemoveMatch(s, "stmt-1")
	if err != nil {
		t.Fatalf("RemoveMatch() error = %v", err)
	}
	if !reflect.DeepEqual(out.MatchedTransactions, []string{"je-1"}) {
		t.Errorf("Expected je-1 kept while stmt-2 still uses it, got %v", out.MatchedTransactions)
	}
	assertPartition(t, out)
}

func TestPartitionHoldsUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	lines := make([]models.StatementTransaction, 12)
	for i := range lines {
		lines[i] = models.StatementTransaction{ID: "stmt-" + string(rune('a'+i)), Date: day(1, i+1), Amount: int64(100 * (i + 1))}
	}
	s := newSession(t, 0, 0, lines...)

	for step := 0; step < 500; step++ {
		stmtID := lines[rng.Intn(len(lines))].ID
		sysID := "je-" + string(rune('a'+rng.Intn(8)))

		var next *models.ReconciliationSession
		var err error
		switch rng.Intn(3) {
		case 0:
			next, err = ApplyMatches(s, []models.TransactionMatch{match(stmtID, sysID)})
		case 1:
			next, err = AddManualMatch(s, stmtID, sysID)
		default:
			next, err = RemoveMatch(s, stmtID)
		}
		if err == nil {
			s = next
		}
		assertPartition(t, s)
	}
}

func TestDraftOnlyEdits(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)
	completed, err := CompleteReconciliation(s, "", testNow)
	if err != nil {
		t.Fatalf("CompleteReconciliation() error = %v", err)
	}

	_, err = ApplyMatches(completed, []models.TransactionMatch{match("stmt-1", "je-1")})
	assertCategory(t, err, errors.CategoryConstraint)
	_, err = AddManualMatch(completed, "stmt-1", "je-1")
	assertCategory(t, err, errors.CategoryConstraint)
}

func TestCalculateDiscrepancyBalanced(t *testing.T) {
	s := newSession(t, 100000, 105000, models.StatementTransaction{
		ID: "stmt-1", Amount: 5000, Date: day(1, 15), Description: "DEPOSIT",
	})
	system := []models.JournalEntry{deposit("je-1", day(1, 15), 5000)}

	s, err := ApplyMatches(s, []models.TransactionMatch{match("stmt-1", "je-1")})
	if err != nil {
		t.Fatalf("ApplyMatches() error = %v", err)
	}

	if got := CalculateDiscrepancy(s, system, bankAccount); got != 0 {
		t.Errorf("Expected discrepancy 0, got %d", got)
	}
	s = WithDiscrepancy(s, system, bankAccount)
	summary := GetReconciliationSummary(s)
	if !summary.IsBalanced {
		t.Errorf("Expected balanced summary, got %+v", summary)
	}
}

func TestCalculateDiscrepancyUnmatched(t *testing.T) {
	s := newSession(t, 100000, 106000, threeLines()...)
	system := []models.JournalEntry{deposit("je-1", day(1, 5), 1000), deposit("je-2", day(1, 6), 2000)}

	s, _ = ApplyMatches(s, []models.TransactionMatch{match("stmt-1", "je-1")})
	if got := CalculateDiscrepancy(s, system, bankAccount); got != 5000 {
		t.Errorf("Expected discrepancy 5000, got %d", got)
	}

	s = WithDiscrepancy(s, system, bankAccount)
	if GetReconciliationSummary(s).IsBalanced {
		t.Error("Expected an unbalanced summary")
	}
}

func TestSummaryBalancedTolerance(t *testing.T) {
	tests := []struct {
		discrepancy int64
		balanced    bool
	}{
		{0, true},
		{99, true},
		{-99, true},
		{100, false},
		{-100, false},
	}
	for _, tt := range tests {
		s := newSession(t, 0, 0)
		s.Discrepancy = tt.discrepancy
		if got := GetReconciliationSummary(s).IsBalanced; got != tt.balanced {
			t.Errorf("discrepancy %d: IsBalanced = %v, want %v", tt.discrepancy, got, tt.balanced)
		}
	}
}

func TestSummaryPartialMatch(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)
	s, err := ApplyMatches(s, []models.TransactionMatch{match("stmt-1", "je-1"), match("stmt-2", "je-2")})
	if err != nil {
		t.Fatalf("ApplyMatches() error = %v", err)
	}

	summary := GetReconciliationSummary(s)
	if summary.MatchedCount != 2 || summary.UnmatchedStatementCount != 1 || summary.MatchRate != 67 {
		t.Errorf("Expected 2 matched, 1 unmatched, rate 67; got %+v", summary)
	}
	if summary.MatchedAmount != 3000 || summary.UnmatchedAmount != 3000 {
		t.Errorf("Expected matched/unmatched amounts 3000/3000, got %d/%d", summary.MatchedAmount, summary.UnmatchedAmount)
	}
}

func TestCompleteReconciliation(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)

	completed, err := CompleteReconciliation(s, "March close", testNow)
	if err != nil {
		t.Fatalf("CompleteReconciliation() error = %v", err)
	}
	if completed.Status != models.StatusCompleted || completed.Notes != "March close" {
		t.Errorf("Unexpected completed session: %+v", completed)
	}
	if completed.CompletedAt == nil || !completed.CompletedAt.Equal(testNow) {
		t.Errorf("Expected completed_at %v, got %v", testNow, completed.CompletedAt)
	}
	if s.Status != models.StatusDraft {
		t.Error("CompleteReconciliation mutated its input")
	}

	_, err = CompleteReconciliation(completed, "", testNow)
	assertCategory(t, err, errors.CategoryConstraint)
}

func TestReopenReconciliation(t *testing.T) {
	s := newSession(t, 0, 0, threeLines()...)

	_, err := ReopenReconciliation(s, "fix", "user-1", testNow)
	assertCategory(t, err, errors.CategoryConstraint)

	completed, _ := CompleteReconciliation(s, "", testNow)

	_, err = ReopenReconciliation(completed, "   ", "user-1", testNow)
	assertCategory(t, err, errors.CategoryValidation)

	reopened, err := ReopenReconciliation(completed, "Missed a deposit", "user-1", testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("ReopenReconciliation() error = %v", err)
	}
	if reopened.Status != models.StatusReopened || reopened.ReopenedBy != "user-1" || reopened.ReopenedReason != "Missed a deposit" {
		t.Errorf("Unexpected reopened session: %+v", reopened)
	}

	_, err = CompleteReconciliation(reopened, "", testNow)
	assertCategory(t, err, errors.CategoryConstraint)
	_, err = ReopenReconciliation(reopened, "again", "user-1", testNow)
	assertCategory(t, err, errors.CategoryConstraint)
}

func TestBuildRecord(t *testing.T) {
	s := newSession(t, 100000, 106000, threeLines()...)
	system := []models.JournalEntry{
		deposit("je-1", day(1, 5), 1000),
		deposit("je-2", day(1, 6), 2000),
		deposit("je-9", day(1, 9), 700),
	}
	s, _ = ApplyMatches(s, []models.TransactionMatch{match("stmt-1", "je-1"), match("stmt-2", "je-2")})

	_, err := BuildRecord(s, system, "user-1", testNow, testNow)
	assertCategory(t, err, errors.CategoryConstraint)

	s, _ = CompleteReconciliation(s, "", testNow.Add(90*time.Second))
	record, err := BuildRecord(s, system, "user-1", testNow, testNow.Add(90*time.Second))
	if err != nil {
		t.Fatalf("BuildRecord() error = %v", err)
	}

	if record.CalculatedBalance != 103000 {
		t.Errorf("Expected calculated balance 103000, got %d", record.CalculatedBalance)
	}
	if record.BeginningBalance != 100000 || record.EndingBalance != 106000 {
		t.Errorf("Unexpected beginning/ending: %d/%d", record.BeginningBalance, record.EndingBalance)
	}
	if !reflect.DeepEqual(record.UnmatchedBookTransactions, []string{"je-9"}) {
		t.Errorf("Expected unmatched book [je-9], got %v", record.UnmatchedBookTransactions)
	}
	if record.TimeSpentSeconds != 90 {
		t.Errorf("Expected 90 seconds spent, got %d", record.TimeSpentSeconds)
	}
}
