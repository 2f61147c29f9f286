// Package reconciler owns the reconciliation session and the workflow that
// drives it.
//
// The session functions in session.go are pure state transitions over
// models.ReconciliationSession. The Workflow strings the collaborators
// together in strict order:
//   - Parse the bank statement
//   - Load unreconciled ledger entries for the account and period
//   - Match, optionally boosted by learned vendor patterns
//   - Apply matches to a fresh DRAFT session and compute the discrepancy
//   - Ask the advisor about anything left over
//   - Complete, save to history and learn from the confirmed matches
//
// Example usage:
//
//	wf := reconciler.NewWorkflow(parser, store, matchingConfig).
//		WithLearner(patternService).
//		WithRecords(historyService).
//		WithAdvisor(advisor)
//
//	result, err := wf.Run(ctx, &reconciler.WorkflowRequest{
//		CompanyID:     "co-1",
//		AccountID:     "acct-checking",
//		StatementPath: "march.csv",
//		Complete:      true,
//	})
package reconciler

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"reconciliation-engine/internal/matcher"
	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/parsers"
	"reconciliation-engine/internal/storage"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// PatternLearner supplies learned patterns and absorbs confirmed matches
type PatternLearner interface {
	ListPatterns(ctx context.Context, companyID string) ([]*models.ReconciliationPattern, error)
	LearnFromSession(ctx context.Context, session *models.ReconciliationSession, system []models.JournalEntry, userID string) (int, error)
}

// RecordKeeper persists completed sessions
type RecordKeeper interface {
	SaveReconciliationRecord(ctx context.Context, record *models.ReconciliationRecord, userID string) (*models.ReconciliationRecord, error)
	MarkReconciled(ctx context.Context, record *models.ReconciliationRecord) error
}

// DiscrepancyAdvisor explains leftover items
type DiscrepancyAdvisor interface {
	SuggestDiscrepancyResolutions(ctx context.Context, companyID, accountID string, unmatched []models.StatementTransaction, unmatchedBookIDs []string, discrepancy int64) ([]models.DiscrepancySuggestion, error)
}

// WorkflowRequest describes one reconciliation run
type WorkflowRequest struct {
	CompanyID string
	AccountID string
	UserID    string

	// Statement is read when set; otherwise StatementPath is opened.
	Statement     io.Reader
	StatementPath string
	ParseOptions  parsers.ParseOptions

	IsFirstReconciliation bool

	// Complete closes, saves and learns from the session after matching.
	Complete bool
	// AllowDiscrepancy completes even when the session is not balanced.
	AllowDiscrepancy bool
	Notes            string
}

// Validate checks the request before any work starts
func (r *WorkflowRequest) Validate() error {
	if strings.TrimSpace(r.CompanyID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "company_id", r.CompanyID, nil)
	}
	if strings.TrimSpace(r.AccountID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "account_id", r.AccountID, nil)
	}
	if r.Statement == nil && strings.TrimSpace(r.StatementPath) == "" {
		return errors.ValidationError(errors.CodeMissingField, "statement", r.StatementPath, nil).
			WithSuggestion("provide a statement file path or reader")
	}
	return nil
}

// WorkflowResult is everything a run produced
type WorkflowResult struct {
	Session         *models.ReconciliationSession  `json:"session"`
	Record          *models.ReconciliationRecord   `json:"record,omitempty"`
	Match           *matcher.Result                `json:"match"`
	Summary         Summary                        `json:"summary"`
	Suggestions     []models.DiscrepancySuggestion `json:"suggestions,omitempty"`
	ParseStats      *parsers.ParseStats            `json:"parse_stats"`
	SystemCount     int                            `json:"system_count"`
	PatternsUsed    int                            `json:"patterns_used"`
	PatternsLearned int                            `json:"patterns_learned"`
	Completed       bool                           `json:"completed"`
	Warnings        []string                       `json:"warnings,omitempty"`
	Duration        time.Duration                  `json:"duration"`
}

// WorkflowProgress tracks the progress of a run
type WorkflowProgress struct {
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called to report workflow progress
type ProgressCallback func(WorkflowProgress)

const workflowSteps = 6

// Workflow runs parse, match, apply, complete, save and learn in order
type Workflow struct {
	parser  *parsers.StatementParser
	ledger  storage.LedgerStore
	config  *matcher.MatchingConfig
	learner PatternLearner
	records RecordKeeper
	advisor DiscrepancyAdvisor
	logger  logger.Logger
	now     func() time.Time

	progressCallbacks []ProgressCallback
	progress          WorkflowProgress
	progressMutex     sync.Mutex
}

// NewWorkflow creates a workflow. A nil parser or config uses defaults.
func NewWorkflow(parser *parsers.StatementParser, ledger storage.LedgerStore, config *matcher.MatchingConfig) *Workflow {
	if parser == nil {
		parser = parsers.NewStatementParser(nil)
	}
	if config == nil {
		config = matcher.DefaultMatchingConfig()
	}
	return &Workflow{
		parser: parser,
		ledger: ledger,
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("reconciliation_workflow"),
		now:    time.Now,
	}
}

// WithLearner enables pattern-boosted matching and learning on completion
func (w *Workflow) WithLearner(learner PatternLearner) *Workflow {
	w.learner = learner
	return w
}

// WithRecords enables saving completed sessions
func (w *Workflow) WithRecords(records RecordKeeper) *Workflow {
	w.records = records
	return w
}

// WithAdvisor enables discrepancy suggestions
func (w *Workflow) WithAdvisor(advisor DiscrepancyAdvisor) *Workflow {
	w.advisor = advisor
	return w
}

// WithClock overrides the time source
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now
	return w
}

// AddProgressCallback adds a progress callback function
func (w *Workflow) AddProgressCallback(callback ProgressCallback) {
	w.progressCallbacks = append(w.progressCallbacks, callback)
}

// Run executes one reconciliation
func (w *Workflow) Run(ctx context.Context, req *WorkflowRequest) (*WorkflowResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if w.ledger == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "ledger store", nil, nil)
	}

	startTime := w.now()
	w.initializeProgress(startTime)
	log := w.logger.WithFields(logger.Fields{
		"company_id": req.CompanyID,
		"account_id": req.AccountID,
	})
	log.Info("Starting reconciliation")

	result := &WorkflowResult{}

	// Step 1: parse the statement
	w.updateProgress("Parsing statement", 0)
	statement, stats, err := w.parseStatement(ctx, req)
	result.ParseStats = stats
	if err != nil {
		log.WithError(err).Error("Failed to parse statement")
		return nil, err
	}
	if stats != nil && stats.Skipped() > 0 {
		result.Warnings = append(result.Warnings, pluralize(stats.Skipped(), "statement row")+" skipped")
	}

	// Step 2: load ledger entries that can still be matched
	w.updateProgress("Loading ledger transactions", 1)
	system, err := w.loadSystem(ctx, req, statement)
	if err != nil {
		log.WithError(err).Error("Failed to load ledger transactions")
		return nil, err
	}
	result.SystemCount = len(system)

	// Step 3: match
	w.updateProgress("Matching transactions", 2)
	config := w.config.Clone()
	if w.learner != nil && config.UsePatternLearning {
		learned, err := w.learner.ListPatterns(ctx, req.CompanyID)
		if err != nil {
			log.WithError(err).Warn("Could not load learned patterns, matching without them")
			result.Warnings = append(result.Warnings, "learned patterns unavailable")
		} else {
			config.Patterns = learned
			result.PatternsUsed = len(learned)
		}
	}
	match, err := matcher.NewMatchingEngine(config).Match(ctx, statement.Transactions, system, req.AccountID)
	if err != nil {
		return nil, err
	}
	result.Match = match

	// Step 4: build the session
	w.updateProgress("Applying matches", 3)
	session, err := CreateReconciliation(CreateParams{
		CompanyID:             req.CompanyID,
		AccountID:             req.AccountID,
		Statement:             *statement,
		IsFirstReconciliation: req.IsFirstReconciliation,
	}, startTime)
	if err != nil {
		return nil, err
	}
	if session, err = ApplyMatches(session, match.Matches); err != nil {
		return nil, errors.WrapIfNeeded(err, "apply matches")
	}
	if session, err = ApplyMultiMatches(session, match.MultiMatches); err != nil {
		return nil, errors.WrapIfNeeded(err, "apply multi matches")
	}
	session = WithDiscrepancy(session, system, req.AccountID)
	result.Session = session
	result.Summary = GetReconciliationSummary(session)

	// Step 5: explain what is left
	w.updateProgress("Analyzing discrepancies", 4)
	if w.advisor != nil && (result.Summary.UnmatchedStatementCount > 0 || !result.Summary.IsBalanced) {
		suggestions, err := w.advisor.SuggestDiscrepancyResolutions(ctx, req.CompanyID, req.AccountID,
			UnmatchedStatementLines(session), UnmatchedBookIDs(session, system, req.AccountID), session.Discrepancy)
		if err != nil {
			log.WithError(err).Warn("Discrepancy analysis failed")
			result.Warnings = append(result.Warnings, "discrepancy analysis failed")
		} else {
			result.Suggestions = suggestions
		}
	}

	// Step 6: complete, save and learn
	w.updateProgress("Completing reconciliation", 5)
	if req.Complete {
		if err := w.complete(ctx, req, result, system, startTime); err != nil {
			return nil, err
		}
	}

	result.Duration = w.now().Sub(startTime)
	w.updateProgress("Completed", workflowSteps)
	log.WithFields(logger.Fields{
		"matched":     result.Summary.MatchedCount,
		"unmatched":   result.Summary.UnmatchedStatementCount,
		"discrepancy": result.Summary.Discrepancy,
		"completed":   result.Completed,
		"duration":    result.Duration.String(),
	}).Info("Reconciliation finished")

	return result, nil
}

func (w *Workflow) complete(ctx context.Context, req *WorkflowRequest, result *WorkflowResult, system []models.JournalEntry, startTime time.Time) error {
	if !result.Summary.IsBalanced && !req.AllowDiscrepancy {
		w.logger.WithField("discrepancy", result.Summary.Discrepancy).Warn("Session is not balanced, leaving it as a draft")
		result.Warnings = append(result.Warnings, "not completed: discrepancy of "+models.FormatMinorUnits(result.Summary.Discrepancy))
		return nil
	}

	now := w.now()
	session, err := CompleteReconciliation(result.Session, req.Notes, now)
	if err != nil {
		return err
	}
	result.Session = session
	result.Summary = GetReconciliationSummary(session)
	result.Completed = true

	if w.records != nil {
		record, err := BuildRecord(session, system, req.UserID, startTime, now)
		if err != nil {
			return err
		}
		saved, err := w.records.SaveReconciliationRecord(ctx, record, req.UserID)
		if err != nil {
			return err
		}
		result.Record = saved
		if err := w.records.MarkReconciled(ctx, saved); err != nil {
			w.logger.WithError(err).Warn("Could not mark ledger entries reconciled")
			result.Warnings = append(result.Warnings, "ledger entries not marked reconciled")
		}
	}

	if w.learner != nil {
		learned, err := w.learner.LearnFromSession(ctx, session, system, req.UserID)
		if err != nil {
			w.logger.WithError(err).Warn("Pattern learning failed")
			result.Warnings = append(result.Warnings, "pattern learning failed")
		}
		result.PatternsLearned = learned
	}
	return nil
}

func (w *Workflow) parseStatement(ctx context.Context, req *WorkflowRequest) (*models.ParsedStatement, *parsers.ParseStats, error) {
	if req.Statement != nil {
		return w.parser.Parse(ctx, req.Statement, req.ParseOptions)
	}
	return w.parser.ParseFile(ctx, req.StatementPath, req.ParseOptions)
}

// loadSystem fetches entries on the account that are neither reconciled nor
// voided, widened by the date tolerance on both sides of the period.
func (w *Workflow) loadSystem(ctx context.Context, req *WorkflowRequest, statement *models.ParsedStatement) ([]models.JournalEntry, error) {
	slack := time.Duration(w.config.DateToleranceDays) * 24 * time.Hour
	from := models.DateOnly(statement.Period.StartDate).Add(-slack)
	to := models.DateOnly(statement.Period.EndDate).Add(slack + 24*time.Hour - time.Millisecond)

	entries, err := w.ledger.QueryTransactions(ctx, storage.TransactionFilter{
		CompanyID:       req.CompanyID,
		AccountID:       req.AccountID,
		ExcludeStatuses: []models.JournalStatus{models.JournalStatusReconciled, models.JournalStatusVoided},
		From:            &from,
		To:              &to,
	})
	if err != nil {
		return nil, errors.InternalError(errors.CodeStorageFailure, "query ledger transactions", err).
			WithContext("account_id", req.AccountID)
	}
	return entries, nil
}

func (w *Workflow) initializeProgress(start time.Time) {
	w.progressMutex.Lock()
	defer w.progressMutex.Unlock()

	w.progress = WorkflowProgress{
		TotalSteps: workflowSteps,
		StartTime:  start,
	}
}

func (w *Workflow) updateProgress(step string, completed int) {
	w.progressMutex.Lock()
	w.progress.CurrentStep = step
	w.progress.CompletedSteps = completed
	w.progress.ElapsedTime = w.now().Sub(w.progress.StartTime)
	w.progress.PercentComplete = float64(completed) / float64(w.progress.TotalSteps) * 100
	snapshot := w.progress
	w.progressMutex.Unlock()

	w.logger.WithField("step", step).Debug("Workflow progress")
	for _, callback := range w.progressCallbacks {
		callback(snapshot)
	}
}

// BuildRecord turns a completed session into a history record. The
// calculated balance is what the books say the closing balance should be.
func BuildRecord(session *models.ReconciliationSession, system []models.JournalEntry, userID string, startedAt, now time.Time) (*models.ReconciliationRecord, error) {
	if session.Status != models.StatusCompleted {
		return nil, invalidTransition(session.Status, models.StatusCompleted).
			WithSuggestion("complete the reconciliation before saving it")
	}

	spent := int64(now.Sub(startedAt).Seconds())
	if spent < 0 {
		spent = 0
	}

	return &models.ReconciliationRecord{
		ReconciliationSession:     *session.Clone(),
		BeginningBalance:          session.OpeningBalance,
		EndingBalance:             session.ClosingBalance,
		CalculatedBalance:         session.ClosingBalance - CalculateDiscrepancy(session, system, session.AccountID),
		UnmatchedBookTransactions: UnmatchedBookIDs(session, system, session.AccountID),
		TimeSpentSeconds:          spent,
		UserID:                    userID,
	}, nil
}

// UnmatchedStatementLines returns copies of the statement lines still unmatched
func UnmatchedStatementLines(session *models.ReconciliationSession) []models.StatementTransaction {
	var out []models.StatementTransaction
	for _, tx := range session.Statement.Transactions {
		if !tx.Matched {
			out = append(out, tx)
		}
	}
	return out
}

// UnmatchedBookIDs lists system transactions on accountID that no statement
// line claimed.
func UnmatchedBookIDs(session *models.ReconciliationSession, system []models.JournalEntry, accountID string) []string {
	matched := make(map[string]bool, len(session.MatchedTransactions))
	for _, id := range session.MatchedTransactions {
		matched[id] = true
	}
	out := []string{}
	for i := range system {
		if !matched[system[i].ID] && system[i].NetAmount(accountID) != 0 {
			out = append(out, system[i].ID)
		}
	}
	return out
}

func pluralize(n int, noun string) string {
	s := strconv.Itoa(n) + " " + noun
	if n != 1 {
		s += "s"
	}
	return s
}
