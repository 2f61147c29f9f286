package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/parsers"
	"reconciliation-engine/internal/reconciler"
	"reconciliation-engine/internal/storage"
	"reconciliation-engine/pkg/errors"
)

// reconcileOptions are the reconcile command's flags
type reconcileOptions struct {
	statement        string
	account          string
	opening          string
	closing          string
	startDate        string
	endDate          string
	notes            string
	complete         bool
	allowDiscrepancy bool
	first            bool
	progress         bool
	includeMatches   bool
}

var reconcileOpts reconcileOptions

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a bank statement against the ledger",
	Long: `Reconcile parses a bank statement export, matches its lines against the
unreconciled ledger entries of the account, and reports what matched, what did
not, and likely explanations for any discrepancy.

With --complete a balanced session is saved to history, its ledger entries are
marked reconciled and the confirmed matches feed the vendor patterns.

Examples:
  # Review only
  reconciler reconcile --account checking --statement march.csv

  # Close the month, overriding the balances found in the file
  reconciler reconcile --account checking --statement march.csv \
    --opening 1000.00 --closing 1047.00 --complete

  # JSON output with every match listed
  reconciler reconcile -a checking -s march.csv -f json --include-matches`,
	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	flags := reconcileCmd.Flags()
	flags.StringVarP(&reconcileOpts.statement, "statement", "s", "", "path to the bank statement CSV file (required)")
	flags.StringVarP(&reconcileOpts.account, "account", "a", "", "ledger account id of the bank account (required)")
	flags.StringVar(&reconcileOpts.opening, "opening", "", "opening balance, overrides the statement")
	flags.StringVar(&reconcileOpts.closing, "closing", "", "closing balance, overrides the statement")
	flags.StringVar(&reconcileOpts.startDate, "start-date", "", "statement period start (YYYY-MM-DD)")
	flags.StringVar(&reconcileOpts.endDate, "end-date", "", "statement period end (YYYY-MM-DD)")
	flags.StringVar(&reconcileOpts.notes, "notes", "", "notes stored with the completed reconciliation")
	flags.BoolVar(&reconcileOpts.complete, "complete", false, "complete and save the reconciliation when it balances")
	flags.BoolVar(&reconcileOpts.allowDiscrepancy, "allow-discrepancy", false, "complete even when the statement does not balance")
	flags.BoolVar(&reconcileOpts.first, "first", false, "mark this as the account's first reconciliation")
	flags.BoolVar(&reconcileOpts.progress, "progress", false, "show progress indicators")
	flags.BoolVar(&reconcileOpts.includeMatches, "include-matches", false, "list every match in the report")

	reconcileCmd.MarkFlagRequired("statement")
	reconcileCmd.MarkFlagRequired("account")
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	_, err := reconcileOpts.request("validate", "validate")
	return err
}

// request turns the flags into a workflow request
func (o *reconcileOptions) request(companyID, userID string) (*reconciler.WorkflowRequest, error) {
	if strings.TrimSpace(o.account) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "account", o.account, nil).
			WithSuggestion("Pass --account with the ledger account id")
	}
	if err := validateFileExists(o.statement, "statement file"); err != nil {
		return nil, err
	}
	if o.allowDiscrepancy && !o.complete {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "allow-discrepancy", true, nil).
			WithSuggestion("--allow-discrepancy only makes sense together with --complete")
	}

	var opts parsers.ParseOptions
	var err error
	if opts.OpeningBalance, err = parseAmountFlag("opening", o.opening); err != nil {
		return nil, err
	}
	if opts.ClosingBalance, err = parseAmountFlag("closing", o.closing); err != nil {
		return nil, err
	}
	if opts.PeriodStart, err = parseDateFlag("start-date", o.startDate); err != nil {
		return nil, err
	}
	if opts.PeriodEnd, err = parseDateFlag("end-date", o.endDate); err != nil {
		return nil, err
	}
	if opts.PeriodStart != nil && opts.PeriodEnd != nil && opts.PeriodStart.After(*opts.PeriodEnd) {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "start-date", o.startDate, nil).
			WithSuggestion("The start date cannot be after the end date")
	}

	return &reconciler.WorkflowRequest{
		CompanyID:             companyID,
		AccountID:             o.account,
		UserID:                userID,
		StatementPath:         o.statement,
		ParseOptions:          opts,
		IsFirstReconciliation: o.first,
		Complete:              o.complete,
		AllowDiscrepancy:      o.allowDiscrepancy,
		Notes:                 o.notes,
	}, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	req, err := reconcileOpts.request(appConfig.Company, appConfig.User)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.store.GetAccount(ctx, req.AccountID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFoundError("account", req.AccountID).
				WithSuggestion("Add it first with 'reconciler accounts add --id " + req.AccountID + "'")
		}
		return errors.InternalError(errors.CodeStorageFailure, "get account", err)
	}

	matchingConfig, err := appConfig.MatchingConfig()
	if err != nil {
		return err
	}

	workflow := reconciler.NewWorkflow(parsers.NewStatementParser(nil), a.store, matchingConfig).
		WithLearner(a.patterns).
		WithRecords(a.history).
		WithAdvisor(a.advisor)

	if reconcileOpts.progress {
		workflow.AddProgressCallback(func(progress reconciler.WorkflowProgress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %-30s (%.1f%% complete)",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
		})
	}

	result, err := workflow.Run(ctx, req)
	if reconcileOpts.progress {
		fmt.Fprintf(os.Stderr, "\n")
	}
	if err != nil {
		return err
	}

	if reconcileOpts.includeMatches {
		a.report.GetConfiguration().IncludeMatches = true
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	if err := a.report.GenerateReportSafely(result, out); err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Matched %d of %d statement lines in %v\n",
			result.Summary.MatchedCount, result.Summary.TotalStatementTransactions, result.Duration)
	}
	return nil
}

func parseAmountFlag(name, value string) (*int64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	amount, err := models.ParseMinorUnits(value)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, name, value, err).
			WithSuggestion("Use a plain decimal amount such as 1047.00")
	}
	return &amount, nil
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidDate, name, value, err).
			WithSuggestion("Use YYYY-MM-DD")
	}
	return &t, nil
}

func validateFileExists(filePath, description string) error {
	if strings.TrimSpace(filePath) == "" {
		return errors.ValidationError(errors.CodeMissingField, description, filePath, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.ValidationError(errors.CodeInvalidValue, description, filePath, err).
			WithSuggestion(fmt.Sprintf("Check that the %s exists", description))
	}
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, description, filePath, err)
	}
	if info.IsDir() {
		return errors.ValidationError(errors.CodeInvalidValue, description, filePath,
			fmt.Errorf("%s is a directory, expected a file", filePath))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, description, filePath, err).
			WithSuggestion("Check the file permissions")
	}
	file.Close()
	return nil
}
