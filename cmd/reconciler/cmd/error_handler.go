package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"reconciliation-engine/internal/reporter"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	format  reporter.OutputFormat
	stdout  io.Writer
	stderr  io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	format := reporter.OutputFormat(viper.GetString("output.format"))
	if !format.IsValid() {
		format = reporter.FormatConsole
	}
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		format:  format,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// HandleError reports err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	// JSON consumers get the same envelope as a successful run
	if h.format == reporter.FormatJSON {
		config := reporter.DefaultReportConfig()
		config.Format = reporter.FormatJSON
		if generator, genErr := reporter.NewReportGenerator(config); genErr == nil {
			_ = generator.WriteError(h.stdout, err)
		}
	}

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	if err.Retryable() {
		// Unknown failures carry internals; keep them in the log
		h.logger.WithError(err).WithFields(logger.Fields(err.Context)).Error("Unexpected failure")
		fmt.Fprintf(h.stderr, "Error: something went wrong while running the command.\n")
	} else {
		fmt.Fprintf(h.stderr, "Error: %s\n", err.Message)
	}

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.stderr, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.stderr, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.stderr, "\n%s\n", getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.stderr, "Error: File not found\n")
		fmt.Fprintf(h.stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.stderr, "Error: Permission denied\n")
		fmt.Fprintf(h.stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.stderr, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.stderr, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// Flag and argument errors from cobra land here
	fmt.Fprintf(h.stderr, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.stderr, "Run with --verbose for more detail, or --help for usage\n")
	}
	return 1
}

func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryParse:
		return `Parse error help:
• Check that the statement has a header row with date, description and amount columns
• A debit/credit column pair can replace the amount column
• Dates may be YYYY-MM-DD, MM/DD/YYYY or "Jan 2, 2006"
• Save the export as UTF-8 CSV`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required flags have values
• Dates use YYYY-MM-DD
• Amounts are plain decimals such as 1047.00 or (12.50)`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and the --config file
• Environment overrides use the RECONCILER_ prefix, e.g. RECONCILER_DATABASE
• Matching profiles are default, strict and relaxed`

	case errors.CategoryNotFound:
		return `Not found help:
• List accounts with 'reconciler accounts list'
• List stored reconciliations with 'reconciler history --account <id>'
• Check that --company matches the company the data was imported under`

	case errors.CategoryConstraint:
		return `Constraint help:
• Only DRAFT sessions can be edited and only COMPLETED ones reopened
• A reopened reconciliation is final; start a new one for the same period`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler <command> --help' for command-specific help
• Run with --verbose and check the log for details`
	}
}

func isFileNotFoundError(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, fs.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
