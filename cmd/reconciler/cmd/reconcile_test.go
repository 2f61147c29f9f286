package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/reporter"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	if err := os.WriteFile(validFile, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{"valid file", validFile, false},
		{"empty path", "", true},
		{"non-existent file", "/non/existent/file.csv", true},
		{"directory instead of file", tmpDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if err != nil && !errors.IsCategory(err, errors.CategoryValidation) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestReconcileOptionsRequest(t *testing.T) {
	statement := filepath.Join(t.TempDir(), "march.csv")
	if err := os.WriteFile(statement, []byte("Date,Description,Amount\n"), 0644); err != nil {
		t.Fatalf("failed to create statement: %v", err)
	}

	opts := reconcileOptions{
		statement: statement,
		account:   "bank",
		opening:   "1,000.00",
		closing:   "1047.00",
		startDate: "2024-03-01",
		endDate:   "2024-03-31",
		notes:     "March close",
		complete:  true,
		first:     true,
	}

	req, err := opts.request("co-1", "alice")
	if err != nil {
		t.Fatalf("request() error = %v", err)
	}
	if req.CompanyID != "co-1" || req.UserID != "alice" || req.AccountID != "bank" {
		t.Errorf("unexpected identity fields: %+v", req)
	}
	if req.ParseOptions.OpeningBalance == nil || *req.ParseOptions.OpeningBalance != 100000 {
		t.Errorf("expected opening 100000, got %v", req.ParseOptions.OpeningBalance)
	}
	if req.ParseOptions.ClosingBalance == nil || *req.ParseOptions.ClosingBalance != 104700 {
		t.Errorf("expected closing 104700, got %v", req.ParseOptions.ClosingBalance)
	}
	if req.ParseOptions.PeriodStart == nil || req.ParseOptions.PeriodStart.Day() != 1 {
		t.Errorf("expected period start, got %v", req.ParseOptions.PeriodStart)
	}
	if !req.Complete || !req.IsFirstReconciliation || req.Notes != "March close" {
		t.Errorf("flags not carried over: %+v", req)
	}
}

func TestReconcileOptionsRequestRejectsBadInput(t *testing.T) {
	statement := filepath.Join(t.TempDir(), "march.csv")
	if err := os.WriteFile(statement, []byte("Date,Description,Amount\n"), 0644); err != nil {
		t.Fatalf("failed to create statement: %v", err)
	}

	tests := []struct {
		name string
		opts reconcileOptions
		code errors.ErrorCode
	}{
		{"missing account", reconcileOptions{statement: statement}, errors.CodeMissingField},
		{"missing statement", reconcileOptions{account: "bank", statement: statement + ".gone"}, errors.CodeInvalidValue},
		{"bad opening", reconcileOptions{account: "bank", statement: statement, opening: "ten"}, errors.CodeInvalidAmount},
		{"bad date", reconcileOptions{account: "bank", statement: statement, startDate: "03/01/2024"}, errors.CodeInvalidDate},
		{"reversed period", reconcileOptions{account: "bank", statement: statement, startDate: "2024-03-31", endDate: "2024-03-01"}, errors.CodeOutOfRange},
		{"discrepancy without complete", reconcileOptions{account: "bank", statement: statement, allowDiscrepancy: true}, errors.CodeInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.request("co-1", "alice")
			rerr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected a reconciler error, got %v", err)
			}
			if rerr.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, rerr.Code)
			}
		})
	}
}

func TestBuildAccount(t *testing.T) {
	account, err := buildAccount("co-1", " checking ", "", "ASSET", true)
	if err != nil {
		t.Fatalf("buildAccount() error = %v", err)
	}
	if account.ID != "checking" || account.Name != "checking" || account.Type != models.AccountTypeAsset || !account.Active {
		t.Errorf("unexpected account: %+v", account)
	}

	if _, err := buildAccount("co-1", "", "x", "asset", true); err == nil {
		t.Error("expected an error for a missing id")
	}
	if _, err := buildAccount("co-1", "x", "x", "bank", true); !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("expected a validation error for an unknown type, got %v", err)
	}
}

func newTestErrorHandler(format reporter.OutputFormat, verbose bool) (*CLIErrorHandler, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &CLIErrorHandler{
		logger:  logger.NewNopLogger(),
		verbose: verbose,
		format:  format,
		stdout:  &stdout,
		stderr:  &stderr,
	}, &stdout, &stderr
}

func TestCLIErrorHandlerExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{"nil", nil, 0, ""},
		{"validation", errors.ValidationError(errors.CodeInvalidAmount, "opening", "ten", nil), 3, "Validation error help"},
		{"configuration", errors.ConfigurationError(errors.CodeInvalidConfig, "matching.profile", "loose", nil), 4, "Configuration error help"},
		{"not found", errors.NotFoundError("account", "bank"), 5, "accounts list"},
		{"constraint", errors.ConstraintError(errors.CodeInvalidTransition, "cannot reopen a draft"), 6, "cannot reopen a draft"},
		{"internal", errors.InternalError(errors.CodeStorageFailure, "open database", fmt.Errorf("disk I/O")), 7, "something went wrong"},
		{"missing file", fmt.Errorf("open x.csv: %w", os.ErrNotExist), 2, "File not found"},
		{"generic", fmt.Errorf("unknown flag: --bogus"), 1, "unknown flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, stdout, stderr := newTestErrorHandler(reporter.FormatConsole, false)

			if code := handler.HandleError(tt.err); code != tt.wantCode {
				t.Errorf("HandleError() = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(stderr.String(), tt.wantText) {
				t.Errorf("expected %q in output, got:\n%s", tt.wantText, stderr.String())
			}
			if stdout.Len() != 0 {
				t.Errorf("console errors must not write to stdout, got %q", stdout.String())
			}
		})
	}
}

func TestCLIErrorHandlerHidesInternalCause(t *testing.T) {
	err := errors.InternalError(errors.CodeStorageFailure, "open database", fmt.Errorf("sqlite: locked"))

	handler, _, stderr := newTestErrorHandler(reporter.FormatConsole, false)
	handler.HandleError(err)
	if strings.Contains(stderr.String(), "sqlite: locked") {
		t.Errorf("cause leaked without --verbose:\n%s", stderr.String())
	}

	handler, _, stderr = newTestErrorHandler(reporter.FormatConsole, true)
	handler.HandleError(err)
	if !strings.Contains(stderr.String(), "sqlite: locked") {
		t.Errorf("expected the cause with --verbose:\n%s", stderr.String())
	}
}

func TestCLIErrorHandlerJSONEnvelope(t *testing.T) {
	handler, stdout, _ := newTestErrorHandler(reporter.FormatJSON, false)

	code := handler.HandleError(errors.NotFoundError("account", "bank"))
	if code != 5 {
		t.Errorf("expected exit code 5, got %d", code)
	}

	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &envelope); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout.String())
	}
	if envelope.Success || envelope.Error.Code != string(errors.CategoryNotFound) {
		t.Errorf("unexpected envelope: %+v", envelope)
	}
}

func TestParseAmountFlag(t *testing.T) {
	amount, err := parseAmountFlag("closing", "(12.50)")
	if err != nil || amount == nil || *amount != -1250 {
		t.Errorf("parseAmountFlag((12.50)) = %v, %v", amount, err)
	}
	if amount, err := parseAmountFlag("closing", "  "); amount != nil || err != nil {
		t.Errorf("blank flag should be unset, got %v, %v", amount, err)
	}
}
