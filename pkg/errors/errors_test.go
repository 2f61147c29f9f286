package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "validation error",
			category:   CategoryValidation,
			code:       CodeMissingField,
			message:    "company_id is required",
			expectCode: 3,
		},
		{
			name:       "constraint violation",
			category:   CategoryConstraint,
			code:       CodeAlreadyMatched,
			message:    "This transaction is already matched",
			expectCode: 6,
		},
		{
			name:       "unknown error with cause",
			category:   CategoryUnknown,
			code:       CodeStorageFailure,
			message:    "storage failure",
			cause:      errors.New("disk I/O error"),
			expectCode: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a captured stack trace")
			}
		})
	}
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		want     ErrorCategory
	}{
		{CategoryValidation, CategoryValidation},
		{CategoryParse, CategoryValidation},
		{CategoryConfiguration, CategoryValidation},
		{CategoryNotFound, CategoryNotFound},
		{CategoryConstraint, CategoryConstraint},
		{CategoryUnknown, CategoryUnknown},
		{ErrorCategory("something_else"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, CodeInvalidValue, "x")
			if got := err.Taxonomy(); got != tt.want {
				t.Errorf("Taxonomy() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		err := ValidationError(CodeMissingField, "reason", "", nil)
		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Message != "reason is required" {
			t.Errorf("unexpected message: %s", err.Message)
		}
		if err.Context["field"] != "reason" {
			t.Errorf("expected field context, got %v", err.Context)
		}
	})

	t.Run("parse", func(t *testing.T) {
		err := ParseError(CodeNoRows, 0, "", "", nil)
		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if _, ok := err.Context["line"]; ok {
			t.Error("line context should be omitted when zero")
		}
	})

	t.Run("not found", func(t *testing.T) {
		err := NotFoundError("reconciliation record", "rec-1")
		if err.Category != CategoryNotFound {
			t.Errorf("expected not found category, got %s", err.Category)
		}
		if !strings.Contains(err.Message, "rec-1") {
			t.Errorf("expected id in message, got %s", err.Message)
		}
	})

	t.Run("internal", func(t *testing.T) {
		cause := errors.New("database is locked")
		err := InternalError(CodeStorageFailure, "save record", cause)
		if !errors.Is(err, cause) {
			t.Error("expected cause to be reachable with errors.Is")
		}
		if !err.Retryable() {
			t.Error("expected internal errors to be retryable")
		}
	})
}

func TestIsCategory(t *testing.T) {
	wrapped := Wrap(ConstraintError(CodeDuplicate, "dup"), CategoryConstraint, CodeDuplicate, "outer")
	if !IsCategory(wrapped, CategoryConstraint) {
		t.Error("expected constraint category")
	}
	if !IsCategory(ParseError(CodeNoRows, 0, "", "", nil), CategoryValidation) {
		t.Error("parse errors should fold into validation")
	}
	if !IsCategory(errors.New("plain"), CategoryUnknown) {
		t.Error("plain errors should count as unknown")
	}
	if IsCategory(nil, CategoryUnknown) {
		t.Error("nil should not match any category")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	original := NotFoundError("pattern", "p1")
	if got := WrapIfNeeded(original, "lookup"); got != original {
		t.Error("expected existing ReconcilerError to be returned unchanged")
	}

	plain := errors.New("boom")
	got := WrapIfNeeded(plain, "lookup")
	if got.Category != CategoryUnknown {
		t.Errorf("expected unknown category, got %s", got.Category)
	}
	if got.Context["operation"] != "lookup" {
		t.Errorf("expected operation context, got %v", got.Context)
	}

	if WrapIfNeeded(nil, "lookup") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestErrorSummary(t *testing.T) {
	summary := NewErrorSummary([]*ReconcilerError{
		ValidationError(CodeInvalidAmount, "amount", "abc", nil),
		ValidationError(CodeInvalidDate, "date", "x", nil),
		NotFoundError("record", "r1"),
	})

	if summary.Total != 3 {
		t.Errorf("expected total 3, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryValidation] != 2 {
		t.Errorf("expected 2 validation errors, got %d", summary.ByCategory[CategoryValidation])
	}
	if !strings.HasPrefix(summary.Error(), "3 errors occurred") {
		t.Errorf("unexpected summary message: %s", summary.Error())
	}

	if NewErrorSummary(nil).Error() != "no errors" {
		t.Error("expected empty summary message")
	}
}

func TestResultOf(t *testing.T) {
	ok := ResultOf(42, nil)
	if !ok.Success || ok.Data != 42 || ok.Error != nil {
		t.Errorf("unexpected success result: %+v", ok)
	}

	failed := ResultOf(0, ConstraintError(CodeAlreadyMatched, "This transaction is already matched"))
	if failed.Success {
		t.Fatal("expected failure result")
	}
	if failed.Error.Code != CategoryConstraint {
		t.Errorf("expected CONSTRAINT_VIOLATION, got %s", failed.Error.Code)
	}
	if failed.Error.Message != "This transaction is already matched" {
		t.Errorf("unexpected message: %s", failed.Error.Message)
	}

	internal := ResultOf("", errors.New("sql: connection refused"))
	if internal.Error.Code != CategoryUnknown {
		t.Errorf("expected UNKNOWN_ERROR, got %s", internal.Error.Code)
	}
	if strings.Contains(internal.Error.Message, "sql") {
		t.Errorf("internal cause leaked to message: %s", internal.Error.Message)
	}
}
