// Package errors defines the error taxonomy shared by every reconciliation
// component. All service and store failures surface as *ReconcilerError so
// callers can branch on Category without string matching.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory is the public error taxonomy
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "VALIDATION_ERROR"
	CategoryNotFound      ErrorCategory = "NOT_FOUND"
	CategoryConstraint    ErrorCategory = "CONSTRAINT_VIOLATION"
	CategoryUnknown       ErrorCategory = "UNKNOWN_ERROR"
	CategoryParse         ErrorCategory = "PARSE_ERROR"
	CategoryConfiguration ErrorCategory = "CONFIGURATION_ERROR"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"
	CodeInvalidValue  ErrorCode = "invalid_value"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeNoRows        ErrorCode = "no_rows"

	// Not found
	CodeRecordNotFound ErrorCode = "record_not_found"

	// Constraint violations
	CodeInvalidTransition ErrorCode = "invalid_transition"
	CodeAlreadyMatched    ErrorCode = "already_matched"
	CodeNotMatched        ErrorCode = "not_matched"
	CodeDuplicate         ErrorCode = "duplicate"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeStorageFailure  ErrorCode = "storage_failure"
	CodeUnexpectedError ErrorCode = "unexpected_error"
	CodeCancelled       ErrorCode = "cancelled"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// Taxonomy folds host-only categories into the four public codes.
func (e *ReconcilerError) Taxonomy() ErrorCategory {
	switch e.Category {
	case CategoryParse, CategoryConfiguration:
		return CategoryValidation
	case CategoryValidation, CategoryNotFound, CategoryConstraint:
		return e.Category
	default:
		return CategoryUnknown
	}
}

// Retryable reports whether a caller may reasonably try the same call again.
func (e *ReconcilerError) Retryable() bool {
	return e.Taxonomy() == CategoryUnknown
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryNotFound:
		return 5
	case CategoryConstraint:
		return 6
	case CategoryUnknown:
		return 7
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "use a signed decimal such as -150.00"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use date format YYYY-MM-DD"
	case CodeMissingField:
		message = fmt.Sprintf("%s is required", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("invalid value in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ParseError creates a statement parsing error
func ParseError(code ErrorCode, line int, column string, value string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format at line %d, column '%s': '%s'", line, column, value)
		suggestion = "check the data format and ensure it matches Date,Description,Amount"
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s'", column)
		suggestion = "the statement needs Date, Description and Amount columns"
	case CodeNoRows:
		message = "no transactions could be read from the statement"
		suggestion = "verify the file is a bank statement export with at least one valid row"
	default:
		message = fmt.Sprintf("parse error at line %d", line)
		suggestion = "check the file format and data integrity"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	result = result.WithSuggestion(suggestion)
	if line > 0 {
		result = result.WithContext("line", line)
	}
	if column != "" {
		result = result.WithContext("column", column)
	}
	return result
}

// NotFoundError reports a missing or soft-deleted entity
func NotFoundError(entity string, id string) *ReconcilerError {
	return New(CategoryNotFound, CodeRecordNotFound, fmt.Sprintf("%s %q was not found", entity, id)).
		WithContext("entity", entity).
		WithContext("id", id)
}

// ConstraintError reports an illegal state transition or a uniqueness clash.
// The message is shown to users as-is, so it should say exactly what went wrong.
func ConstraintError(code ErrorCode, message string) *ReconcilerError {
	return New(CategoryConstraint, code, message)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message string

	switch code {
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
	default:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion("check the config file or RECONCILER_* environment variables").
		WithContext("setting", setting)
}

// InternalError wraps an unexpected failure, usually from storage
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string

	switch code {
	case CodeStorageFailure:
		message = fmt.Sprintf("storage failure during %s", operation)
	case CodeCancelled:
		message = fmt.Sprintf("%s was cancelled", operation)
	default:
		message = fmt.Sprintf("unexpected error during %s", operation)
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryUnknown, code, message)
	} else {
		result = New(CategoryUnknown, code, message)
	}

	return result.
		WithSuggestion("try again; if the problem persists check the logs").
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	Errors     []*ReconcilerError    `json:"errors"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		Errors:     errs,
	}
	for _, err := range errs {
		summary.ByCategory[err.Category]++
	}
	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	switch es.Total {
	case 0:
		return "no errors"
	case 1:
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// IsCategory reports whether err carries the given category, after taxonomy folding.
func IsCategory(err error, category ErrorCategory) bool {
	rerr, ok := AsReconcilerError(err)
	if !ok {
		return category == CategoryUnknown && err != nil
	}
	return rerr.Category == category || rerr.Taxonomy() == category
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, operation string) *ReconcilerError {
	if err == nil {
		return nil
	}
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return InternalError(CodeUnexpectedError, operation, err)
}
