// Package errors provides structured error types for rosterbench.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components, and each category maps to
// a distinct process exit code.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure class.
type ErrorCategory string

const (
	ErrCategoryValidation   ErrorCategory = "VALIDATION"
	ErrCategoryConnectivity ErrorCategory = "CONNECTIVITY"
	ErrCategoryIntegrity    ErrorCategory = "INTEGRITY"
	ErrCategoryTimeout      ErrorCategory = "TIMEOUT"
	ErrCategoryInternal     ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInvalidDate     = "INVALID_DATE"
	CodeInvalidGender   = "INVALID_GENDER"
	CodeEmptyName       = "EMPTY_NAME"
	CodeNegativeCount   = "NEGATIVE_COUNT"

	// Connectivity codes
	CodeConnectFailed  = "CONNECT_FAILED"
	CodeConnectionLost = "CONNECTION_LOST"
	CodeRetryExhausted = "RETRY_EXHAUSTED"

	// Integrity codes
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeIndexConflict       = "INDEX_CONFLICT"
	CodePartialBatch        = "PARTIAL_BATCH"

	// Timeout codes
	CodeQueryTimeout = "QUERY_TIMEOUT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Exit codes per category. Zero is success; internal failures use the
// generic code 1.
const (
	ExitOK           = 0
	ExitInternal     = 1
	ExitValidation   = 2
	ExitConnectivity = 3
	ExitIntegrity    = 4
	ExitTimeout      = 5
)

// RosterError is the structured error type used throughout the system.
type RosterError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *RosterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *RosterError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *RosterError) Is(target error) bool {
	var t *RosterError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new RosterError.
func New(category ErrorCategory, code, message string) *RosterError {
	return &RosterError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category),
	}
}

// Wrap creates a new RosterError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *RosterError {
	return &RosterError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *RosterError) WithDetails(details map[string]interface{}) *RosterError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var re *RosterError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a RosterError.
func GetCategory(err error) ErrorCategory {
	var re *RosterError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a RosterError.
func GetCode(err error) string {
	var re *RosterError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetDetails extracts the details map from an error chain, or nil.
func GetDetails(err error) map[string]interface{} {
	var re *RosterError
	if errors.As(err, &re) {
		return re.Details
	}
	return nil
}

// ExitCode maps an error to its process exit code. A nil error maps to
// ExitOK; errors outside the taxonomy map to ExitInternal.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch GetCategory(err) {
	case ErrCategoryValidation:
		return ExitValidation
	case ErrCategoryConnectivity:
		return ExitConnectivity
	case ErrCategoryIntegrity:
		return ExitIntegrity
	case ErrCategoryTimeout:
		return ExitTimeout
	default:
		return ExitInternal
	}
}

// isRetryable determines whether errors of a category may be retried.
// Only connectivity failures are transient; everything else must surface
// immediately.
func isRetryable(category ErrorCategory) bool {
	return category == ErrCategoryConnectivity
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *RosterError {
	return New(ErrCategoryValidation, code, message)
}

func WrapValidationError(code, message string, cause error) *RosterError {
	return Wrap(ErrCategoryValidation, code, message, cause)
}

func NewConnectivityError(code, message string, cause error) *RosterError {
	return Wrap(ErrCategoryConnectivity, code, message, cause)
}

func NewIntegrityError(code, message string, cause error) *RosterError {
	return Wrap(ErrCategoryIntegrity, code, message, cause)
}

func NewTimeoutError(message string, cause error) *RosterError {
	return Wrap(ErrCategoryTimeout, CodeQueryTimeout, message, cause)
}

func NewInternalError(message string, cause error) *RosterError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
