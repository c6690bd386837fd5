// Package errors provides structured error types for shardplan.
// All errors carry a category, code, message, and retryable flag so that the
// orchestration layer can decide what to do with a failed planning step.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the planning stage that produced them.
type ErrorCategory string

const (
	ErrCategoryConfiguration ErrorCategory = "CONFIGURATION"
	ErrCategorySetup         ErrorCategory = "SETUP"
	ErrCategoryJob           ErrorCategory = "JOB"
	ErrCategoryPath          ErrorCategory = "PATH"
	ErrCategoryStorage       ErrorCategory = "STORAGE"
	ErrCategoryCatalog       ErrorCategory = "CATALOG"
	ErrCategoryInternal      ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Configuration codes
	CodeInvalidBuckets   = "INVALID_BUCKETS"
	CodeInvalidShards    = "INVALID_SHARDS"
	CodeNoEstimator      = "NO_ESTIMATOR"
	CodeAlreadyCommitted = "ALREADY_COMMITTED"
	CodeInvalidConfig    = "INVALID_CONFIG"

	// Setup codes
	CodePathPreparationFailed = "PATH_PREPARATION_FAILED"

	// Job codes
	CodeSubJobFailed = "SUBJOB_FAILED"

	// Path codes
	CodeMalformedPath      = "MALFORMED_PATH"
	CodeRegistrationFailed = "REGISTRATION_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Catalog codes
	CodeWriteFailed   = "WRITE_FAILED"
	CodeRunNotFound   = "RUN_NOT_FOUND"
	CodeShardNotFound = "SHARD_NOT_FOUND"
	CodeDuplicateRun  = "DUPLICATE_RUN"
	CodeCorruptEntry  = "CORRUPT_ENTRY"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PlanError is the structured error type used throughout shardplan.
type PlanError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PlanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PlanError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PlanError) Is(target error) bool {
	var t *PlanError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PlanError.
func New(category ErrorCategory, code, message string) *PlanError {
	return &PlanError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PlanError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PlanError {
	return &PlanError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PlanError) WithDetails(details map[string]interface{}) *PlanError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PlanError.
func GetCategory(err error) ErrorCategory {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PlanError.
func GetCode(err error) string {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// GetDetail returns the named detail of the first PlanError in the chain.
func GetDetail(err error, key string) (interface{}, bool) {
	var pe *PlanError
	if errors.As(err, &pe) && pe.Details != nil {
		v, ok := pe.Details[key]
		return v, ok
	}
	return nil, false
}

// isRetryable marks transient storage and catalog failures. Planning itself
// is deterministic, so nothing else is worth retrying.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryCatalog && code == CodeWriteFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewConfigurationError(code, message string) *PlanError {
	return New(ErrCategoryConfiguration, code, message)
}

func NewSetupError(message string, cause error) *PlanError {
	return Wrap(ErrCategorySetup, CodePathPreparationFailed, message, cause)
}

func NewJobError(message string, cause error) *PlanError {
	return Wrap(ErrCategoryJob, CodeSubJobFailed, message, cause)
}

func NewPathError(code, message string, cause error) *PlanError {
	return Wrap(ErrCategoryPath, code, message, cause)
}

func NewStorageError(code, message string, cause error) *PlanError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *PlanError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewInternalError(message string, cause error) *PlanError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
