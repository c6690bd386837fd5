package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestPlanError_Error(t *testing.T) {
	err := New(ErrCategoryConfiguration, CodeInvalidBuckets, "no buckets")
	expected := "[CONFIGURATION:INVALID_BUCKETS] no buckets"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestPlanError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := NewSetupError("failed to prepare working path", cause)
	expected := "[SETUP:PATH_PREPARATION_FAILED] failed to prepare working path: permission denied"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestPlanError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewJobError("job failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestPlanError_Is(t *testing.T) {
	err1 := New(ErrCategoryPath, CodeMalformedPath, "first")
	err2 := New(ErrCategoryPath, CodeMalformedPath, "second")
	err3 := New(ErrCategoryPath, CodeRegistrationFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryCatalog, CodeWriteFailed, true},
		{ErrCategoryCatalog, CodeRunNotFound, false},
		{ErrCategoryConfiguration, CodeInvalidShards, false},
		{ErrCategorySetup, CodePathPreparationFailed, false},
		{ErrCategoryJob, CodeSubJobFailed, false},
		{ErrCategoryPath, CodeMalformedPath, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := fmt.Errorf("determine: %w", NewConfigurationError(CodeNoEstimator, "no estimator"))
	if GetCategory(err) != ErrCategoryConfiguration {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryConfiguration)
	}
	if GetCode(err) != CodeNoEstimator {
		t.Errorf("got %q, want %q", GetCode(err), CodeNoEstimator)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-PlanError should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-PlanError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewJobError("job failed", fmt.Errorf("boom"))
	detailed := err.WithDetails(map[string]interface{}{"stage": "partition-estimator"})

	stage, ok := GetDetail(detailed, "stage")
	if !ok || stage != "partition-estimator" {
		t.Errorf("GetDetail(stage) = %v, %v", stage, ok)
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
	if _, ok := GetDetail(err, "stage"); ok {
		t.Error("original should have no details")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	c := NewConfigurationError(CodeInvalidShards, "bad shards")
	if c.Category != ErrCategoryConfiguration || c.Code != CodeInvalidShards {
		t.Error("NewConfigurationError mismatch")
	}

	s := NewStorageError(CodeUploadFailed, "s3 down", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	p := NewPathError(CodeMalformedPath, "bad glob", cause)
	if p.Category != ErrCategoryPath || !errors.Is(p, cause) {
		t.Error("NewPathError mismatch")
	}

	k := NewCatalogError(CodeWriteFailed, "locked", cause)
	if k.Category != ErrCategoryCatalog || !k.Retryable {
		t.Error("NewCatalogError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
