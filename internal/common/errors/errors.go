// Package errors provides standardized error handling for the analysis pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Query generation
	ErrCodeInsufficientContext ErrorCode = "INSUFFICIENT_CONTEXT"

	// Search
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderRateLimited ErrorCode = "PROVIDER_RATE_LIMITED"
	ErrCodeSearchTimeout       ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeSearchNoResults     ErrorCode = "SEARCH_NO_RESULTS"

	// Extraction
	ErrCodeFetchFailed           ErrorCode = "FETCH_FAILED"
	ErrCodeExtractionCoverageLow ErrorCode = "EXTRACTION_COVERAGE_LOW"

	// Synthesis
	ErrCodeLLMTimeout          ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMSynthesisFailed  ErrorCode = "LLM_SYNTHESIS_FAILED"
	ErrCodeSynthesisUnderflow  ErrorCode = "SYNTHESIS_UNDERFLOW"
	ErrCodeFabricationDetected ErrorCode = "FABRICATION_DETECTED"

	// Quality gate
	ErrCodeQualityGateFailed ErrorCode = "QUALITY_GATE_FAILED"

	// Persistence
	ErrCodeCheckpointWriteFailed ErrorCode = "CHECKPOINT_WRITE_FAILED"
	ErrCodeSessionNotFound       ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionStoreFailed    ErrorCode = "SESSION_STORE_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInsufficientContextError signals an empty topic or unusable context.
func NewInsufficientContextError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInsufficientContext,
		Message:   "Topic or context insufficient to generate queries",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderUnavailableError creates a retryable provider error.
func NewProviderUnavailableError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderUnavailable,
		Message:   fmt.Sprintf("Search provider '%s' unreachable", provider),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderRateLimitedError creates a retryable rate-limit error.
func NewProviderRateLimitedError(provider string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderRateLimited,
		Message:   fmt.Sprintf("Search provider '%s' rate limited", provider),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchTimeoutError creates a retryable search timeout error.
func NewSearchTimeoutError(provider string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchTimeout,
		Message:   "Search provider call timed out",
		Details:   fmt.Sprintf("provider: %s", provider),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchNoResultsError signals that every tier yielded zero results.
func NewSearchNoResultsError(queryCount int) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchNoResults,
		Message:   "All provider tiers returned zero results",
		Details:   fmt.Sprintf("queries attempted: %d", queryCount),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFetchFailedError creates a retryable page fetch error.
func NewFetchFailedError(url string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFetchFailed,
		Message:   "Page fetch failed",
		Details:   fmt.Sprintf("url: %s, error: %s", url, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionCoverageLowError signals the extraction success ratio fell
// below the configured floor. Surfaced as a degraded stage, not fatal.
func NewExtractionCoverageLowError(ratio, floor float64) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionCoverageLow,
		Message:   "Extraction success ratio below minimum coverage",
		Details:   fmt.Sprintf("ratio: %.2f, floor: %.2f", ratio, floor),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM synthesis call timed out",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMSynthesisFailedError creates a retryable LLM API error.
func NewLLMSynthesisFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMSynthesisFailed,
		Message:   "LLM synthesis API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSynthesisUnderflowError signals that zero insights survived filtering.
func NewSynthesisUnderflowError(rejected int) *StandardError {
	return &StandardError{
		Code:      ErrCodeSynthesisUnderflow,
		Message:   "No insights survived the output filter",
		Details:   fmt.Sprintf("rejected insights: %d", rejected),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFabricationDetectedError signals an insight violated the no-raw-data or
// no-fabrication invariant. Never passed through, always rejected.
func NewFabricationDetectedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeFabricationDetected,
		Message:   "Content violates no-fabrication invariant",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQualityGateFailedError carries the violation list from the QA gate.
func NewQualityGateFailedError(violations []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQualityGateFailed,
		Message:   "Aggregate quality thresholds unmet",
		Details:   fmt.Sprintf("violations: %v", violations),
		Retryable: false,
		Metadata:  map[string]interface{}{"violations": violations},
		Timestamp: time.Now().UTC(),
	}
}

// NewCheckpointWriteFailedError creates a retryable checkpoint store error.
func NewCheckpointWriteFailedError(stage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCheckpointWriteFailed,
		Message:   "Checkpoint write failed",
		Details:   fmt.Sprintf("stage: %s, error: %s", stage, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable unknown-session error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Analysis session not found",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionStoreFailedError creates a retryable session persistence error.
func NewSessionStoreFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionStoreFailed,
		Message:   "Session store operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Classification
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProviderUnavailable,
		ErrCodeProviderRateLimited,
		ErrCodeFetchFailed,
		ErrCodeLLMSynthesisFailed,
		ErrCodeCheckpointWriteFailed,
		ErrCodeSessionStoreFailed:
		return 3

	case ErrCodeSearchTimeout:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

// IsRetryable reports whether err should be retried. Unknown error types are
// treated as non-retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable && GetRetryCount(stdErr.Code) > 0
	}
	return false
}

// CodeOf extracts the error code, or "INTERNAL_ERROR" for foreign errors.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeProviderUnavailable, ErrCodeProviderRateLimited, ErrCodeSearchTimeout, ErrCodeSearchNoResults:
		return "search"
	case ErrCodeFetchFailed, ErrCodeExtractionCoverageLow:
		return "extraction"
	case ErrCodeLLMTimeout, ErrCodeLLMSynthesisFailed, ErrCodeSynthesisUnderflow, ErrCodeFabricationDetected:
		return "synthesis"
	case ErrCodeQualityGateFailed:
		return "quality"
	case ErrCodeCheckpointWriteFailed, ErrCodeSessionNotFound, ErrCodeSessionStoreFailed:
		return "persistence"
	default:
		return "general"
	}
}
