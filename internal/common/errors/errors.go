// Package errors provides the standardized error taxonomy shared by workers and HTTP endpoints.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation            ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidCategory       ErrorCode = "INVALID_CATEGORY"
	ErrCodeSourceFetchFailed     ErrorCode = "SOURCE_FETCH_FAILED"
	ErrCodePersistenceFailed     ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeStalePruneFailed      ErrorCode = "STALE_PRUNE_FAILED"
	ErrCodeEnrichmentUnavailable ErrorCode = "ENRICHMENT_UNAVAILABLE"
	ErrCodeBackfillFailed        ErrorCode = "BACKFILL_FAILED"
	ErrCodeSearchIndexFailed     ErrorCode = "SEARCH_INDEX_FAILED"
	ErrCodeSearchQueryFailed     ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeCacheFailed           ErrorCode = "CACHE_FAILED"
	ErrCodeTimeout               ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewValidationError reports a missing or malformed required input.
func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidation, "Validation failed", details, false, nil)
}

// NewUnauthorizedError reports a failed shared-secret check.
func NewUnauthorizedError() *StandardError {
	return newError(ErrCodeUnauthorized, "Unauthorized", "worker secret mismatch", false, nil)
}

func NewInvalidCategoryError(category string) *StandardError {
	return newError(ErrCodeInvalidCategory, "Unknown ranking category",
		fmt.Sprintf("category: %s", category), false, nil)
}

// NewSourceFetchError wraps a failure to read the user's rated items.
func NewSourceFetchError(userID string, err error) *StandardError {
	return newError(ErrCodeSourceFetchFailed, "Failed to fetch rated items",
		fmt.Sprintf("userId: %s, error: %s", userID, err.Error()), true, err)
}

// NewPersistenceError wraps a failed statistics batch write.
func NewPersistenceError(batch int, err error) *StandardError {
	return newError(ErrCodePersistenceFailed, "Failed to persist ranking statistics",
		fmt.Sprintf("batch: %d, error: %s", batch, err.Error()), true, err).
		WithMetadata("batch", batch)
}

func NewStalePruneError(err error) *StandardError {
	return newError(ErrCodeStalePruneFailed, "Failed to prune stale statistics", err.Error(), true, err)
}

// NewEnrichmentUnavailableError marks an item with no metadata available. Never fatal to a run.
func NewEnrichmentUnavailableError(movieID string, err error) *StandardError {
	details := fmt.Sprintf("movieId: %s", movieID)
	if err != nil {
		details = fmt.Sprintf("%s, error: %s", details, err.Error())
	}
	return newError(ErrCodeEnrichmentUnavailable, "Metadata unavailable", details, false, err)
}

func NewBackfillError(err error) *StandardError {
	return newError(ErrCodeBackfillFailed, "Backfill slice failed", err.Error(), true, err)
}

func NewSearchIndexError(index string, err error) *StandardError {
	return newError(ErrCodeSearchIndexFailed, "Search index write failed",
		fmt.Sprintf("index: %s, error: %s", index, err.Error()), true, err)
}

func NewSearchQueryError(index string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Search query failed",
		fmt.Sprintf("index: %s, error: %s", index, err.Error()), true, err)
}

func NewCacheError(op string, err error) *StandardError {
	return newError(ErrCodeCacheFailed, "Cache operation failed",
		fmt.Sprintf("op: %s, error: %s", op, err.Error()), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 4. Error Conversion
// ==========================

// As extracts a StandardError from an error chain, or wraps err as INTERNAL_ERROR.
func As(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err carries a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSourceFetchFailed,
		ErrCodePersistenceFailed,
		ErrCodeBackfillFailed,
		ErrCodeSearchQueryFailed:
		return 3

	case ErrCodeTimeout,
		ErrCodeStalePruneFailed,
		ErrCodeSearchIndexFailed,
		ErrCodeCacheFailed:
		return 2

	default:
		return 0
	}
}

// HTTPStatus maps an error code to the status the worker endpoints respond with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation, ErrCodeInvalidCategory:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case code == ErrCodeUnauthorized:
		return "AUTH"
	case code == ErrCodeSourceFetchFailed || code == ErrCodePersistenceFailed || strings.Contains(codeStr, "PRUNE"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "ENRICHMENT") || strings.Contains(codeStr, "BACKFILL"):
		return "ENRICHMENT"
	case code == ErrCodeCacheFailed:
		return "CACHE"
	default:
		return "OTHER"
	}
}
