// Package errors provides standardized error handling for the submission engine.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeCircuitOpen          ErrorCode = "CIRCUIT_OPEN"
	ErrCodeNetworkTimeout       ErrorCode = "NETWORK_TIMEOUT"
	ErrCodeServicerUnavailable  ErrorCode = "SERVICER_UNAVAILABLE"
	ErrCodeSubmissionFailed     ErrorCode = "SUBMISSION_FAILED"
	ErrCodeTransformFailed      ErrorCode = "TRANSFORM_FAILED"
	ErrCodeAdapterNotFound      ErrorCode = "ADAPTER_NOT_FOUND"
	ErrCodeTaskNotFound         ErrorCode = "TASK_NOT_FOUND"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeDatabaseUpdateFailed     ErrorCode = "DATABASE_UPDATE_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeIntelligenceFailed     ErrorCode = "INTELLIGENCE_FAILED"
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

// NewAuthenticationError creates a non-retryable authentication error.
// Retrying cannot fix an invalid credential.
func NewAuthenticationError(servicerID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthenticationFailed,
		Message:   fmt.Sprintf("Authentication with servicer '%s' failed", servicerID),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable validation error.
// Identical input fails identically, so retrying is pointless.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Submission package failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCircuitOpenError creates the synthetic retryable error raised when the
// breaker for a servicer is open. It does not count as a servicer-caused
// failure for breaker accounting.
func NewCircuitOpenError(servicerID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCircuitOpen,
		Message:   fmt.Sprintf("Circuit breaker open for servicer '%s'", servicerID),
		Details:   "submission skipped without contacting the servicer",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNetworkTimeoutError creates a retryable timeout error.
func NewNetworkTimeoutError(servicerID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNetworkTimeout,
		Message:   fmt.Sprintf("Network timeout reaching servicer '%s'", servicerID),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewServicerUnavailableError creates a retryable servicer-side error.
func NewServicerUnavailableError(servicerID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeServicerUnavailable,
		Message:   fmt.Sprintf("Servicer '%s' unavailable", servicerID),
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSubmissionFailedError creates a retryable generic submission error.
func NewSubmissionFailedError(servicerID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubmissionFailed,
		Message:   fmt.Sprintf("Submission to servicer '%s' failed", servicerID),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransformFailedError creates a non-retryable transformation error.
func NewTransformFailedError(servicerID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransformFailed,
		Message:   fmt.Sprintf("Transformation for servicer '%s' failed", servicerID),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAdapterNotFoundError creates a non-retryable adapter resolution error.
func NewAdapterNotFoundError(servicerID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAdapterNotFound,
		Message:   "No adapter configured for servicer",
		Details:   fmt.Sprintf("servicerId: %s", servicerID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTaskNotFoundError creates a non-retryable task lookup error.
func NewTaskNotFoundError(taskID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTaskNotFound,
		Message:   "Submission task not found",
		Details:   fmt.Sprintf("taskId: %s", taskID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseUpdateFailedError creates a retryable database update error.
func NewDatabaseUpdateFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseUpdateFailed,
		Message:   "Database update operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Error Classification
// ==========================

// Category is the coarse failure taxonomy driving retry decisions.
type Category string

const (
	CategoryTransient      Category = "TRANSIENT"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryValidation     Category = "VALIDATION"
	CategoryCircuitOpen    Category = "CIRCUIT_OPEN"
)

// Classify maps an error (possibly raw transport text from an adapter) into
// the failure taxonomy. StandardError codes are honored first; otherwise the
// message text is scanned the way the upstream services phrase their failures.
func Classify(err error) Category {
	if err == nil {
		return CategoryTransient
	}

	if stdErr, ok := err.(*StandardError); ok {
		switch stdErr.Code {
		case ErrCodeAuthenticationFailed:
			return CategoryAuthentication
		case ErrCodeValidationFailed, ErrCodeTransformFailed:
			return CategoryValidation
		case ErrCodeCircuitOpen:
			return CategoryCircuitOpen
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "credential"):
		return CategoryAuthentication
	case strings.Contains(msg, "validation") ||
		strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "unsupported format"):
		return CategoryValidation
	case strings.Contains(msg, "circuit breaker open") ||
		strings.Contains(msg, "circuit open"):
		return CategoryCircuitOpen
	default:
		return CategoryTransient
	}
}

// IsRetryableCategory reports whether a failure category is eligible for retry.
// Circuit-open failures are retryable: the breaker resolves them on its own.
func IsRetryableCategory(cat Category) bool {
	return cat == CategoryTransient || cat == CategoryCircuitOpen
}
