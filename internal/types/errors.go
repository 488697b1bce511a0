package types

import (
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All packages MUST use these constants instead of hardcoded strings.
const (
	// Input (fatal, never retried)
	ErrCodeValidationMissingIssueType ErrorCode = "validation_missing_issue_type"
	ErrCodeValidationInvalidIssueType ErrorCode = "validation_invalid_issue_type"
	ErrCodeValidationInvalidIssueID   ErrorCode = "validation_invalid_issue_id"

	// Upstream collaborators
	ErrCodeUpstreamTracker     ErrorCode = "upstream_tracker_unavailable"
	ErrCodeUpstreamTrap        ErrorCode = "upstream_trap_failed"
	ErrCodeUpstreamMetric      ErrorCode = "upstream_metric_failed"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Internal
	ErrCodeInternalAudit      ErrorCode = "internal_audit_failed"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// Retryable reports whether an error with this code is transient. Input
// errors will fail identically on every attempt; upstream errors may not.
func (c ErrorCode) Retryable() bool {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return false
	case strings.HasPrefix(s, "upstream_"):
		return true
	default:
		return false
	}
}

// AppError is the standard application error type used throughout the forwarder.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
