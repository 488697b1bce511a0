package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := NewAppError(ErrCodeValidationMissingIssueType, "ISSUE_TYPE not set", nil)
	assert.Equal(t, "validation_missing_issue_type: ISSUE_TYPE not set", appErr.Error())

	wrapped := NewAppError(ErrCodeUpstreamTrap, "trap send failed", errors.New("timeout"))
	assert.Equal(t, "upstream_trap_failed: trap send failed: timeout", wrapped.Error())
}

func TestAppErrorErrorsAs(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeUpstreamTracker, "tracker query failed", underlying)
	chained := fmt.Errorf("resolve: %w", appErr)

	var target *AppError
	require.True(t, errors.As(chained, &target))
	assert.Equal(t, ErrCodeUpstreamTracker, target.Code)
	assert.ErrorIs(t, chained, underlying)
}

func TestAppErrorWithDetails_DoesNotMutateOriginal(t *testing.T) {
	orig := NewAppError(ErrCodeValidationInvalidIssueID, "no issue id", nil)
	orig.Details = map[string]any{"a": 1}

	cp := orig.WithDetails(map[string]any{"b": 2})

	assert.Len(t, orig.Details, 1)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, cp.Details)
	assert.Equal(t, orig.Code, cp.Code)
}

func TestErrorCodeRetryable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeValidationMissingIssueType, false},
		{ErrCodeValidationInvalidIssueID, false},
		{ErrCodeUpstreamTracker, true},
		{ErrCodeUpstreamTrap, true},
		{ErrCodeInternalAudit, false},
		{ErrorCode("something_else"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Retryable())
		})
	}
}
