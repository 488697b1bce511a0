// Package tracker queries the incident-management platform, the single
// source of truth for "has an alert already gone out for this issue".
package tracker

import (
	"context"
	"fmt"
	"regexp"

	"trapforwarder/internal/types"
)

// Tracker is the read-only oracle consulted for Incident and Problem
// notifications. Both calls may take seconds and may lag the platform's own
// writes by a short window.
type Tracker interface {
	// GetEventID returns the sequence ids of the events behind the issue,
	// oldest first. An empty result is not an error.
	GetEventID(ctx context.Context, issueID string) ([]string, error)

	// CheckMessageSent reports whether a notification with this severity has
	// already been delivered for the issue.
	CheckMessageSent(ctx context.Context, issueID, severity string) (bool, error)
}

var issueIDPattern = regexp.MustCompile(`^[0-9A-F]{32}$`)

// ValidIssueID reports whether id has the platform's 32 hex character form.
func ValidIssueID(id string) bool {
	return issueIDPattern.MatchString(id)
}

func trackerError(op string, err error) error {
	return types.NewAppError(types.ErrCodeUpstreamTracker, op+" failed", err)
}

func invalidIssueID(id string) error {
	return types.NewAppError(types.ErrCodeValidationInvalidIssueID,
		fmt.Sprintf("issue id %q is not 32 hex characters", id), nil)
}
