// Package telemetry reports the outcome of each processed notification.
package telemetry

import (
	"context"
	"time"

	"trapforwarder/internal/types"
)

// Recorder reports one processed notification. Implementations log their
// own failures; reporting never fails the invocation.
type Recorder interface {
	RecordOutcome(ctx context.Context, issueType types.IssueType, outcome types.Outcome, latency time.Duration)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordOutcome(context.Context, types.IssueType, types.Outcome, time.Duration) {}

// Multi reports to every recorder in order.
type Multi []Recorder

func (m Multi) RecordOutcome(ctx context.Context, issueType types.IssueType, outcome types.Outcome, latency time.Duration) {
	for _, r := range m {
		r.RecordOutcome(ctx, issueType, outcome, latency)
	}
}

func issueTypeLabel(t types.IssueType) string {
	if t == "" {
		return "unknown"
	}
	return t.String()
}
