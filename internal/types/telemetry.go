package types

// Telemetry metric names. All recorders MUST use these constants.
const (
	MetricNotificationProcessed = "NotificationProcessed"
	MetricProcessingLatency     = "NotificationProcessingLatency"

	DimIssueType = "IssueType"
	DimOutcome   = "Outcome"

	MetricNamespace = "TrapForwarder"
)

// Outcome is the terminal state of one invocation, as reported to metrics.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFiltered Outcome = "filtered"
	OutcomeFailed   Outcome = "failed"
)
