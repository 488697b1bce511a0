// Package correlation decides the sequence id of a notification and whether
// it duplicates an alert the tracker has already delivered.
package correlation

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"trapforwarder/internal/tracker"
	"trapforwarder/internal/types"
)

// issueURLPattern captures the issue id at the very end of a message URL.
var issueURLPattern = regexp.MustCompile(`&issueID=([0-9A-F]{32})$`)

// ExtractIssueID returns the 32 hex character issue id trailing a message
// URL, or "" and false when the URL does not end with one.
func ExtractIssueID(messageURL string) (string, bool) {
	m := issueURLPattern.FindStringSubmatch(messageURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RetryPolicy bounds the re-check of CheckMessageSent that absorbs the lag
// between the platform delivering a message and recording it as sent.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy is one retry after two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, Delay: 2 * time.Second}
}

// normalized clamps the policy to at most one retry. Every invocation is
// expected to finish promptly.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries > 1 {
		p.MaxRetries = 1
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Reasons reported in Decision.Reason.
const (
	ReasonEvent        = "event"
	ReasonNotSent      = "not_sent"
	ReasonAlreadySent  = "already_sent"
	ReasonAcknowledged = "acknowledged"
	ReasonOrphanClear  = "orphan_clear"
)

// Decision is the outcome of Resolve. Record carries the resolved sequence
// id and, when Suppress is set, the "skipped" trap state.
type Decision struct {
	Record   types.NotificationRecord
	Suppress bool
	Reason   string
}

// Resolver runs the correlation state machine against a Tracker.
type Resolver struct {
	tracker tracker.Tracker
	policy  RetryPolicy
	sleep   types.Sleeper
	logger  types.Logger
}

// NewResolver creates a Resolver. A nil sleeper waits on a real timer.
func NewResolver(t tracker.Tracker, policy RetryPolicy, sleep types.Sleeper, logger types.Logger) *Resolver {
	if sleep == nil {
		sleep = types.ContextSleep
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Resolver{
		tracker: t,
		policy:  policy.normalized(),
		sleep:   sleep,
		logger:  logger,
	}
}

// Resolve decides the sequence id and suppression for rec. Event records
// never reach the tracker. On error the returned Decision still carries the
// last record state reached so the caller can audit it.
func (r *Resolver) Resolve(ctx context.Context, rec types.NotificationRecord) (Decision, error) {
	if !rec.IssueType.Correlated() {
		// Events carry their own id; an unmapped one is empty, never the sentinel.
		if !rec.SequenceResolved() {
			rec = rec.WithSequenceID("")
		}
		return Decision{Record: rec, Reason: ReasonEvent}, nil
	}

	issueID, ok := issueIDFor(rec)
	if !ok {
		return Decision{Record: rec}, types.NewAppError(types.ErrCodeValidationInvalidIssueID,
			"message url carries no issue id", nil).WithDetails(map[string]any{
			"message_url": rec.MessageURL(),
		})
	}
	rec = rec.WithIssueID(issueID)
	logger := r.logger.With("issue_id", issueID, "issue_type", rec.IssueType.String())

	eventIDs, err := r.tracker.GetEventID(ctx, issueID)
	if err != nil {
		return Decision{Record: rec}, fmt.Errorf("resolve sequence id: %w", err)
	}
	if len(eventIDs) > 0 {
		rec = rec.WithSequenceID(eventIDs[0])
	} else {
		rec = rec.WithSequenceID(issueID)
	}

	sent, err := r.checkSent(ctx, rec, logger)
	if err != nil {
		return Decision{Record: rec}, fmt.Errorf("check message sent: %w", err)
	}

	suppress, reason := decide(sent, rec.Severity(), rec.AssocIncidentAcked())
	if suppress {
		rec = rec.WithTrapState(rec.TrapState.Set(types.TrapSkipped))
	}

	logger.Info("correlation decided",
		"sequence_id", rec.SequenceID(),
		"message_sent", sent,
		"suppress", suppress,
		"reason", reason,
	)
	return Decision{Record: rec, Suppress: suppress, Reason: reason}, nil
}

func (r *Resolver) checkSent(ctx context.Context, rec types.NotificationRecord, logger types.Logger) (bool, error) {
	for attempt := 0; ; attempt++ {
		sent, err := r.tracker.CheckMessageSent(ctx, rec.IssueID, rec.Severity())
		if err != nil || sent || attempt >= r.policy.MaxRetries {
			return sent, err
		}
		logger.Info("message not recorded as sent, re-checking", "delay", r.policy.Delay)
		if err := r.sleep(ctx, r.policy.Delay); err != nil {
			return false, err
		}
	}
}

// decide applies the suppression rule and its two overrides. sent is the
// final CheckMessageSent answer.
func decide(sent bool, severity, acked string) (bool, string) {
	switch {
	case !sent && severity == types.SeverityClear:
		return false, ReasonOrphanClear
	case !sent:
		return false, ReasonNotSent
	case acked == types.AckedYes:
		return false, ReasonAcknowledged
	default:
		return true, ReasonAlreadySent
	}
}

// issueIDFor reads the issue id from the raw MESSAGE_URL, which is never
// truncated, falling back to the mapped field.
func issueIDFor(rec types.NotificationRecord) (string, bool) {
	if raw, ok := rec.Env(types.EnvMessageURL); ok {
		return ExtractIssueID(raw)
	}
	return ExtractIssueID(rec.MessageURL())
}
