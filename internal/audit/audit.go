// Package audit persists one entry per processed notification, whatever the
// outcome.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"trapforwarder/internal/types"
)

// Entry is the audit record of one invocation.
type Entry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	RequestID   string            `json:"request_id,omitempty"`
	IssueType   string            `json:"issue_type,omitempty"`
	IssueID     string            `json:"issue_id,omitempty"`
	SequenceID  string            `json:"sequence_id,omitempty"`
	TrapState   string            `json:"trap_state"`
	Fields      map[string]string `json:"fields"`
	Environment map[string]string `json:"environment"`
	Error       string            `json:"error,omitempty"`
}

// NewEntry builds the entry for rec. env is the raw input, which may hold
// more than rec.Environment when mapping failed. cause is the fatal error,
// if any.
func NewEntry(ctx context.Context, now time.Time, env map[string]string, rec types.NotificationRecord, cause error) Entry {
	e := Entry{
		ID:          uuid.NewString(),
		Timestamp:   now.UTC(),
		RequestID:   types.GetRequestID(ctx),
		IssueID:     rec.IssueID,
		TrapState:   string(rec.TrapState),
		Fields:      rec.Fields,
		Environment: env,
	}
	if rec.IssueType != "" {
		e.IssueType = string(rec.IssueType)
	}
	if rec.SequenceResolved() {
		e.SequenceID = rec.SequenceID()
	}
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if e.Environment == nil {
		e.Environment = rec.Environment
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return e
}

// Sink appends audit entries.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// MultiSink writes every entry to all of its sinks.
type MultiSink []Sink

// Append writes e to each sink and joins their errors.
func (m MultiSink) Append(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
