// Package pipeline runs one notification through mapping, correlation,
// filtering and emission, and audits the result on every exit path.
package pipeline

import (
	"context"
	"errors"
	"time"

	"trapforwarder/internal/audit"
	"trapforwarder/internal/correlation"
	"trapforwarder/internal/mapper"
	"trapforwarder/internal/telemetry"
	"trapforwarder/internal/types"
)

// Resolver decides sequence id and suppression.
type Resolver interface {
	Resolve(ctx context.Context, rec types.NotificationRecord) (correlation.Decision, error)
}

// ContentFilter reports whether a record must not be emitted.
type ContentFilter interface {
	Match(rec types.NotificationRecord) (string, bool)
}

// Emitter delivers a record downstream.
type Emitter interface {
	Emit(ctx context.Context, rec types.NotificationRecord) (types.NotificationRecord, error)
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Table    mapper.Table
	Resolver Resolver
	Filter   ContentFilter
	Emitter  Emitter
	Audit    audit.Sink
	Metrics  telemetry.Recorder
	Clock    types.Clock
	Logger   types.Logger
}

// Processor handles one notification per Process call. It holds no
// per-notification state and is safe for concurrent use when its
// collaborators are.
type Processor struct {
	deps Deps
}

// NewProcessor creates a Processor. Metrics, Clock and Logger default to
// no-op or real implementations.
func NewProcessor(deps Deps) *Processor {
	if deps.Metrics == nil {
		deps.Metrics = telemetry.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = types.NopLogger{}
	}
	return &Processor{deps: deps}
}

// run tracks the state of one invocation for the deferred audit.
type run struct {
	env     map[string]string
	rec     types.NotificationRecord
	outcome types.Outcome
}

// Process handles the notification described by env and returns its
// sequence id. Suppressed and filtered notifications are not errors. Every
// call writes exactly one audit entry, including when it fails; the error is
// returned after the entry is written.
func (p *Processor) Process(ctx context.Context, env map[string]string) (seqID string, err error) {
	start := p.deps.Clock.Now()
	logger := p.deps.Logger
	if l := types.LoggerFromContext(ctx); l != nil {
		logger = l
	}
	if id := types.GetRequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}

	r := &run{env: env, outcome: types.OutcomeFailed}
	defer func() {
		err = p.finish(ctx, logger, start, r, err)
		if err != nil {
			seqID = ""
		}
	}()

	rec, err := mapper.Map(env, p.deps.Table)
	if err != nil {
		return "", err
	}
	r.rec = rec
	logger = logger.With("issue_type", rec.IssueType.String())

	decision, err := p.deps.Resolver.Resolve(ctx, rec)
	r.rec = decision.Record
	if err != nil {
		if decision.Record.Fields == nil {
			r.rec = rec
		}
		return "", err
	}
	rec = decision.Record

	if decision.Suppress {
		r.outcome = types.OutcomeSkipped
		logger.Info("notification suppressed",
			"issue_id", rec.IssueID,
			"sequence_id", rec.SequenceID(),
			"reason", decision.Reason,
		)
		return rec.SequenceID(), nil
	}

	if match, ok := p.deps.Filter.Match(rec); ok {
		rec = rec.WithTrapState(rec.TrapState.Set(types.TrapFiltered))
		r.rec = rec
		r.outcome = types.OutcomeFiltered
		logger.Info("notification filtered", "sequence_id", rec.SequenceID(), "rule", match)
		return rec.SequenceID(), nil
	}

	rec, err = p.deps.Emitter.Emit(ctx, rec)
	r.rec = rec
	if err != nil {
		return "", err
	}

	r.outcome = types.OutcomeSent
	return rec.SequenceID(), nil
}

// finish writes the audit entry and the outcome metric. A failed audit
// write only becomes the result when processing itself succeeded.
func (p *Processor) finish(ctx context.Context, logger types.Logger, start time.Time, r *run, cause error) error {
	rec := r.rec
	if cause != nil {
		r.outcome = types.OutcomeFailed
		if !rec.TrapState.Has(types.TrapException) {
			rec = rec.WithTrapState(rec.TrapState.Append(types.TrapException))
		}
	}

	entry := audit.NewEntry(ctx, p.deps.Clock.Now(), r.env, rec, cause)
	auditErr := p.deps.Audit.Append(ctx, entry)

	p.deps.Metrics.RecordOutcome(ctx, rec.IssueType, r.outcome, p.deps.Clock.Now().Sub(start))

	if cause != nil {
		logger.Error("notification failed",
			"error", cause.Error(),
			"code", string(errorCode(cause)),
			"trap_state", string(rec.TrapState),
			"audit_entry", entry.ID,
		)
	} else {
		logger.Info("notification processed",
			"sequence_id", rec.SequenceID(),
			"trap_state", string(rec.TrapState),
			"audit_entry", entry.ID,
		)
	}

	if auditErr != nil {
		logger.Error("audit append failed", "error", auditErr.Error(), "audit_entry", entry.ID)
		if cause == nil {
			return types.NewAppError(types.ErrCodeInternalAudit, "audit append failed", auditErr)
		}
	}
	return cause
}

func errorCode(err error) types.ErrorCode {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return types.ErrCodeInternalUnexpected
}
