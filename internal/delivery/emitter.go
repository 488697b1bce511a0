package delivery

import (
	"context"

	"trapforwarder/internal/types"
)

// Sink delivers a record to one downstream system.
type Sink interface {
	Send(ctx context.Context, rec types.NotificationRecord) error
}

// Emitter drives the trap sink and then the metric sink. The trap is
// required; the metric is best effort.
type Emitter struct {
	trap   Sink
	metric Sink
	logger types.Logger
}

// NewEmitter creates an Emitter. metric may be nil to send traps only.
func NewEmitter(trap, metric Sink, logger types.Logger) *Emitter {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Emitter{trap: trap, metric: metric, logger: logger}
}

// Emit sends rec and returns it with the delivery markers appended. A trap
// failure stops emission and comes back as an upstream_trap_failed error
// together with the record marked "exception". A metric failure only adds
// "metric-failed".
func (e *Emitter) Emit(ctx context.Context, rec types.NotificationRecord) (types.NotificationRecord, error) {
	logger := e.logger.With("sequence_id", rec.SequenceID(), "issue_type", rec.IssueType.String())

	if err := e.trap.Send(ctx, rec); err != nil {
		rec = rec.WithTrapState(rec.TrapState.Append(types.TrapException))
		logger.Error("trap delivery failed", "error", err)
		return rec, types.NewAppError(types.ErrCodeUpstreamTrap, "trap delivery failed", err)
	}
	rec = rec.WithTrapState(rec.TrapState.Append(types.TrapSent))

	if e.metric == nil {
		return rec, nil
	}

	if err := e.metric.Send(ctx, rec); err != nil {
		metricErr := types.NewAppError(types.ErrCodeUpstreamMetric, "metric delivery failed", err)
		logger.Warn("metric delivery failed", "error", metricErr.Error(), "code", string(metricErr.Code))
		return rec.WithTrapState(rec.TrapState.Append(types.TrapMetricFailed)), nil
	}
	return rec.WithTrapState(rec.TrapState.Append(types.TrapMetricSent)), nil
}
