package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"trapforwarder/internal/types"
)

var _ Recorder = (*PushRecorder)(nil)

// PushRecorder pushes outcome metrics to a Prometheus Pushgateway. A
// one-shot process lives too briefly to be scraped.
type PushRecorder struct {
	registry  *prometheus.Registry
	processed *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	pusher    *push.Pusher
	logger    types.Logger
}

// NewPushRecorder creates a recorder pushing to the gateway at url under job.
func NewPushRecorder(url, job string, logger types.Logger) *PushRecorder {
	if logger == nil {
		logger = types.NopLogger{}
	}

	processed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trapforwarder_notifications_processed_total",
			Help: "Processed notifications by issue type and outcome.",
		},
		[]string{"issue_type", "outcome"},
	)
	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trapforwarder_processing_duration_seconds",
			Help:    "Time from receiving a notification to its audit entry.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"issue_type"},
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(processed, latency)

	return &PushRecorder{
		registry:  reg,
		processed: processed,
		latency:   latency,
		pusher:    push.New(url, job).Gatherer(reg),
		logger:    logger,
	}
}

// RecordOutcome updates the collectors and pushes them.
func (r *PushRecorder) RecordOutcome(ctx context.Context, issueType types.IssueType, outcome types.Outcome, latency time.Duration) {
	label := issueTypeLabel(issueType)
	r.processed.WithLabelValues(label, string(outcome)).Inc()
	r.latency.WithLabelValues(label).Observe(latency.Seconds())

	if err := r.pusher.AddContext(ctx); err != nil {
		r.logger.Error("failed to push outcome metric",
			"error", err.Error(),
			"issue_type", label,
			"outcome", string(outcome),
		)
	}
}
