package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trapforwarder/internal/audit"
	"trapforwarder/internal/config"
	"trapforwarder/internal/correlation"
	"trapforwarder/internal/delivery"
	"trapforwarder/internal/filter"
	"trapforwarder/internal/mapper"
	"trapforwarder/internal/tracker"
	"trapforwarder/internal/types"
)

const issueID = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

var testTable = mapper.Table{
	types.FieldIssueType:    config.Direct("ISSUE_TYPE"),
	types.FieldSeverity:     config.Direct("SEVERITY"),
	types.FieldMessage:      config.Direct("MESSAGE"),
	types.FieldMessageURL:   config.Direct("MESSAGE_URL"),
	types.FieldContextAttrs: config.Direct("EVENT_CONTEXT_ATTRS"),
	types.FieldHostName:     config.Direct("HOST_NAME"),
	types.FieldEventName:    config.Direct("EVENT_NAME"),
	types.FieldAcked: config.ByIssueType(map[types.IssueType]string{
		types.IssueTypeIncident: "ACKNOWLEDGED",
		types.IssueTypeProblem:  "ACKNOWLEDGED",
	}),
	types.FieldSequenceID: config.ByIssueType(map[types.IssueType]string{
		types.IssueTypeEvent: "EVENT_SEQUENCE_ID",
	}),
}

type fakeSink struct {
	err   error
	calls int
}

func (f *fakeSink) Send(context.Context, types.NotificationRecord) error {
	f.calls++
	return f.err
}

type recordingAudit struct {
	entries []audit.Entry
	err     error
}

func (r *recordingAudit) Append(_ context.Context, e audit.Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

type recordingMetrics struct {
	outcomes []types.Outcome
}

func (r *recordingMetrics) RecordOutcome(_ context.Context, _ types.IssueType, o types.Outcome, _ time.Duration) {
	r.outcomes = append(r.outcomes, o)
}

type harness struct {
	tracker *tracker.StubTracker
	trap    *fakeSink
	metric  *fakeSink
	audit   *recordingAudit
	metrics *recordingMetrics
	proc    *Processor
}

func newHarness(t *testing.T, rules config.FilterRules) *harness {
	t.Helper()
	return newHarnessWithTable(t, testTable, rules)
}

func newHarnessWithTable(t *testing.T, table mapper.Table, rules config.FilterRules) *harness {
	t.Helper()
	h := &harness{
		tracker: tracker.NewStubTracker(),
		trap:    &fakeSink{},
		metric:  &fakeSink{},
		audit:   &recordingAudit{},
		metrics: &recordingMetrics{},
	}
	f, err := filter.New(rules)
	require.NoError(t, err)

	noSleep := func(context.Context, time.Duration) error { return nil }
	h.proc = NewProcessor(Deps{
		Table:    table,
		Resolver: correlation.NewResolver(h.tracker, correlation.DefaultRetryPolicy(), noSleep, nil),
		Filter:   f,
		Emitter:  delivery.NewEmitter(h.trap, h.metric, nil),
		Audit:    h.audit,
		Metrics:  h.metrics,
	})
	return h
}

func (h *harness) onlyEntry(t *testing.T) audit.Entry {
	t.Helper()
	require.Len(t, h.audit.entries, 1, "exactly one audit entry per invocation")
	return h.audit.entries[0]
}

func incidentEnv(severity string) map[string]string {
	return map[string]string{
		"ISSUE_TYPE":  "2",
		"MESSAGE_URL": "https://oms.example.com/em/redirect?pageType=incident&issueID=" + issueID,
		"SEVERITY":    severity,
		"MESSAGE":     "Tablespace USERS is 97% full",
		"HOST_NAME":   "db01",
	}
}

// Scenario A
func TestProcess_EventIsEmitted(t *testing.T) {
	h := newHarness(t, nil)

	seq, err := h.proc.Process(context.Background(), map[string]string{
		"ISSUE_TYPE":        "1",
		"EVENT_NAME":        "CPU High",
		"MESSAGE":           "cpu busy",
		"SEVERITY":          "Critical",
		"EVENT_SEQUENCE_ID": "EVT-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "EVT-9", seq)
	assert.Equal(t, 1, h.trap.calls)
	assert.Equal(t, 1, h.metric.calls)

	e := h.onlyEntry(t)
	assert.Equal(t, "sent, metric-sent", e.TrapState)
	assert.Equal(t, "EVT-9", e.SequenceID)
	assert.Equal(t, "cpu busy", e.Environment["MESSAGE"])
	assert.Equal(t, []types.Outcome{types.OutcomeSent}, h.metrics.outcomes)
}

// Scenario B
func TestProcess_AlreadySentIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.tracker.SetEventIDs(issueID, "EVT1")
	h.tracker.MarkSent(issueID, "Critical")

	seq, err := h.proc.Process(context.Background(), incidentEnv("Critical"))
	require.NoError(t, err)
	assert.Equal(t, "EVT1", seq)
	assert.Zero(t, h.trap.calls)
	assert.Zero(t, h.metric.calls)

	e := h.onlyEntry(t)
	assert.Equal(t, "skipped", e.TrapState)
	assert.Equal(t, issueID, e.IssueID)
	assert.Equal(t, []types.Outcome{types.OutcomeSkipped}, h.metrics.outcomes)
}

// Scenario C
func TestProcess_AcknowledgedIsEmitted(t *testing.T) {
	h := newHarness(t, nil)
	h.tracker.SetEventIDs(issueID, "EVT1")
	h.tracker.MarkSent(issueID, "Critical")

	env := incidentEnv("Critical")
	env["ACKNOWLEDGED"] = "Yes"
	seq, err := h.proc.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "EVT1", seq)
	assert.Equal(t, 1, h.trap.calls)
	assert.Equal(t, "sent, metric-sent", h.onlyEntry(t).TrapState)
}

// Scenario D
func TestProcess_OrphanClearIsEmitted(t *testing.T) {
	h := newHarness(t, nil)
	h.tracker.SetEventIDs(issueID, "EVT1")

	seq, err := h.proc.Process(context.Background(), incidentEnv("Clear"))
	require.NoError(t, err)
	assert.Equal(t, "EVT1", seq)
	assert.Equal(t, 1, h.trap.calls)
}

func TestProcess_NoEventsUsesIssueID(t *testing.T) {
	h := newHarness(t, nil)

	seq, err := h.proc.Process(context.Background(), incidentEnv("Warning"))
	require.NoError(t, err)
	assert.Equal(t, issueID, seq)
}

func TestProcess_Filtered(t *testing.T) {
	h := newHarness(t, config.FilterRules{"message": {"Tablespace \\w+ is"}})

	seq, err := h.proc.Process(context.Background(), incidentEnv("Warning"))
	require.NoError(t, err)
	assert.Equal(t, issueID, seq)
	assert.Zero(t, h.trap.calls)
	assert.Equal(t, "filtered", h.onlyEntry(t).TrapState)
	assert.Equal(t, []types.Outcome{types.OutcomeFiltered}, h.metrics.outcomes)
}

func TestProcess_FilteredOnMappedEventName(t *testing.T) {
	table := mapper.Table{
		types.FieldIssueType:  config.Direct("ISSUE_TYPE"),
		types.FieldSeverity:   config.Direct("SEVERITY"),
		types.FieldMessageURL: config.Direct("MESSAGE_URL"),
		types.FieldEventName: config.ByIssueType(map[types.IssueType]string{
			types.IssueTypeEvent:    "EVENT_NAME",
			types.IssueTypeIncident: "INCIDENT_NAME",
		}),
	}
	h := newHarnessWithTable(t, table, config.FilterRules{"event_name": {"^Heartbeat"}})

	env := incidentEnv("Critical")
	env["EVENT_NAME"] = "Agent status"
	env["INCIDENT_NAME"] = "Heartbeat lost"

	seq, err := h.proc.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, issueID, seq)
	assert.Zero(t, h.trap.calls)
	assert.Equal(t, "filtered", h.onlyEntry(t).TrapState)
}

func TestProcess_EventWithoutMappedSequenceID(t *testing.T) {
	table := mapper.Table{
		types.FieldIssueType: config.Direct("ISSUE_TYPE"),
		types.FieldMessage:   config.Direct("MESSAGE"),
	}
	h := newHarnessWithTable(t, table, nil)

	seq, err := h.proc.Process(context.Background(), map[string]string{"ISSUE_TYPE": "1", "MESSAGE": "m"})
	require.NoError(t, err)
	assert.Empty(t, seq)
	assert.Equal(t, 1, h.trap.calls)

	e := h.onlyEntry(t)
	assert.Equal(t, "", e.Fields[types.FieldSequenceID])
	assert.NotEqual(t, types.SequenceIDUnresolved, e.SequenceID)
}

func TestProcess_MissingIssueType(t *testing.T) {
	h := newHarness(t, nil)

	seq, err := h.proc.Process(context.Background(), map[string]string{"MESSAGE": "orphan"})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingIssueType, appErr.Code)
	assert.Empty(t, seq)

	e := h.onlyEntry(t)
	assert.Equal(t, "exception", e.TrapState)
	assert.Equal(t, "orphan", e.Environment["MESSAGE"])
	assert.Empty(t, e.SequenceID)
	assert.Contains(t, e.Error, "ISSUE_TYPE")
	assert.Equal(t, []types.Outcome{types.OutcomeFailed}, h.metrics.outcomes)
}

func TestProcess_UnparseableIssueURL(t *testing.T) {
	h := newHarness(t, nil)
	env := incidentEnv("Critical")
	env["MESSAGE_URL"] = "https://oms.example.com/em/redirect?pageType=incident"

	_, err := h.proc.Process(context.Background(), env)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidIssueID, appErr.Code)

	e := h.onlyEntry(t)
	assert.Equal(t, "exception", e.TrapState)
	assert.Equal(t, "Critical", e.Fields[types.FieldSeverity], "mapped fields survive into the audit entry")
	assert.Zero(t, h.trap.calls)
}

func TestProcess_TrapFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.trap.err = errors.New("host unreachable")

	seq, err := h.proc.Process(context.Background(), incidentEnv("Critical"))
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamTrap, appErr.Code)
	assert.Empty(t, seq)
	assert.Zero(t, h.metric.calls)

	e := h.onlyEntry(t)
	assert.Equal(t, "exception", e.TrapState, "exception is recorded once")
	assert.Equal(t, issueID, e.SequenceID)
}

func TestProcess_MetricFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.metric.err = errors.New("connection refused")

	seq, err := h.proc.Process(context.Background(), incidentEnv("Critical"))
	require.NoError(t, err)
	assert.Equal(t, issueID, seq)
	assert.Equal(t, "sent, metric-failed", h.onlyEntry(t).TrapState)
	assert.Equal(t, []types.Outcome{types.OutcomeSent}, h.metrics.outcomes)
}

func TestProcess_AuditFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.audit.err = errors.New("disk full")

	seq, err := h.proc.Process(context.Background(), incidentEnv("Critical"))
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalAudit, appErr.Code)
	assert.Empty(t, seq)
	assert.Equal(t, 1, h.trap.calls)
}

func TestProcess_AuditFailureKeepsOriginalError(t *testing.T) {
	h := newHarness(t, nil)
	h.audit.err = errors.New("disk full")

	_, err := h.proc.Process(context.Background(), map[string]string{})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingIssueType, appErr.Code)
}

func TestProcess_RequestIDReachesAudit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := types.WithRequestID(context.Background(), "req-77")

	_, err := h.proc.Process(ctx, map[string]string{"ISSUE_TYPE": "1"})
	require.NoError(t, err)
	assert.Equal(t, "req-77", h.onlyEntry(t).RequestID)
}
