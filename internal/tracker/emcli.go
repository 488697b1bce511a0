package tracker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"trapforwarder/internal/types"
)

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args. Standard error is folded into the returned
// error so a failing emcli explains itself in the audit log.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// Resources and columns queried through "emcli list".
const (
	emcliEventsResource        = "Events"
	emcliNotificationsResource = "EventNotifications"
	emcliSequenceColumn        = "EVENT_SEQ_ID"
	emcliStatusColumn          = "NOTIFICATION_STATUS"
	emcliStatusSent            = "SENT"
)

// EmcliTracker answers tracker queries by running the platform command line
// interface, one process per query.
type EmcliTracker struct {
	path    string
	timeout time.Duration
	runner  CommandRunner
	logger  types.Logger
}

// NewEmcliTracker creates an EmcliTracker running the binary at path. A zero
// timeout means no per-query limit beyond ctx.
func NewEmcliTracker(path string, timeout time.Duration, runner CommandRunner, logger types.Logger) *EmcliTracker {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &EmcliTracker{path: path, timeout: timeout, runner: runner, logger: logger}
}

var _ Tracker = (*EmcliTracker)(nil)

// GetEventID lists the sequence ids of the events that formed the issue.
func (t *EmcliTracker) GetEventID(ctx context.Context, issueID string) ([]string, error) {
	if !ValidIssueID(issueID) {
		return nil, invalidIssueID(issueID)
	}

	out, err := t.list(ctx, emcliEventsResource, emcliSequenceColumn, searchExpr("ISSUE_ID", issueID))
	if err != nil {
		return nil, trackerError("emcli get event id", err)
	}

	ids := parseLines(out)
	t.logger.Info("tracker event ids", "issue_id", issueID, "count", len(ids))
	return ids, nil
}

// CheckMessageSent looks for a delivered notification with the severity.
func (t *EmcliTracker) CheckMessageSent(ctx context.Context, issueID, severity string) (bool, error) {
	if !ValidIssueID(issueID) {
		return false, invalidIssueID(issueID)
	}

	out, err := t.list(ctx, emcliNotificationsResource, emcliStatusColumn,
		searchExpr("ISSUE_ID", issueID), searchExpr("SEVERITY", severity))
	if err != nil {
		return false, trackerError("emcli check message sent", err)
	}

	for _, status := range parseLines(out) {
		if strings.EqualFold(status, emcliStatusSent) {
			return true, nil
		}
	}
	return false, nil
}

func (t *EmcliTracker) list(ctx context.Context, resource, column string, searches ...string) ([]byte, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	args := []string{"list", "-resource=" + resource}
	for _, s := range searches {
		args = append(args, "-search="+s)
	}
	args = append(args, "-columns="+column, "-script", "-noheader")

	return t.runner.Run(ctx, t.path, args...)
}

// searchExpr builds an emcli search clause, doubling single quotes in value.
func searchExpr(column, value string) string {
	return fmt.Sprintf("%s='%s'", column, strings.ReplaceAll(value, "'", "''"))
}

// parseLines returns the first column of every non-empty output line.
func parseLines(out []byte) []string {
	var values []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if i := strings.IndexByte(line, '\t'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		values = append(values, line)
	}
	return values
}
