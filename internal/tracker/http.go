package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"trapforwarder/internal/external"
	"trapforwarder/internal/types"
)

// maxResponseBytes bounds how much of a tracker response is read.
const maxResponseBytes = 1 << 20

// HTTPTracker answers tracker queries through the platform's REST API.
//
//	GET {base}/issues/{issueID}/events                    -> {"items":[{"sequenceId":"..."}]}
//	GET {base}/issues/{issueID}/notifications?severity=S  -> {"items":[{"status":"sent"}]}
type HTTPTracker struct {
	base     *external.BaseClient
	baseURL  string
	username string
	password types.SecretString
	logger   types.Logger
}

// NewHTTPTracker creates an HTTPTracker. baseURL must not end with a slash.
func NewHTTPTracker(base *external.BaseClient, baseURL, username string, password types.SecretString, logger types.Logger) *HTTPTracker {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &HTTPTracker{
		base:     base,
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		logger:   logger,
	}
}

var _ Tracker = (*HTTPTracker)(nil)

type eventsResponse struct {
	Items []struct {
		SequenceID string `json:"sequenceId"`
	} `json:"items"`
}

type notificationsResponse struct {
	Items []struct {
		Status   string `json:"status"`
		Severity string `json:"severity"`
	} `json:"items"`
}

// GetEventID lists the sequence ids of the events that formed the issue.
func (t *HTTPTracker) GetEventID(ctx context.Context, issueID string) ([]string, error) {
	if !ValidIssueID(issueID) {
		return nil, invalidIssueID(issueID)
	}

	var body eventsResponse
	if err := t.get(ctx, "/issues/"+issueID+"/events", nil, &body); err != nil {
		return nil, trackerError("http get event id", err)
	}

	ids := make([]string, 0, len(body.Items))
	for _, item := range body.Items {
		if item.SequenceID != "" {
			ids = append(ids, item.SequenceID)
		}
	}
	return ids, nil
}

// CheckMessageSent looks for a delivered notification with the severity.
func (t *HTTPTracker) CheckMessageSent(ctx context.Context, issueID, severity string) (bool, error) {
	if !ValidIssueID(issueID) {
		return false, invalidIssueID(issueID)
	}

	var body notificationsResponse
	q := url.Values{"severity": {severity}}
	if err := t.get(ctx, "/issues/"+issueID+"/notifications", q, &body); err != nil {
		return false, trackerError("http check message sent", err)
	}

	for _, item := range body.Items {
		if strings.EqualFold(item.Status, "sent") {
			return true, nil
		}
	}
	return false, nil
}

func (t *HTTPTracker) get(ctx context.Context, path string, query url.Values, out any) error {
	u := t.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if t.username != "" {
		req.SetBasicAuth(t.username, t.password.Unmask())
	}

	resp, err := t.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// An unknown issue has no events and no notifications.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tracker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode tracker response: %w", err)
	}
	return nil
}
