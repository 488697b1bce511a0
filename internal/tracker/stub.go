package tracker

import (
	"context"
	"sync"
)

// StubTracker is an in-memory Tracker for local runs and tests.
type StubTracker struct {
	mu       sync.RWMutex
	eventIDs map[string][]string
	sent     map[string]bool
}

// NewStubTracker returns an empty StubTracker: no issue has events and no
// message was sent.
func NewStubTracker() *StubTracker {
	return &StubTracker{
		eventIDs: make(map[string][]string),
		sent:     make(map[string]bool),
	}
}

var _ Tracker = (*StubTracker)(nil)

// SetEventIDs registers the events behind an issue.
func (s *StubTracker) SetEventIDs(issueID string, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventIDs[issueID] = append([]string(nil), ids...)
}

// MarkSent records that a message went out for the issue and severity.
func (s *StubTracker) MarkSent(issueID, severity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[issueID+"/"+severity] = true
}

func (s *StubTracker) GetEventID(_ context.Context, issueID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.eventIDs[issueID]...), nil
}

func (s *StubTracker) CheckMessageSent(_ context.Context, issueID, severity string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sent[issueID+"/"+severity], nil
}
