package types

import "strings"

// TrapState is the free-text status trail of a record, e.g. "sent, metric-sent".
type TrapState string

// Status markers.
const (
	TrapSent         = "sent"
	TrapMetricSent   = "metric-sent"
	TrapMetricFailed = "metric-failed"
	TrapSkipped      = "skipped"
	TrapFiltered     = "filtered"
	TrapException    = "exception"
)

const trapStateSep = ", "

// Append adds a marker to the trail.
func (s TrapState) Append(marker string) TrapState {
	if s == "" {
		return TrapState(marker)
	}
	return TrapState(string(s) + trapStateSep + marker)
}

// Set replaces the trail with a single marker.
func (s TrapState) Set(marker string) TrapState {
	return TrapState(marker)
}

// Has reports whether the trail contains the marker.
func (s TrapState) Has(marker string) bool {
	for _, m := range strings.Split(string(s), trapStateSep) {
		if m == marker {
			return true
		}
	}
	return false
}

// Markers returns the individual markers in order.
func (s TrapState) Markers() []string {
	if s == "" {
		return nil
	}
	return strings.Split(string(s), trapStateSep)
}
