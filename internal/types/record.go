package types

import (
	"maps"
	"strings"
)

// IssueType is the lifecycle stage that produced a notification. The values
// are the ones the management platform passes in ISSUE_TYPE.
type IssueType string

const (
	IssueTypeEvent    IssueType = "1"
	IssueTypeIncident IssueType = "2"
	IssueTypeProblem  IssueType = "3"
)

// EnvIssueType is the only input key whose absence is fatal.
const EnvIssueType = "ISSUE_TYPE"

// Raw environment keys read directly by the forwarder in addition to the
// mapping table.
const (
	EnvMessage    = "MESSAGE"
	EnvMessageURL = "MESSAGE_URL"
	EnvEventName  = "EVENT_NAME"
)

// ParseIssueType validates a raw ISSUE_TYPE value.
func ParseIssueType(raw string) (IssueType, error) {
	switch t := IssueType(strings.TrimSpace(raw)); t {
	case IssueTypeEvent, IssueTypeIncident, IssueTypeProblem:
		return t, nil
	default:
		return "", NewAppError(ErrCodeValidationInvalidIssueType,
			"unrecognized ISSUE_TYPE "+quote(raw), nil)
	}
}

// String returns the human readable name of the issue type.
func (t IssueType) String() string {
	switch t {
	case IssueTypeEvent:
		return "event"
	case IssueTypeIncident:
		return "incident"
	case IssueTypeProblem:
		return "problem"
	default:
		return "unknown"
	}
}

// Correlated reports whether records of this type go through the tracker.
func (t IssueType) Correlated() bool {
	return t == IssueTypeIncident || t == IssueTypeProblem
}

// Canonical field names from ORACLE-ENTERPRISE-MANAGER-4-MIB.
const (
	FieldIssueType    = "oraEMNGIssueType"
	FieldSeverity     = "oraEMNGEventSeverity"
	FieldMessage      = "oraEMNGEventMessage"
	FieldMessageURL   = "oraEMNGEventMessageURL"
	FieldContextAttrs = "oraEMNGEventContextAttrs"
	FieldSequenceID   = "oraEMNGEventSequenceId"
	FieldAcked        = "oraEMNGAssocIncidentAcked"
	FieldHostName     = "oraEMNGEventHostName"
	FieldEventName    = "oraEMNGEventName"
	FieldIssueID      = "oraEMNGEventIssueId"
)

const (
	// SequenceIDUnresolved marks a record whose correlation id has not been
	// decided yet. It never reaches a sink.
	SequenceIDUnresolved = "null"

	// SeverityClear is the severity of a notification closing an issue.
	SeverityClear = "Clear"

	// AckedYes is the acknowledgment flag value set by an operator.
	AckedYes = "Yes"

	// MaxFieldLength is the MIB width of the free-text trap fields.
	MaxFieldLength = 255
)

// NotificationRecord is the canonical form of one raw notification. Stages
// never modify a record they receive; they return a changed copy.
type NotificationRecord struct {
	IssueType   IssueType
	IssueID     string
	Fields      map[string]string
	Environment map[string]string
	TrapState   TrapState
}

// NewNotificationRecord returns an empty record for the given issue type
// with an unresolved sequence id.
func NewNotificationRecord(issueType IssueType, env map[string]string) NotificationRecord {
	return NotificationRecord{
		IssueType:   issueType,
		Fields:      map[string]string{FieldSequenceID: SequenceIDUnresolved},
		Environment: maps.Clone(env),
	}
}

// Clone returns a deep copy of the record.
func (r NotificationRecord) Clone() NotificationRecord {
	r.Fields = maps.Clone(r.Fields)
	if r.Fields == nil {
		r.Fields = map[string]string{}
	}
	r.Environment = maps.Clone(r.Environment)
	return r
}

// Field returns a mapped field, or "" when absent.
func (r NotificationRecord) Field(name string) string {
	return r.Fields[name]
}

// HasField reports whether the mapping produced the named field.
func (r NotificationRecord) HasField(name string) bool {
	_, ok := r.Fields[name]
	return ok
}

// Env returns a raw input value and whether it was present.
func (r NotificationRecord) Env(key string) (string, bool) {
	v, ok := r.Environment[key]
	return v, ok
}

// WithField returns a copy of the record with one field set.
func (r NotificationRecord) WithField(name, value string) NotificationRecord {
	out := r.Clone()
	out.Fields[name] = value
	return out
}

// WithSequenceID returns a copy of the record with the correlation id set.
func (r NotificationRecord) WithSequenceID(id string) NotificationRecord {
	return r.WithField(FieldSequenceID, id)
}

// WithIssueID returns a copy of the record carrying the tracker issue id.
func (r NotificationRecord) WithIssueID(id string) NotificationRecord {
	out := r.WithField(FieldIssueID, id)
	out.IssueID = id
	return out
}

// WithTrapState returns a copy of the record with its status trail replaced.
func (r NotificationRecord) WithTrapState(s TrapState) NotificationRecord {
	out := r.Clone()
	out.TrapState = s
	return out
}

func (r NotificationRecord) Severity() string           { return r.Fields[FieldSeverity] }
func (r NotificationRecord) Message() string            { return r.Fields[FieldMessage] }
func (r NotificationRecord) MessageURL() string         { return r.Fields[FieldMessageURL] }
func (r NotificationRecord) ContextAttrs() string       { return r.Fields[FieldContextAttrs] }
func (r NotificationRecord) AssocIncidentAcked() string { return r.Fields[FieldAcked] }
func (r NotificationRecord) HostName() string           { return r.Fields[FieldHostName] }
func (r NotificationRecord) EventName() string          { return r.Fields[FieldEventName] }

// SequenceID returns the correlation id, SequenceIDUnresolved until the
// resolver has run.
func (r NotificationRecord) SequenceID() string {
	if id, ok := r.Fields[FieldSequenceID]; ok {
		return id
	}
	return SequenceIDUnresolved
}

// SequenceResolved reports whether the sequence id is past the sentinel.
func (r NotificationRecord) SequenceResolved() bool {
	return r.SequenceID() != SequenceIDUnresolved
}

func quote(s string) string {
	return `"` + s + `"`
}
