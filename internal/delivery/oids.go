package delivery

import (
	"fmt"
	"strings"
)

// Standard OIDs placed ahead of the payload.
const (
	OIDSysUpTime       = "1.3.6.1.2.1.1.3.0"
	OIDSnmpTrapOID     = "1.3.6.1.6.3.1.1.4.1.0"
	OIDSnmpTrapAddress = "1.3.6.1.6.3.18.1.3.0"
)

// ORACLE-ENTERPRISE-MANAGER-4-MIB notification identity.
const (
	OIDEnterprise      = "1.3.6.1.4.1.111.15.2"
	EventSpecificTrap  = 3
	OIDEventTrap       = OIDEnterprise + ".0.3"
	oidEventEntryTable = "1.3.6.1.4.1.111.15.3.1.1"
)

// eventColumns are the oraEMNGEventEntry columns known out of the box.
var eventColumns = map[string]int{
	"oraEMNGEventIndex":              1,
	"oraEMNGEventNotifType":          2,
	"oraEMNGEventMessage":            3,
	"oraEMNGEventMessageURL":         4,
	"oraEMNGEventSeverity":           5,
	"oraEMNGEventSeverityCode":       6,
	"oraEMNGEventRepeatCount":        7,
	"oraEMNGEventActionMsg":          8,
	"oraEMNGEventOccurrenceTime":     9,
	"oraEMNGEventReportedTime":       10,
	"oraEMNGEventCategories":         11,
	"oraEMNGEventCategoryCodes":      12,
	"oraEMNGEventType":               13,
	"oraEMNGEventName":               14,
	"oraEMNGAssocIncidentId":         15,
	"oraEMNGAssocIncidentOwner":      16,
	"oraEMNGAssocIncidentAcked":      17,
	"oraEMNGAssocIncidentStatus":     18,
	"oraEMNGAssocIncidentPriority":   19,
	"oraEMNGAssocIncidentEscLevel":   20,
	"oraEMNGEventTargetName":         21,
	"oraEMNGEventTargetNameURL":      22,
	"oraEMNGEventTargetType":         23,
	"oraEMNGEventHostName":           24,
	"oraEMNGEventTargetOwner":        25,
	"oraEMNGEventTgtLifeCycleStatus": 26,
	"oraEMNGEventTargetVersion":      27,
	"oraEMNGEventSequenceId":         42,
	"oraEMNGEventContextAttrs":       44,
	"oraEMNGEventIssueId":            66,
	"oraEMNGIssueType":               67,
}

// OIDTable resolves MIB object names to numeric OIDs.
type OIDTable map[string]string

// DefaultOIDs returns the built-in table.
func DefaultOIDs() OIDTable {
	t := make(OIDTable, len(eventColumns))
	for name, col := range eventColumns {
		t[name] = fmt.Sprintf("%s.%d", oidEventEntryTable, col)
	}
	return t
}

// NewOIDTable returns the defaults with overrides applied. Override values
// may carry a leading dot.
func NewOIDTable(overrides map[string]string) OIDTable {
	t := DefaultOIDs()
	for name, oid := range overrides {
		t[name] = strings.TrimPrefix(oid, ".")
	}
	return t
}

// Resolve checks that every name has an OID and returns them in order.
func (t OIDTable) Resolve(names []string) ([]string, error) {
	oids := make([]string, len(names))
	var missing []string
	for i, name := range names {
		oid, ok := t[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		oids[i] = oid
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("no OID for trap parameters: %s", strings.Join(missing, ", "))
	}
	return oids, nil
}
