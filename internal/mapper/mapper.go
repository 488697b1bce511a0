// Package mapper turns the raw notification environment into a canonical
// NotificationRecord using the declarative mapping table.
package mapper

import (
	"trapforwarder/internal/config"
	"trapforwarder/internal/types"
)

// truncatedFields are the free-text fields bounded by the MIB width.
var truncatedFields = []string{
	types.FieldMessage,
	types.FieldMessageURL,
	types.FieldContextAttrs,
}

// Table is the canonical field -> source mapping.
type Table map[string]config.FieldSource

// Map builds the record for one notification. ISSUE_TYPE must be present and
// valid; every other mapped field whose source key is absent becomes "".
func Map(env map[string]string, table Table) (types.NotificationRecord, error) {
	raw, ok := env[types.EnvIssueType]
	if !ok {
		return types.NotificationRecord{}, types.NewAppError(
			types.ErrCodeValidationMissingIssueType,
			"ISSUE_TYPE not set",
			nil,
		)
	}

	issueType, err := types.ParseIssueType(raw)
	if err != nil {
		return types.NotificationRecord{}, err
	}

	rec := types.NewNotificationRecord(issueType, env)
	rec.Fields[types.FieldIssueType] = string(issueType)

	for field, src := range table {
		value := ""
		if key, ok := src.Key(issueType); ok {
			value = env[key]
		}
		rec.Fields[field] = value
	}

	for _, field := range truncatedFields {
		rec.Fields[field] = Truncate(rec.Fields[field], types.MaxFieldLength)
	}

	return rec, nil
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
