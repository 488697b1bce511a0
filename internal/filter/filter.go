// Package filter drops notifications whose text matches operator-configured
// patterns before they reach the emitter.
package filter

import (
	"fmt"
	"regexp"
	"sort"

	"trapforwarder/internal/config"
	"trapforwarder/internal/types"
)

type rule struct {
	field    string
	envKey   string
	mapped   string
	patterns []*regexp.Regexp
}

// Filter holds the compiled rules. The zero value filters nothing.
type Filter struct {
	rules []rule
}

// sources binds each recognized rule key to its raw input key and its
// mapped field.
var sources = map[string][2]string{
	config.FilterFieldMessage:   {types.EnvMessage, types.FieldMessage},
	config.FilterFieldEventName: {types.EnvEventName, types.FieldEventName},
}

// New compiles rules. An unknown field or an invalid expression is an error.
func New(rules config.FilterRules) (*Filter, error) {
	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := &Filter{}
	for _, key := range keys {
		src, ok := sources[key]
		if !ok {
			return nil, &config.ConfigError{
				Type:    config.ErrValidation,
				Message: fmt.Sprintf("unsupported filter field %q", key),
			}
		}
		r := rule{field: key, envKey: src[0], mapped: src[1]}
		for _, expr := range rules[key] {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, &config.ConfigError{
					Type:    config.ErrValidation,
					Message: fmt.Sprintf("filter %s: invalid pattern %q", key, expr),
					Err:     err,
				}
			}
			r.patterns = append(r.patterns, re)
		}
		f.rules = append(f.rules, r)
	}
	return f, nil
}

// ShouldFilter reports whether any pattern finds a match in the record's
// message or event name. Each pattern is tried against the raw input and
// against the mapped field, so it can match text beyond the truncated trap
// field as well as a name mapped from another key.
func (f *Filter) ShouldFilter(rec types.NotificationRecord) bool {
	_, ok := f.Match(rec)
	return ok
}

// Match is ShouldFilter that also names the matching field and pattern.
func (f *Filter) Match(rec types.NotificationRecord) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, r := range f.rules {
		for _, value := range r.values(rec) {
			for _, re := range r.patterns {
				if re.MatchString(value) {
					return r.field + "=~" + re.String(), true
				}
			}
		}
	}
	return "", false
}

// values returns the non-empty raw and mapped values for the rule's field.
func (r rule) values(rec types.NotificationRecord) []string {
	var out []string
	if raw, ok := rec.Env(r.envKey); ok && raw != "" {
		out = append(out, raw)
	}
	if mapped := rec.Field(r.mapped); mapped != "" && (len(out) == 0 || out[0] != mapped) {
		out = append(out, mapped)
	}
	return out
}
