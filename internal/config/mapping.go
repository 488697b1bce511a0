package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"trapforwarder/internal/types"
)

// FieldSource tells the mapper where a canonical field comes from: either
// one environment key (Direct) or a key chosen by the record's issue type
// (ByIssueType). In the files a Direct source is a string and a ByIssueType
// source is an object keyed by ISSUE_TYPE value.
type FieldSource struct {
	key         string
	byIssueType map[types.IssueType]string
}

// Direct returns a source reading a single key.
func Direct(key string) FieldSource {
	return FieldSource{key: key}
}

// ByIssueType returns a source whose key depends on the issue type.
func ByIssueType(keys map[types.IssueType]string) FieldSource {
	return FieldSource{byIssueType: maps.Clone(keys)}
}

// IsDirect reports whether the source is a single key.
func (s FieldSource) IsDirect() bool {
	return s.byIssueType == nil
}

// Key returns the environment key to read for the given issue type.
func (s FieldSource) Key(t types.IssueType) (string, bool) {
	if s.IsDirect() {
		return s.key, s.key != ""
	}
	k, ok := s.byIssueType[t]
	return k, ok && k != ""
}

// UnmarshalJSON accepts a string or an object of strings.
func (s *FieldSource) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var key string
		if err := json.Unmarshal(data, &key); err != nil {
			return err
		}
		*s = Direct(key)
		return nil
	}
	var m map[types.IssueType]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("field source must be a string or an object keyed by issue type: %w", err)
	}
	*s = ByIssueType(m)
	return nil
}

// MarshalJSON writes the same shape UnmarshalJSON reads.
func (s FieldSource) MarshalJSON() ([]byte, error) {
	if s.IsDirect() {
		return json.Marshal(s.key)
	}
	return json.Marshal(s.byIssueType)
}

// UnmarshalYAML accepts a scalar or a mapping of scalars.
func (s *FieldSource) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = Direct(node.Value)
		return nil
	case yaml.MappingNode:
		var m map[types.IssueType]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		*s = ByIssueType(m)
		return nil
	default:
		return fmt.Errorf("line %d: field source must be a string or a mapping keyed by issue type", node.Line)
	}
}

// DefaultSenderPort is the Zabbix trapper port.
const DefaultSenderPort = 10051

// ZabbixTarget is the downstream host receiving both the trap and the metric.
type ZabbixTarget struct {
	Host       string `json:"host" yaml:"host" validate:"required"`
	Port       int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
	SenderPort int    `json:"sender_port,omitempty" yaml:"sender_port,omitempty" validate:"omitempty,min=1,max=65535"`
}

// Mapping is the content of snmp.json.
type Mapping struct {
	// Hostname of the management platform; its address is the trap source.
	Hostname string       `json:"hostname" yaml:"hostname" validate:"required"`
	Zabbix   ZabbixTarget `json:"zabbix" yaml:"zabbix"`

	// TrapParameters is the ordered outbound payload.
	TrapParameters []string `json:"trap_parameters" yaml:"trap_parameters" validate:"required,min=1,dive,required"`

	Fields map[string]FieldSource `json:"trap_to_environment_variables" yaml:"trap_to_environment_variables" validate:"required,min=1"`

	// OIDs extends or overrides the built-in MIB name -> OID table.
	OIDs map[string]string `json:"oids,omitempty" yaml:"oids,omitempty"`
}

// MetricPort returns the Zabbix trapper port.
func (m *Mapping) MetricPort() int {
	if m.Zabbix.SenderPort == 0 {
		return DefaultSenderPort
	}
	return m.Zabbix.SenderPort
}

// FieldNames returns the mapped canonical names in a stable order.
func (m *Mapping) FieldNames() []string {
	return slices.Sorted(maps.Keys(m.Fields))
}

// LoadMapping reads and validates the mapping file.
func LoadMapping(path string) (*Mapping, error) {
	var m Mapping
	if err := decodeFile(path, &m); err != nil {
		return nil, err
	}
	if err := validate.Struct(m); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("mapping file %s is invalid", path),
			Err:     err,
		}
	}
	for name, src := range m.Fields {
		if src.IsDirect() && src.key == "" {
			return nil, &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("mapping file %s: field %s has an empty source key", path, name),
			}
		}
	}
	return &m, nil
}

// Filter rule keys.
const (
	FilterFieldMessage   = "message"
	FilterFieldEventName = "event_name"
)

// FilterRules is the content of filter.json: field -> ordered patterns.
type FilterRules map[string][]string

// LoadFilterRules reads the filter file. A missing file (or an empty path)
// means no filtering.
func LoadFilterRules(path string) (FilterRules, error) {
	if path == "" {
		return FilterRules{}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return FilterRules{}, nil
	}

	var rules FilterRules
	if err := decodeFile(path, &rules); err != nil {
		return nil, err
	}
	for key := range rules {
		if key != FilterFieldMessage && key != FilterFieldEventName {
			return nil, &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("filter file %s: unsupported field %q (want %s or %s)", path, key, FilterFieldMessage, FilterFieldEventName),
			}
		}
	}
	if rules == nil {
		rules = FilterRules{}
	}
	return rules, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Type: ErrFile, Message: "failed to read " + path, Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return &ConfigError{Type: ErrFile, Message: "failed to decode " + path, Err: err}
	}
	return nil
}
