// Package config defines the process configuration of the trap forwarder and
// the two declarative files it reads: the field mapping (snmp.json) and the
// content filter rules (filter.json).
//
// Process settings are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Every process setting is prefixed with TRAPFWD_ because the process
// environment also carries the notification itself, and the two must never
// collide.
package config

import (
	"time"

	"trapforwarder/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// EnvPrefix marks process settings in the environment.
const EnvPrefix = "TRAPFWD_"

// Config is the top-level process configuration. It is populated once at
// startup and never modified.
type Config struct {
	Environment string `envconfig:"TRAPFWD_APP_ENV" default:"prod" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"TRAPFWD_LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Declarative files. Either may be JSON or YAML, picked by extension.
	MappingFile string `envconfig:"TRAPFWD_MAPPING_FILE" default:"config/snmp.json" validate:"required"`
	FilterFile  string `envconfig:"TRAPFWD_FILTER_FILE" default:"config/filter.json"`

	Tracker       TrackerConfig
	Correlation   CorrelationConfig
	SNMP          SNMPConfig
	Zabbix        ZabbixConfig
	Audit         AuditConfig
	AWS           AWSConfig
	Observability ObservabilityConfig
	Worker        WorkerConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// Tracker implementations.
const (
	TrackerEmcli = "emcli"
	TrackerHTTP  = "http"
	TrackerStub  = "stub"
)

// TrackerConfig selects and configures the incident tracker.
type TrackerConfig struct {
	Kind      string        `envconfig:"TRAPFWD_TRACKER" default:"emcli" validate:"oneof=emcli http stub"`
	EmcliPath string        `envconfig:"TRAPFWD_EMCLI_PATH" default:"emcli"`
	Timeout   time.Duration `envconfig:"TRAPFWD_TRACKER_TIMEOUT" default:"30s"`

	// REST variant. Password is usually resolved through
	// TRAPFWD_TRACKER_PASSWORD_SSM_PARAM.
	URL       string       `envconfig:"TRAPFWD_TRACKER_URL" validate:"required_if=Kind http,omitempty,url"`
	Username  string       `envconfig:"TRAPFWD_TRACKER_USERNAME"`
	Password  SecretString `envconfig:"TRAPFWD_TRACKER_PASSWORD"`
	UserAgent string       `envconfig:"TRAPFWD_TRACKER_USER_AGENT" default:"TrapForwarder/1.0"`
}

// CorrelationConfig holds the "message sent" race mitigation.
type CorrelationConfig struct {
	SentCheckDelay   time.Duration `envconfig:"TRAPFWD_SENT_CHECK_DELAY" default:"2s"`
	SentCheckRetries int           `envconfig:"TRAPFWD_SENT_CHECK_RETRIES" default:"1" validate:"min=0,max=1"`
}

// SNMPConfig configures the primary (trap) sink. Target host and port come
// from the mapping file.
type SNMPConfig struct {
	Community SecretString  `envconfig:"TRAPFWD_SNMP_COMMUNITY" default:"public"`
	Version   string        `envconfig:"TRAPFWD_SNMP_VERSION" default:"1" validate:"oneof=1 2c"`
	Timeout   time.Duration `envconfig:"TRAPFWD_SNMP_TIMEOUT" default:"5s"`
}

// ZabbixConfig configures the secondary (metric) sink.
type ZabbixConfig struct {
	Enabled  bool          `envconfig:"TRAPFWD_ZABBIX_ENABLED" default:"true"`
	Compress bool          `envconfig:"TRAPFWD_ZABBIX_COMPRESS" default:"false"`
	Timeout  time.Duration `envconfig:"TRAPFWD_ZABBIX_TIMEOUT" default:"5s"`
}

// AuditConfig configures where processed records are persisted. The file
// sink is always on; the queue sink is added when QueueURL is set.
type AuditConfig struct {
	LogPath  string `envconfig:"TRAPFWD_AUDIT_LOG" default:"log/events.log" validate:"required"`
	QueueURL string `envconfig:"TRAPFWD_AUDIT_QUEUE_URL" validate:"omitempty,url"`
}

// AWSConfig holds regional configuration for the SQS, SSM and CloudWatch clients.
type AWSConfig struct {
	Region string `envconfig:"TRAPFWD_AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"TRAPFWD_AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds outcome metric settings. Both recorders are off
// by default.
type ObservabilityConfig struct {
	MetricNamespace  string `envconfig:"TRAPFWD_METRIC_NAMESPACE" default:"TrapForwarder"`
	EnableCloudWatch bool   `envconfig:"TRAPFWD_ENABLE_CLOUDWATCH" default:"false"`
	PushgatewayURL   string `envconfig:"TRAPFWD_PUSHGATEWAY_URL" validate:"omitempty,url"`
	PushJob          string `envconfig:"TRAPFWD_PUSH_JOB" default:"trap_forwarder"`
}

// WorkerConfig applies to the queue-driven entry point only.
type WorkerConfig struct {
	Concurrency int `envconfig:"TRAPFWD_WORKER_CONCURRENCY" default:"4" validate:"min=1,max=64"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing values into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrFile indicates a mapping or filter file could not be read or decoded.
	ErrFile ConfigErrorType = "FILE_FAILED"
)
