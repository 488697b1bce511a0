// Package app assembles a pipeline.Processor from configuration. Both entry
// points share it so the CLI and the queue worker behave identically.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"trapforwarder/internal/audit"
	"trapforwarder/internal/config"
	"trapforwarder/internal/correlation"
	"trapforwarder/internal/delivery"
	"trapforwarder/internal/filter"
	"trapforwarder/internal/mapper"
	"trapforwarder/internal/pipeline"
	"trapforwarder/internal/telemetry"
	"trapforwarder/internal/tracker"
	"trapforwarder/internal/types"
)

// Overrides replaces collaborators that would otherwise be built from
// configuration. Zero fields are built normally.
type Overrides struct {
	Tracker tracker.Tracker
	Sleeper types.Sleeper
	Trap    delivery.Sink
	Metric  delivery.Sink
	AWS     *aws.Config
}

// NewProcessor loads the mapping and filter files and wires every stage.
func NewProcessor(ctx context.Context, cfg *config.Config, logger types.Logger, o Overrides) (*pipeline.Processor, error) {
	mapping, err := config.LoadMapping(cfg.MappingFile)
	if err != nil {
		return nil, err
	}
	rules, err := config.LoadFilterRules(cfg.FilterFile)
	if err != nil {
		return nil, err
	}
	contentFilter, err := filter.New(rules)
	if err != nil {
		return nil, err
	}

	tr := o.Tracker
	if tr == nil {
		if tr, err = tracker.New(cfg, logger.With("component", "tracker")); err != nil {
			return nil, err
		}
	}

	resolver := correlation.NewResolver(tr, correlation.RetryPolicy{
		MaxRetries: cfg.Correlation.SentCheckRetries,
		Delay:      cfg.Correlation.SentCheckDelay,
	}, o.Sleeper, logger.With("component", "correlation"))

	trap := o.Trap
	if trap == nil {
		sink, err := delivery.NewTrapSink(delivery.TrapSinkConfigFrom(mapping, cfg.SNMP), logger.With("component", "trap"))
		if err != nil {
			return nil, fmt.Errorf("trap sink: %w", err)
		}
		trap = sink
	}

	metric := o.Metric
	if metric == nil && cfg.Zabbix.Enabled {
		metric = delivery.NewMetricSink(delivery.MetricSinkConfigFrom(mapping, cfg.Zabbix), logger.With("component", "zabbix"))
	}

	awsCfg := o.AWS
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	sinks := audit.MultiSink{audit.NewFileSink(cfg.Audit.LogPath)}
	if cfg.Audit.QueueURL != "" {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := sqs.NewFromConfig(c, func(opts *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				opts.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		sinks = append(sinks, audit.NewSQSSink(client, cfg.Audit.QueueURL, logger.With("component", "audit")))
	}

	var recorders telemetry.Multi
	if cfg.Observability.EnableCloudWatch {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := cloudwatch.NewFromConfig(c, func(opts *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				opts.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		recorders = append(recorders, telemetry.NewCloudWatchRecorder(client, cfg.Observability.MetricNamespace, logger))
	}
	if cfg.Observability.PushgatewayURL != "" {
		recorders = append(recorders, telemetry.NewPushRecorder(cfg.Observability.PushgatewayURL, cfg.Observability.PushJob, logger))
	}

	var metrics telemetry.Recorder = telemetry.Noop{}
	if len(recorders) > 0 {
		metrics = recorders
	}

	logger.Info("pipeline assembled",
		"mapping_file", cfg.MappingFile,
		"filter_rules", len(rules),
		"trap_parameters", len(mapping.TrapParameters),
		"mapped_fields", mapping.FieldNames(),
		"zabbix_metric", metric != nil,
		"audit_sinks", len(sinks),
		"recorders", len(recorders),
	)

	return pipeline.NewProcessor(pipeline.Deps{
		Table:    mapper.Table(mapping.Fields),
		Resolver: resolver,
		Filter:   contentFilter,
		Emitter:  delivery.NewEmitter(trap, metric, logger.With("component", "emitter")),
		Audit:    sinks,
		Metrics:  metrics,
		Logger:   logger,
	}), nil
}
