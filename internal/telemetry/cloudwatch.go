package telemetry

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"trapforwarder/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Recorder = (*CloudWatchRecorder)(nil)

// CloudWatchRecorder emits to AWS CloudWatch:
//   - NotificationProcessed: Dims {IssueType, Outcome}, Count
//   - NotificationProcessingLatency: Dims {IssueType}, Milliseconds
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchRecorder creates a recorder publishing to namespace, or to
// the default namespace when empty.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordOutcome sends both data points in a single PutMetricData call.
func (r *CloudWatchRecorder) RecordOutcome(ctx context.Context, issueType types.IssueType, outcome types.Outcome, latency time.Duration) {
	typeDim := cwtypes.Dimension{
		Name:  aws.String(types.DimIssueType),
		Value: aws.String(issueTypeLabel(issueType)),
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricNotificationProcessed),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					typeDim,
					{
						Name:  aws.String(types.DimOutcome),
						Value: aws.String(string(outcome)),
					},
				},
			},
			{
				MetricName: aws.String(types.MetricProcessingLatency),
				Value:      aws.Float64(float64(latency.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{typeDim},
			},
		},
	}

	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.Error("failed to record outcome metric",
			"error", err.Error(),
			"issue_type", issueTypeLabel(issueType),
			"outcome", string(outcome),
		)
	}
}
