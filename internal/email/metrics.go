package email

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"tickler/internal/types"
)

// MetricResult is the outcome dimension recorded for each delivery attempt.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricSkipped MetricResult = "skipped"
)

// Metric and dimension names used by the worker.
const (
	metricDeliveryAttempt = "ReminderDelivery"
	metricDeliveryLatency = "ReminderDeliveryLatency"
	metricQueueLag        = "ReminderQueueLag"
	dimKind               = "Kind"
	dimResult             = "Result"
)

// DeliveryMetrics records delivery telemetry. Implementations must never
// fail the calling delivery: metric errors are logged and swallowed.
type DeliveryMetrics interface {
	RecordDelivery(ctx context.Context, kind types.NotificationKind, result MetricResult)
	RecordLatency(ctx context.Context, kind types.NotificationKind, duration time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchDeliveryMetrics implements DeliveryMetrics by emitting metrics to
// AWS CloudWatch.
//
// Metrics emitted:
//   - ReminderDelivery: Dims {Kind, Result} -- on every delivery outcome
//   - ReminderDeliveryLatency: Dims {Kind} -- time taken per message
//   - ReminderQueueLag: No dims -- time between enqueue and processing start
type CloudWatchDeliveryMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchDeliveryMetrics creates metrics publishing to the given
// CloudWatch namespace.
func NewCloudWatchDeliveryMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchDeliveryMetrics {
	return &CloudWatchDeliveryMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDelivery emits a ReminderDelivery metric with Kind and Result
// dimensions.
func (m *CloudWatchDeliveryMetrics) RecordDelivery(ctx context.Context, kind types.NotificationKind, result MetricResult) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimKind),
						Value: aws.String(string(kind)),
					},
					{
						Name:  aws.String(dimResult),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record delivery metric",
			"error", err.Error(),
			"kind", string(kind),
			"result", string(result),
		)
	}
}

// RecordLatency emits the per-message processing latency in milliseconds.
func (m *CloudWatchDeliveryMetrics) RecordLatency(ctx context.Context, kind types.NotificationKind, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimKind),
						Value: aws.String(string(kind)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"kind", string(kind),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// RecordQueueLag emits the time between SQS message enqueue and worker
// processing start. This measures queue backlog and visibility delays.
func (m *CloudWatchDeliveryMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricQueueLag),
				Value:      aws.Float64(float64(lag.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record queue lag metric",
			"error", err.Error(),
			"lag_ms", lag.Milliseconds(),
		)
	}
}

var _ DeliveryMetrics = (*CloudWatchDeliveryMetrics)(nil)
