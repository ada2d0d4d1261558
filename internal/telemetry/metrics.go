// Package telemetry emits engine metrics to AWS CloudWatch: cache outcomes
// of the hazard reuse controller, resource warnings from the realization
// aggregator, and per-batch throughput statistics.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"shakerisk/internal/types"
)

// MetricNamespace is the CloudWatch namespace all engine metrics publish to.
const MetricNamespace = "ShakeRisk/Engine"

// Metric and dimension names.
const (
	MetricCacheOutcome    = "HazardCacheOutcome"
	MetricResourceWarning = "RealizationResourceWarning"
	MetricBatchAssets     = "BatchAssets"
	MetricBatchFailures   = "BatchAssetFailures"
	MetricBatchDuration   = "BatchDuration"

	DimOutcome = "Outcome"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Publisher emits engine metrics to CloudWatch. Publish failures are
// returned to the caller, which treats them as advisory and logs them; a
// metrics outage never fails a computation.
type Publisher struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewPublisher creates a Publisher for the engine namespace. logger may be
// nil (defaults to slog.Default()).
func NewPublisher(client CloudWatchClient, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:    client,
		namespace: MetricNamespace,
		logger:    logger,
	}
}

// PublishCacheOutcome emits a counter with an Outcome dimension for every
// hazard fetch: hit, miss or forced_recompute.
func (p *Publisher) PublishCacheOutcome(ctx context.Context, outcome types.CacheOutcome) error {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricCacheOutcome),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(DimOutcome),
						Value: aws.String(string(outcome)),
					},
				},
			},
		},
	}
	_, err := p.client.PutMetricData(ctx, input)
	return err
}

// PublishResourceWarning emits a gauge carrying the realization count of an
// individual-curve export that crossed the warning threshold.
func (p *Publisher) PublishResourceWarning(ctx context.Context, realizations int) error {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricResourceWarning),
				Value:      aws.Float64(float64(realizations)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}
	_, err := p.client.PutMetricData(ctx, input)
	return err
}

// PublishBatchStats emits the asset count, failure count and wall-clock
// duration of one completed batch.
func (p *Publisher) PublishBatchStats(ctx context.Context, assets, failed int, duration time.Duration) error {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricBatchAssets),
				Value:      aws.Float64(float64(assets)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(MetricBatchFailures),
				Value:      aws.Float64(float64(failed)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(MetricBatchDuration),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}
	_, err := p.client.PutMetricData(ctx, input)
	return err
}

// Noop discards all metrics. Used by the CLI runner and by tests when no
// CloudWatch endpoint is configured.
type Noop struct{}

func (Noop) PublishCacheOutcome(context.Context, types.CacheOutcome) error { return nil }

func (Noop) PublishResourceWarning(context.Context, int) error { return nil }

func (Noop) PublishBatchStats(context.Context, int, int, time.Duration) error { return nil }
