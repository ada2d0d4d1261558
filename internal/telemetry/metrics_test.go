package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakerisk/internal/types"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, input *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestPublishCacheOutcome(t *testing.T) {
	cw := &mockCloudWatch{}
	p := NewPublisher(cw, nil)

	err := p.PublishCacheOutcome(context.Background(), types.CacheOutcomeForced)
	require.NoError(t, err)

	require.Len(t, cw.inputs, 1)
	input := cw.inputs[0]
	assert.Equal(t, MetricNamespace, *input.Namespace)
	require.Len(t, input.MetricData, 1)

	datum := input.MetricData[0]
	assert.Equal(t, MetricCacheOutcome, *datum.MetricName)
	assert.Equal(t, 1.0, *datum.Value)
	require.Len(t, datum.Dimensions, 1)
	assert.Equal(t, DimOutcome, *datum.Dimensions[0].Name)
	assert.Equal(t, string(types.CacheOutcomeForced), *datum.Dimensions[0].Value)
}

func TestPublishResourceWarning(t *testing.T) {
	cw := &mockCloudWatch{}
	p := NewPublisher(cw, nil)

	err := p.PublishResourceWarning(context.Background(), 512)
	require.NoError(t, err)

	require.Len(t, cw.inputs, 1)
	require.Len(t, cw.inputs[0].MetricData, 1)
	datum := cw.inputs[0].MetricData[0]
	assert.Equal(t, MetricResourceWarning, *datum.MetricName)
	assert.Equal(t, 512.0, *datum.Value)
}

func TestPublishBatchStats(t *testing.T) {
	cw := &mockCloudWatch{}
	p := NewPublisher(cw, nil)

	err := p.PublishBatchStats(context.Background(), 100, 3, 2500*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, cw.inputs, 1)
	data := cw.inputs[0].MetricData
	require.Len(t, data, 3)

	byName := make(map[string]float64)
	for _, d := range data {
		byName[*d.MetricName] = *d.Value
	}
	assert.Equal(t, 100.0, byName[MetricBatchAssets])
	assert.Equal(t, 3.0, byName[MetricBatchFailures])
	assert.Equal(t, 2500.0, byName[MetricBatchDuration])
}

func TestPublisherPropagatesClientError(t *testing.T) {
	cw := &mockCloudWatch{err: errors.New("throttled")}
	p := NewPublisher(cw, nil)

	err := p.PublishCacheOutcome(context.Background(), types.CacheOutcomeHit)
	assert.Error(t, err)
}

func TestNoopPublisher(t *testing.T) {
	var n Noop
	assert.NoError(t, n.PublishCacheOutcome(context.Background(), types.CacheOutcomeHit))
	assert.NoError(t, n.PublishResourceWarning(context.Background(), 10))
	assert.NoError(t, n.PublishBatchStats(context.Background(), 1, 0, time.Second))
}
