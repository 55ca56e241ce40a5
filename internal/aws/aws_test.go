package aws_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/require"

	internalaws "github.com/imrishuroy/go-upi-reconciler/internal/aws"
)

func TestLoadAWSConfig_DefaultRegion(t *testing.T) {
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "")
	t.Setenv("AWS_REGION", "")

	cfg, err := internalaws.LoadAWSConfig(t.Context())
	require.NoError(t, err)
	require.Equal(t, "us-east-1", cfg.Region)
}

func TestLoadAWSConfig_WithEndpointOverride(t *testing.T) {
	t.Setenv("AWS_REGION", "ap-south-1")
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "http://localhost:4566")

	cfg, err := internalaws.LoadAWSConfig(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ap-south-1", cfg.Region)
	require.NotNil(t, cfg.BaseEndpoint)
	require.Equal(t, "http://localhost:4566", *cfg.BaseEndpoint)
}

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestPublisher_StandardQueue(t *testing.T) {
	m := &mockSQS{}
	p := internalaws.NewPublisher(m, "https://sqs.ap-south-1.amazonaws.com/1/orders")

	err := p.SendOrderMessage(t.Context(), `{"order_id":"o1"}`, map[string]string{
		"order_id":   "o1",
		"event_type": "order.confirmed",
		"empty":      "",
	})
	require.NoError(t, err)
	require.Len(t, m.inputs, 1)

	in := m.inputs[0]
	require.Equal(t, `{"order_id":"o1"}`, *in.MessageBody)
	require.Len(t, in.MessageAttributes, 2)
	require.Equal(t, "o1", *in.MessageAttributes["order_id"].StringValue)
	require.Equal(t, "String", *in.MessageAttributes["event_type"].DataType)
	require.Nil(t, in.MessageGroupId)
}

func TestPublisher_FIFOQueue(t *testing.T) {
	m := &mockSQS{}
	p := internalaws.NewPublisher(m, "https://sqs.ap-south-1.amazonaws.com/1/orders.fifo")

	require.NoError(t, p.SendOrderMessage(t.Context(), "{}", map[string]string{"order_id": "o2"}))
	require.Equal(t, "o2", *m.inputs[0].MessageGroupId)
	require.Equal(t, "o2", *m.inputs[0].MessageDeduplicationId)

	err := p.SendOrderMessage(t.Context(), "{}", nil)
	require.ErrorContains(t, err, "order_id")
	require.Len(t, m.inputs, 1)
}

func TestPublisher_Error(t *testing.T) {
	boom := errors.New("throttled")
	p := internalaws.NewPublisher(&mockSQS{err: boom}, "q")
	err := p.SendOrderMessage(t.Context(), "{}", nil)
	require.ErrorIs(t, err, boom)
}

type mockCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func (m *mockCloudWatch) calls() []*cloudwatch.PutMetricDataInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*cloudwatch.PutMetricDataInput(nil), m.inputs...)
}

func TestMetrics_CountBuffersUntilFlush(t *testing.T) {
	m := &mockCloudWatch{}
	metrics := internalaws.NewMetrics(m, "UPIReconciler", nil)

	metrics.Count(t.Context(), "PaymentMatched")
	metrics.Count(t.Context(), "SessionCreated")
	metrics.Count(t.Context(), "SessionCreated")
	require.Empty(t, m.calls(), "counting stays off the network")

	require.NoError(t, metrics.Flush(t.Context()))
	calls := m.calls()
	require.Len(t, calls, 1)
	in := calls[0]
	require.Equal(t, "UPIReconciler", *in.Namespace)
	require.Len(t, in.MetricData, 2)
	require.Equal(t, "PaymentMatched", *in.MetricData[0].MetricName)
	require.Equal(t, 1.0, *in.MetricData[0].Value)
	require.Equal(t, "SessionCreated", *in.MetricData[1].MetricName)
	require.Equal(t, 2.0, *in.MetricData[1].Value)
	require.Equal(t, cwtypes.StandardUnitCount, in.MetricData[1].Unit)

	require.NoError(t, metrics.Flush(t.Context()))
	require.Len(t, m.calls(), 1, "empty buffer is not sent")
}

func TestMetrics_FlushAsyncSurvivesCancelledContext(t *testing.T) {
	m := &mockCloudWatch{}
	metrics := internalaws.NewMetrics(m, "UPIReconciler", nil)

	ctx, cancel := context.WithCancel(t.Context())
	metrics.Count(ctx, "PaymentMatched")
	metrics.FlushAsync(ctx)
	cancel()

	metrics.Count(t.Context(), "SessionExpired")
	require.NoError(t, metrics.Close(t.Context()))

	var names []string
	for _, in := range m.calls() {
		for _, d := range in.MetricData {
			names = append(names, *d.MetricName)
		}
	}
	require.ElementsMatch(t, []string{"PaymentMatched", "SessionExpired"}, names)
}

func TestMetrics_FailureIsSwallowed(t *testing.T) {
	m := &mockCloudWatch{err: errors.New("denied")}
	metrics := internalaws.NewMetrics(m, "UPIReconciler", slog.New(slog.NewTextHandler(io.Discard, nil)))
	metrics.Count(t.Context(), "SessionCreated")
	require.Error(t, metrics.Flush(t.Context()))
	require.Len(t, m.calls(), 1)

	require.NoError(t, metrics.Flush(t.Context()), "failed counts are dropped")
	require.Len(t, m.calls(), 1)
}
