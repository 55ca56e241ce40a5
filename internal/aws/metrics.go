package aws

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes reconciliation counters to CloudWatch.
//
// Count only buffers; counters reach CloudWatch on Flush, FlushAsync or Close,
// one PutMetricData call per flush. Publishing is best effort: a failed call is
// logged and its counts dropped so that metrics never change the outcome of a
// payment operation.
type Metrics struct {
	cw        CloudWatchAPI
	namespace string
	logger    *slog.Logger
	nowFunc   func() time.Time

	mu       sync.Mutex
	pending  map[string]float64
	inflight sync.WaitGroup
}

// NewMetrics returns a Metrics publisher writing to namespace.
func NewMetrics(cw CloudWatchAPI, namespace string, logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metrics{
		cw:        cw,
		namespace: namespace,
		logger:    logger,
		nowFunc:   time.Now,
		pending:   map[string]float64{},
	}
}

// Count records a single occurrence of the named event.
func (m *Metrics) Count(_ context.Context, name string) {
	m.mu.Lock()
	m.pending[name]++
	m.mu.Unlock()
}

// Flush sends the buffered counters in one call. It is a no-op when nothing
// was counted since the last flush.
func (m *Metrics) Flush(ctx context.Context) error {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return nil
	}
	counts := m.pending
	m.pending = map[string]float64{}
	m.mu.Unlock()

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	now := m.nowFunc()
	data := make([]cwtypes.MetricDatum, 0, len(names))
	for _, name := range names {
		value := counts[name]
		data = append(data, cwtypes.MetricDatum{
			MetricName: awsString(name),
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Value:      &value,
		})
	}

	_, err := m.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  awsString(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics", "metrics", names, "error", err)
	}
	return err
}

// FlushAsync flushes in the background, detached from ctx's cancellation.
func (m *Metrics) FlushAsync(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		_ = m.Flush(ctx)
	}()
}

// Close waits for background flushes and sends whatever is still buffered.
func (m *Metrics) Close(ctx context.Context) error {
	m.inflight.Wait()
	return m.Flush(ctx)
}
