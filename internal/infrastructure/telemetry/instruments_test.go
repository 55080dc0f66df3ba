package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func findMetric(rm metricdata.ResourceMetrics, name string) bool {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return true
			}
		}
	}
	return false
}

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func TestInstruments(t *testing.T) {
	ctx := context.Background()
	reader, provider := newTestMeter(t)
	meter := provider.Meter("instruments")

	counter, err := NewCounter(meter, "test_total", "test counter", "{op}")
	require.NoError(t, err)
	counter.Inc(ctx, AttrOperation.String("reserve"))
	counter.Add(ctx, 4, AttrOperation.String("reserve"))

	hist, err := NewHistogram(meter, HistogramOpts{
		Name:       "test_duration_seconds",
		Unit:       "s",
		Boundaries: SmallDurationBuckets,
	})
	require.NoError(t, err)
	hist.RecordDuration(ctx, 3*time.Millisecond)
	hist.Record(ctx, 0.5)

	gauge, err := NewGauge(meter, "test_gauge", "test gauge", "{units}")
	require.NoError(t, err)
	gauge.Record(ctx, 7)
	gauge.Record(ctx, 9)

	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &data))

	assert.Equal(t, int64(5), sumCounter(data, "test_total"))
	last, ok := lastGauge(data, "test_gauge")
	require.True(t, ok)
	assert.Equal(t, int64(9), last)

	for _, sm := range data.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "test_duration_seconds" {
				continue
			}
			h, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			require.Len(t, h.DataPoints, 1)
			assert.Equal(t, uint64(2), h.DataPoints[0].Count)
			assert.Equal(t, SmallDurationBuckets, h.DataPoints[0].Bounds)
		}
	}
}

func TestNewHistogram_InvalidName(t *testing.T) {
	_, provider := newTestMeter(t)
	_, err := NewHistogram(provider.Meter("bad"), HistogramOpts{Name: "1-invalid name"})
	assert.Error(t, err)
}
