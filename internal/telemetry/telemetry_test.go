package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

func TestInit_None(t *testing.T) {
	for _, exporter := range []string{"", ExporterNone} {
		p, err := Init(context.Background(), Config{Exporter: exporter})
		require.NoError(t, err)

		counter, err := p.Meter("test").Int64Counter("ignored")
		require.NoError(t, err)
		counter.Add(context.Background(), 1)
		assert.NoError(t, p.Shutdown(context.Background()))
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Exporter: "otlp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown metrics exporter")
}

func TestInit_StdoutFlushesOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), Config{
		Exporter: ExporterStdout,
		Interval: time.Hour,
		Writer:   &buf,
		Version:  "1.2.3",
	})
	require.NoError(t, err)
	assert.Same(t, p.MeterProvider, otel.GetMeterProvider())

	counter, err := p.Meter("tasksync").Int64Counter("tasksync.sync.cycles")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)
	assert.Empty(t, buf.String(), "nothing exported before the interval")

	require.NoError(t, p.Shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "tasksync.sync.cycles")
	assert.Contains(t, out, ServiceName)
	assert.Contains(t, out, "1.2.3")
}

func TestProvider_ManualReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p := newProvider(resource.Empty(), reader)
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	counter, err := p.Meter("tasksync").Int64Counter("tasksync.sync.records")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}
