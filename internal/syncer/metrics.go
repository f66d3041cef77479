package syncer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope for synchronization metrics.
const MeterName = "tasksync"

// Metrics holds the synchronization instruments.
type Metrics struct {
	Cycles   metric.Int64Counter
	Records  metric.Int64Counter
	Duration metric.Float64Histogram
}

// NewMetrics creates the instruments from meter. A nil meter yields no-op
// instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}

	m := &Metrics{}
	var err error

	m.Cycles, err = meter.Int64Counter("tasksync.sync.cycles",
		metric.WithDescription("Synchronization cycles by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.Records, err = meter.Int64Counter("tasksync.sync.records",
		metric.WithDescription("Records processed by phase and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.Duration, err = meter.Float64Histogram("tasksync.sync.duration",
		metric.WithDescription("Synchronization cycle duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) record(ctx context.Context, phase Phase, outcome string) {
	m.Records.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase.String()),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) cycle(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Cycles.Add(ctx, 1, attrs)
	m.Duration.Record(ctx, seconds, attrs)
}
