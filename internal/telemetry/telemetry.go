// Package telemetry installs the OpenTelemetry meter provider a device
// reports synchronization metrics through.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// ServiceName is reported as service.name on every metric.
	ServiceName = "tasksync"

	ExporterNone   = "none"
	ExporterStdout = "stdout"

	DefaultInterval = time.Minute
)

// Config selects the metric exporter.
type Config struct {
	// Exporter is ExporterNone or ExporterStdout. Empty means none.
	Exporter string
	// Interval between periodic exports.
	Interval time.Duration
	// Writer receives stdout exports; nil means os.Stderr.
	Writer  io.Writer
	Version string
}

// Provider wraps the meter provider with its cleanup.
type Provider struct {
	MeterProvider metric.MeterProvider
	shutdown      func(context.Context) error
}

// Init builds the meter provider for cfg and installs it as the global
// provider. The returned Provider must be shut down on exit so the last
// interval is exported.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	switch cfg.Exporter {
	case "", ExporterNone:
		return &Provider{
			MeterProvider: noop.NewMeterProvider(),
			shutdown:      func(context.Context) error { return nil },
		}, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unknown metrics exporter: %s (supported: none, stdout)", cfg.Exporter)
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(ServiceName)}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, attrs...)

	return newProvider(res, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))), nil
}

func newProvider(res *resource.Resource, reader sdkmetric.Reader) *Provider {
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	return &Provider{
		MeterProvider: mp,
		shutdown:      mp.Shutdown,
	}
}

// Meter returns the meter for the named instrumentation scope.
func (p *Provider) Meter(name string) metric.Meter {
	return p.MeterProvider.Meter(name)
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}
