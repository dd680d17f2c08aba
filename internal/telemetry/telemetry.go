// Package telemetry wires OpenTelemetry tracing and metrics. It is disabled
// by default, in which case no-op providers are installed and WrapStore
// returns the store unchanged.
package telemetry

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/sells-group/callflow"

// Config controls telemetry export.
type Config struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// MetricIntervalSecs is how often metrics are exported. Default: 30.
	MetricIntervalSecs int `yaml:"metric_interval_secs" mapstructure:"metric_interval_secs"`
}

// ShutdownFunc flushes and stops the providers installed by Init.
type ShutdownFunc func(context.Context) error

// Init installs global tracer and meter providers. Spans and metrics are
// written to stderr. When cfg.Enabled is false no-op providers are installed.
func Init(ctx context.Context, cfg Config, serviceName, version string) (ShutdownFunc, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	spanExp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, eris.Wrap(err, "telemetry: trace exporter")
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExp),
	)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, eris.Wrap(err, "telemetry: metric exporter")
	}
	interval := 30 * time.Second
	if cfg.MetricIntervalSecs > 0 {
		interval = time.Duration(cfg.MetricIntervalSecs) * time.Second
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return eris.Wrap(errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx)), "telemetry: shutdown")
	}, nil
}

// Tracer returns a tracer from the global provider.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter from the global provider.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}
