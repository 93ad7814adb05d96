// Package telemetry wires the OpenTelemetry metric and trace providers used
// by the instrumentation pipeline. Providers are constructed explicitly and
// handed to the coordinator rather than installed as process globals, so a
// run owns exactly one meter and one tracer and tests can substitute their
// own readers and span recorders.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Exporter kinds accepted by Config. The pipeline only emits telemetry; how
// it leaves the process is deliberately limited to development plumbing.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config controls provider construction.
type Config struct {
	// ServiceName identifies this tool in exported spans and metrics.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the version string attached to the resource.
	ServiceVersion string `yaml:"service_version"`

	// TraceExporter selects the span exporter: "stdout" or "none".
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter selects the metric exporter: "stdout" or "none".
	MetricExporter string `yaml:"metric_exporter"`

	// Writer receives stdout-exported telemetry. Defaults to os.Stderr so
	// exported spans never interleave with the streamed answer on stdout.
	Writer io.Writer `yaml:"-"`
}

// DefaultConfig returns development defaults: both exporters on, pretty
// printed to stderr.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "skillprobe",
		ServiceVersion: "0.1.0",
		TraceExporter:  ExporterStdout,
		MetricExporter: ExporterStdout,
	}
}

// Providers bundles the per-run tracer and meter providers.
type Providers struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Init builds the providers described by cfg. The returned Providers must be
// shut down on exit so buffered telemetry is flushed.
func Init(_ context.Context, cfg Config) (*Providers, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	switch cfg.TraceExporter {
	case ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	case ExporterNone, "":
		// provider without exporter still records span data for tests
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.TraceExporter)
	}

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	switch cfg.MetricExporter {
	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	case ExporterNone, "":
	default:
		return nil, fmt.Errorf("unknown metric exporter %q", cfg.MetricExporter)
	}

	return &Providers{
		tracerProvider: sdktrace.NewTracerProvider(tpOpts...),
		meterProvider:  sdkmetric.NewMeterProvider(mpOpts...),
	}, nil
}

// Tracer returns the run's tracer.
func (p *Providers) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer("github.com/hupe1980/skillprobe")
}

// Meter returns the run's meter.
func (p *Providers) Meter() metric.Meter {
	return p.meterProvider.Meter("github.com/hupe1980/skillprobe")
}

// Shutdown flushes and stops both providers. Must be called before process
// exit; otherwise batched spans and the final metric collection are lost.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown: %v", errs)
	}
	return nil
}
