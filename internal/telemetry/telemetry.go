// Package telemetry wires OpenTelemetry into bartleby. The only
// instrumented path today is the Anthropic call in internal/ai, which emits
// one span per request plus token and duration counters; cmd hooks own the
// Init/Shutdown lifecycle.
//
// Everything is off unless BARTLEBY_OTEL_ENABLED=true, in which case spans
// and metrics go to stdout (BARTLEBY_OTEL_STDOUT=true, also the fallback
// when nothing else is configured) and/or an insecure OTLP gRPC collector
// (OTEL_EXPORTER_OTLP_ENDPOINT, e.g. localhost:4317).
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationScope = "github.com/elephantgerald/bartleby-sub001"

	metricExportInterval = 30 * time.Second
)

// sinks is the exporter selection read from the environment at Init.
type sinks struct {
	stdout   bool
	endpoint string
}

var shutdownFns []func(context.Context) error

// Enabled reports whether BARTLEBY_OTEL_ENABLED=true.
func Enabled() bool {
	return os.Getenv("BARTLEBY_OTEL_ENABLED") == "true"
}

// Init installs global tracer and meter providers. With telemetry disabled
// both are no-ops, so instrumented code paths never need to check Enabled.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	s := sinks{
		stdout:   os.Getenv("BARTLEBY_OTEL_STDOUT") == "true",
		endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	// Enabled with nothing configured still has to land somewhere.
	if !s.stdout && s.endpoint == "" {
		s.stdout = true
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := newTraceProvider(ctx, res, s)
	if err != nil {
		return fmt.Errorf("telemetry: traces: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mp, err := newMeterProvider(ctx, res, s)
	if err != nil {
		return fmt.Errorf("telemetry: metrics: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	return nil
}

func newTraceProvider(ctx context.Context, res *resource.Resource, s sinks) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		// One span per AI call; volume is low enough to keep them all.
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if s.stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	if s.endpoint != "" {
		exp, err := newOTLPTraceExporter(ctx, s.endpoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, s sinks) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if s.stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricExportInterval)),
		))
	}
	if s.endpoint != "" {
		exp, err := newOTLPMetricExporter(ctx, s.endpoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricExportInterval)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer for the named scope, defaulting to the module scope.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter for the named scope, defaulting to the module scope.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending spans and metrics. Call it once on exit with a
// short deadline; a hung collector must not block process shutdown.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}
