// Package telemetry wires OpenTelemetry tracing for the gcsim tools.
//
// Tracing is configured from the standard OTEL_* environment variables:
//
//	OTEL_ENABLED                 - enable tracing (default: false)
//	OTEL_SERVICE_NAME            - service name (default: gcsim)
//	OTEL_SERVICE_VERSION         - service version (default: unknown)
//	OTEL_EXPORTER_OTLP_ENDPOINT  - OTLP collector endpoint
//	OTEL_EXPORTER_OTLP_PROTOCOL  - grpc or http/protobuf (default: grpc)
//	OTEL_EXPORTER_OTLP_HEADERS   - key=value pairs sent with every export
//	OTEL_EXPORTER_OTLP_INSECURE  - plaintext connection (default: false)
//	OTEL_TRACES_SAMPLER          - sampler name (default: always_on)
//	OTEL_TRACES_SAMPLER_ARG      - sampler argument, e.g. a ratio
//	OTEL_RESOURCE_ATTRIBUTES     - extra resource attributes
//
// Collection cycles are reported through CycleObserver, which turns each
// cycle into one span with an event per phase.
package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used by this module.
const InstrumentationName = "github.com/engine-gc"

// active is set while a provider installed by Init is running.
var active atomic.Bool

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init reads the environment and, when OTEL_ENABLED is true, installs an
// OTLP tracer provider as the global one. The returned function undoes
// that; it is never nil.
func Init(ctx context.Context) (ShutdownFunc, error) {
	return install(ctx, LoadFromEnv())
}

func install(ctx context.Context, cfg *Config) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	res, err := buildResource(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(createSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	active.Store(true)

	return func(ctx context.Context) error {
		active.Store(false)
		return tp.Shutdown(ctx)
	}, nil
}

// Enabled reports whether spans are being exported, so callers can skip
// building observers and plugins that would only feed the no-op provider.
func Enabled() bool {
	return active.Load()
}

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
