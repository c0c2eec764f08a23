package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// buildResource describes the gcsim process. Configured attributes are
// applied last so they can override detected ones, and OTEL_RESOURCE_ATTRIBUTES
// is honoured.
func buildResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	extra := make([]attribute.KeyValue, 0, len(cfg.ResourceAttrs))
	for k, v := range cfg.ResourceAttrs {
		extra = append(extra, attribute.String(k, v))
	}
	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithProcessRuntimeName(),
		resource.WithProcessRuntimeVersion(),
		resource.WithProcessPID(),
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
		resource.WithAttributes(extra...),
	)
}
