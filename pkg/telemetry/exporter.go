package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc/credentials/insecure"
)

func createExporter(ctx context.Context, cfg *Config) (*otlptrace.Exporter, error) {
	endpoint, plaintext := splitEndpoint(cfg.Endpoint)
	plaintext = plaintext || cfg.Insecure

	switch strings.ToLower(cfg.Protocol) {
	case "http/protobuf", "http":
		var opts []otlptracehttp.Option
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if plaintext {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		var opts []otlptracegrpc.Option
		if endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if plaintext {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

// splitEndpoint strips the URL scheme. An http:// scheme means plaintext.
func splitEndpoint(raw string) (string, bool) {
	if rest, ok := strings.CutPrefix(raw, "http://"); ok {
		return rest, true
	}
	return strings.TrimPrefix(raw, "https://"), false
}
