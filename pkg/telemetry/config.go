package telemetry

import (
	"os"
	"strconv"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config holds tracing settings read from the environment.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	// Protocol is grpc or http/protobuf.
	Protocol string
	Headers  map[string]string
	Insecure bool
	// Sampler is one of always_on, always_off, traceidratio and their
	// parentbased_ variants.
	Sampler       string
	SamplerArg    string
	ResourceAttrs map[string]string
}

// LoadFromEnv reads the OTEL_* variables.
func LoadFromEnv() *Config {
	return &Config{
		Enabled:        envBool("OTEL_ENABLED"),
		ServiceName:    envOr("OTEL_SERVICE_NAME", "gcsim"),
		ServiceVersion: envOr("OTEL_SERVICE_VERSION", "unknown"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol:       envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		Headers:        parseKeyValuePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:       envBool("OTEL_EXPORTER_OTLP_INSECURE"),
		Sampler:        os.Getenv("OTEL_TRACES_SAMPLER"),
		SamplerArg:     os.Getenv("OTEL_TRACES_SAMPLER_ARG"),
		ResourceAttrs:  parseKeyValuePairs(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	return strings.EqualFold(os.Getenv(key), "true")
}

// parseKeyValuePairs splits "k1=v1,k2=v2". Values may contain '='.
func parseKeyValuePairs(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

// createSampler maps the sampler name onto an SDK sampler. Unknown names
// sample everything.
func createSampler(cfg *Config) sdktrace.Sampler {
	base := strings.TrimPrefix(cfg.Sampler, "parentbased_")
	var s sdktrace.Sampler
	switch base {
	case "always_off":
		s = sdktrace.NeverSample()
	case "traceidratio":
		s = sdktrace.TraceIDRatioBased(parseRatio(cfg.SamplerArg))
	default:
		s = sdktrace.AlwaysSample()
	}
	if strings.HasPrefix(cfg.Sampler, "parentbased_") {
		return sdktrace.ParentBased(s)
	}
	return s
}

// parseRatio clamps the ratio to [0, 1]; unparsable input samples all.
func parseRatio(s string) float64 {
	ratio, err := strconv.ParseFloat(s, 64)
	switch {
	case err != nil:
		return 1.0
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1.0
	}
	return ratio
}
