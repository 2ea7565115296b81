package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnvDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	cfg := ConfigFromEnv("suggest-service")
	if cfg.Enabled {
		t.Fatal("expected tracing disabled without endpoint")
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("expected ratio 0.25, got %v", cfg.SampleRatio)
	}

	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if TraceID(context.Background()) != "" {
		t.Fatal("expected empty trace id")
	}
}

func TestConfigFromEnvExplicitToggle(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")
	t.Setenv("OTEL_ENABLED", "false")
	if ConfigFromEnv("x").Enabled {
		t.Fatal("expected OTEL_ENABLED=false to win")
	}
}
