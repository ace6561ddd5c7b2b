package telemetry

import (
	"context"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Init(context.Background(), "resolver-test", "dev")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if Tracer() == nil {
		t.Fatalf("expected tracer")
	}
}

func TestSamplerRatio(t *testing.T) {
	cases := map[string]float64{"": 1, "0.25": 0.25, "abc": 1, "2": 1, "0": 0}
	for raw, want := range cases {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", raw)
		if got := samplerRatio(); got != want {
			t.Errorf("samplerRatio(%q) = %v, want %v", raw, got, want)
		}
	}
}
