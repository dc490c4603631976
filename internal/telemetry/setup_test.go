package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	p, err := NewProviders(ctx, "  ", "finauth-test", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if p.TracerProvider == nil || p.MeterProvider == nil || p.Shutdown == nil {
		t.Fatalf("expected local providers, got %+v", p)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown should be a no-op, got %v", err)
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"http://", "http://[invalid"} {
		if _, err := NewProviders(context.Background(), endpoint, "finauth-test", false); err == nil {
			t.Fatalf("expected error for %q", endpoint)
		}
	}
}

func TestGRPCTarget(t *testing.T) {
	cases := []struct {
		in       string
		host     string
		insecure bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://collector:4317/v1/traces", "collector:4317", true},
		{"https://collector:4317", "collector:4317", false},
	}
	for _, tc := range cases {
		host, insecure, err := grpcTarget(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if host != tc.host || insecure != tc.insecure {
			t.Fatalf("%s: got %s %v", tc.in, host, insecure)
		}
	}
}

func TestNewProviders_Endpoint(t *testing.T) {
	ctx := context.Background()
	p, err := NewProviders(ctx, "localhost:4317", "finauth-test", true)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	prev := otel.GetTracerProvider()
	p.SetGlobal()
	defer otel.SetTracerProvider(prev)

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatal("expected sdk tracer provider to be global")
	}
	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = p.Shutdown(shutdownCtx)
}
