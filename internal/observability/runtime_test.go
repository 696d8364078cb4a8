package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ayolclub/travel-auth/internal/config"
)

func TestRuntimeShutdownNilIsNoop(t *testing.T) {
	var rt *Runtime
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil runtime shutdown: %v", err)
	}
	if rt.Enabled() {
		t.Fatal("nil runtime must not report enabled")
	}
}

func TestRuntimeShutdownStopsEveryProvider(t *testing.T) {
	ctx := context.Background()
	rt := &Runtime{MeterProvider: sdkmetric.NewMeterProvider(), TracerProvider: sdktrace.NewTracerProvider()}
	if !rt.Enabled() {
		t.Fatal("expected runtime with providers to be enabled")
	}
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	tracer := rt.TracerProvider.Tracer("runtime-test")
	_, span := tracer.Start(ctx, "after-shutdown")
	defer span.End()
	if span.IsRecording() {
		t.Fatal("expected tracer provider to be stopped")
	}
}

func TestInitRuntimeWithSignalsDisabled(t *testing.T) {
	ctx := context.Background()
	rt, err := InitRuntime(ctx, &config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("init runtime: %v", err)
	}
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
