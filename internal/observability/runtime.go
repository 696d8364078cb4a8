package observability

import (
	"context"
	"errors"
	"log/slog"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ayolclub/travel-auth/internal/config"
)

// Runtime holds the OTel providers that were enabled. Any of them may be nil.
type Runtime struct {
	LoggerProvider *sdklog.LoggerProvider
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

type providerStopper interface {
	Shutdown(context.Context) error
}

// InitRuntime starts logs, metrics and traces in that order. A failure stops
// whatever already started.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	var err error
	if rt.LoggerProvider, err = InitLogs(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if rt.MeterProvider, err = InitMetrics(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	if rt.TracerProvider, err = InitTracing(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	return rt, nil
}

// Shutdown flushes traces first and logs last, so records emitted while the
// other providers stop still get exported.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, p := range r.stoppers() {
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) stoppers() []providerStopper {
	out := make([]providerStopper, 0, 3)
	if r.TracerProvider != nil {
		out = append(out, r.TracerProvider)
	}
	if r.MeterProvider != nil {
		out = append(out, r.MeterProvider)
	}
	if r.LoggerProvider != nil {
		out = append(out, r.LoggerProvider)
	}
	return out
}

// Enabled reports whether any provider is running and needs a flush.
func (r *Runtime) Enabled() bool {
	return r != nil && len(r.stoppers()) > 0
}
