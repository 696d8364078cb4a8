package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayolclub/travel-auth/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

const meterName = "travel-auth"

type AppMetrics struct {
	authLoginCounter      metric.Int64Counter
	authLogoutCounter     metric.Int64Counter
	authReqDuration       metric.Float64Histogram
	accountBindCounter    metric.Int64Counter
	codeEventCounter      metric.Int64Counter
	mailDeliveryCounter   metric.Int64Counter
	avatarUploadCounter   metric.Int64Counter
	pendingLoginCounter   metric.Int64Counter
	sessionEventCounter   metric.Int64Counter
	rateLimitDecisions    metric.Int64Counter
	middlewareEvents      metric.Int64Counter
	attemptGuardCounter   metric.Int64Counter
	attemptGuardCooldown  metric.Float64Histogram
	healthCheckResults    metric.Int64Counter
	healthCheckDuration   metric.Float64Histogram
	toolCommandRunCounter metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg, "metric")
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "auth.request.duration"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
				},
			},
		)),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	m := &AppMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.authLoginCounter, "auth.login.attempts", "Login attempts by provider and status"},
		{&m.authLogoutCounter, "auth.logout.attempts", "Logout attempts"},
		{&m.accountBindCounter, "account.bind.events", "External identity bind outcomes"},
		{&m.codeEventCounter, "one_time_code.events", "One-time code lifecycle events"},
		{&m.mailDeliveryCounter, "mail.delivery.events", "Outbound mail delivery outcomes"},
		{&m.avatarUploadCounter, "avatar.upload.events", "Avatar upload outcomes"},
		{&m.pendingLoginCounter, "telegram.pending_login.events", "Bot confirmed login request events"},
		{&m.sessionEventCounter, "session.events", "Session issue, resolve and revoke events"},
		{&m.rateLimitDecisions, "http.rate_limit.decisions", "Rate limiter decisions"},
		{&m.middlewareEvents, "http.middleware.validation.events", "Request validation outcomes in middleware"},
		{&m.attemptGuardCounter, "auth.attempt_guard.events", "Credential guessing guard events"},
		{&m.healthCheckResults, "health.check.results", "Readiness dependency check results"},
		{&m.toolCommandRunCounter, "tool.command.runs", "Operator tool command runs"},
	}
	for _, c := range counters {
		inst, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = inst
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.authReqDuration, "auth.request.duration", "Duration of auth endpoint requests in seconds"},
		{&m.attemptGuardCooldown, "auth.attempt_guard.cooldown", "Cooldown imposed after repeated failures in seconds"},
		{&m.healthCheckDuration, "health.check.duration", "Readiness dependency check duration in seconds"},
	}
	for _, h := range histograms {
		inst, err := meter.Float64Histogram(h.name, metric.WithUnit("s"), metric.WithDescription(h.desc))
		if err != nil {
			return nil, err
		}
		*h.dst = inst
	}
	return m, nil
}

func loadMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(ctx context.Context, provider, status string) {
	if m := loadMetrics(); m != nil {
		m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		))
	}
}

func RecordAuthLogout(ctx context.Context, status string) {
	if m := loadMetrics(); m != nil {
		m.authLogoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	if m := loadMetrics(); m != nil {
		m.authReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		))
	}
}

// RecordAccountBind counts binder outcomes: existing, created, conflict_retry, error.
func RecordAccountBind(ctx context.Context, outcome string) {
	if m := loadMetrics(); m != nil {
		m.accountBindCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordOneTimeCodeEvent(ctx context.Context, purpose, event string) {
	if m := loadMetrics(); m != nil {
		m.codeEventCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("purpose", purpose),
			attribute.String("event", event),
		))
	}
}

func RecordMailDelivery(ctx context.Context, template, outcome string) {
	if m := loadMetrics(); m != nil {
		m.mailDeliveryCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("template", template),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordAvatarUpload(ctx context.Context, outcome string) {
	if m := loadMetrics(); m != nil {
		m.avatarUploadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordPendingLoginEvent(ctx context.Context, event string) {
	if m := loadMetrics(); m != nil {
		m.pendingLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	}
}

func RecordSessionEvent(ctx context.Context, action, status string) {
	if m := loadMetrics(); m != nil {
		m.sessionEventCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		))
	}
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode string) {
	if m := loadMetrics(); m != nil {
		m.rateLimitDecisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("outcome", outcome),
			attribute.String("mode", mode),
		))
	}
}

func RecordMiddlewareValidationEvent(ctx context.Context, middleware, outcome string) {
	if m := loadMetrics(); m != nil {
		m.middlewareEvents.Add(ctx, 1, metric.WithAttributes(
			attribute.String("middleware", middleware),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordAttemptGuardEvent(ctx context.Context, scope, outcome string, cooldown time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.attemptGuardCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
	))
	if cooldown > 0 {
		m.attemptGuardCooldown.Record(ctx, cooldown.Seconds(), metric.WithAttributes(attribute.String("scope", scope)))
	}
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	if m := loadMetrics(); m != nil {
		m.healthCheckResults.Add(ctx, 1, metric.WithAttributes(
			attribute.String("check", check),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	if m := loadMetrics(); m != nil {
		m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("check", check)))
	}
}

func RecordToolCommandRun(ctx context.Context, tool, command, status string) {
	if m := loadMetrics(); m != nil {
		m.toolCommandRunCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("command", command),
			attribute.String("status", status),
		))
	}
}
