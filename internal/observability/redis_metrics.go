package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var redisInstrumentationOnce sync.Once

// InstrumentRedisClient installs the command metrics hook once per process.
// keyPrefix is stripped when deriving the key family attribute.
func InstrumentRedisClient(client redis.UniversalClient, keyPrefix string, logger *slog.Logger) {
	if client == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	redisInstrumentationOnce.Do(func() {
		hook, err := newRedisMetricsHook(otel.Meter(meterName), keyPrefix)
		if err != nil {
			logger.Warn("redis observability instrumentation disabled", "error", err)
			return
		}
		client.AddHook(hook)
		logger.Info("redis observability instrumentation enabled")
	})
}

type redisMetricsHook struct {
	prefix     string
	cmdTotal   metric.Int64Counter
	cmdLatency metric.Float64Histogram
}

func newRedisMetricsHook(meter metric.Meter, keyPrefix string) (*redisMetricsHook, error) {
	cmdTotal, err := meter.Int64Counter(
		"redis.command.total",
		metric.WithDescription("Redis commands by key family and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis command counter: %w", err)
	}
	cmdLatency, err := meter.Float64Histogram(
		"redis.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Redis command latency in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis latency histogram: %w", err)
	}
	return &redisMetricsHook{prefix: keyPrefix, cmdTotal: cmdTotal, cmdLatency: cmdLatency}, nil
}

func (h *redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(ctx, cmd, err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		elapsed := time.Since(start)
		h.cmdLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("command", "pipeline"),
			attribute.String("status", redisCommandStatus(err)),
		))
		for _, cmd := range cmds {
			h.count(ctx, cmd, cmd.Err())
		}
		return err
	}
}

func (h *redisMetricsHook) observe(ctx context.Context, cmd redis.Cmder, err error, elapsed time.Duration) {
	h.count(ctx, cmd, err)
	h.cmdLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("command", strings.ToLower(cmd.Name())),
		attribute.String("status", redisCommandStatus(err)),
	))
}

func (h *redisMetricsHook) count(ctx context.Context, cmd redis.Cmder, err error) {
	h.cmdTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", strings.ToLower(cmd.Name())),
		attribute.String("family", h.keyFamily(cmd)),
		attribute.String("status", redisCommandStatus(err)),
	))
}

// keyFamily maps "<prefix>:pending:abc" to "pending" so label cardinality
// stays bounded.
func (h *redisMetricsHook) keyFamily(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return "none"
	}
	var key string
	if strings.EqualFold(cmd.Name(), "evalsha") || strings.EqualFold(cmd.Name(), "eval") {
		if len(args) < 4 {
			return "none"
		}
		key, _ = args[3].(string)
	} else {
		key, _ = args[1].(string)
	}
	if key == "" {
		return "none"
	}
	if h.prefix != "" {
		key = strings.TrimPrefix(strings.TrimPrefix(key, h.prefix), ":")
	}
	family, _, _ := strings.Cut(key, ":")
	if family == "" {
		return "none"
	}
	return family
}

func redisCommandStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, redis.Nil):
		return "miss"
	default:
		return "error"
	}
}
