package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ayolclub/travel-auth/internal/config"
	"github.com/ayolclub/travel-auth/internal/health"
	"github.com/ayolclub/travel-auth/internal/observability"
)

const (
	defaultShutdownTimeout      = 20 * time.Second
	defaultHTTPDrainTimeout     = 10 * time.Second
	defaultObservabilityTimeout = 8 * time.Second
)

// App is the assembled API process. Redis is nil when the deployment runs
// on in-process stores.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Readiness     *health.ProbeRunner

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		DB:                           db,
		Redis:                        redisClient,
		Readiness:                    readiness,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
	}
}

// Run serves until ctx is done or the listener fails, then shuts down. A
// listener failure still goes through the staged shutdown.
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		a.logger().Info("server starting", "addr", a.Server.Addr)
		err := a.Server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger().Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("serve http: %w", err)
		}
	}
	return errors.Join(runErr, a.Shutdown(context.WithoutCancel(ctx)))
}

// Shutdown drains HTTP, flushes telemetry, then closes Redis and the
// database. Every stage runs even when an earlier one fails.
func (a *App) Shutdown(ctx context.Context) error {
	totalCtx, cancel := context.WithTimeout(ctx, orDefault(a.ShutdownTimeout, defaultShutdownTimeout))
	defer cancel()

	var errs []error
	stage := func(name string, err error) {
		if err == nil {
			return
		}
		a.logger().Error("shutdown stage failed", "stage", name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}

	if a.Server != nil {
		httpCtx, httpCancel := context.WithTimeout(totalCtx, orDefault(a.ShutdownHTTPDrainTimeout, defaultHTTPDrainTimeout))
		stage("http", a.Server.Shutdown(httpCtx))
		httpCancel()
	}
	if a.Observability.Enabled() {
		obsCtx, obsCancel := context.WithTimeout(totalCtx, orDefault(a.ShutdownObservabilityTimeout, defaultObservabilityTimeout))
		stage("observability", a.Observability.Shutdown(obsCtx))
		obsCancel()
	}
	if a.Redis != nil {
		stage("redis", a.Redis.Close())
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		stage("database", err)
	}
	return errors.Join(errs...)
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
