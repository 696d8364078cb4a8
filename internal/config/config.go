package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string

	SessionCookieName  string
	SessionTTL         time.Duration
	SessionPepper      string
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     string
	CORSAllowedOrigins []string

	TelegramBotToken        string
	TelegramBotName         string
	TelegramBotSecret       string
	TelegramWebAppMaxAge    time.Duration
	TelegramWidgetMaxAge    time.Duration
	TelegramPendingTTL      time.Duration
	TelegramRedirectSuccess string
	TelegramRedirectFailure string

	CodeTTL             time.Duration
	CodeRequestCooldown time.Duration
	CodeVerifyMaxFails  int
	LoginMaxFails       int
	AbuseWindow         time.Duration
	AbuseCooldown       time.Duration

	MailEnabled     bool
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	SMTPTLSMode     string
	SMTPSendTimeout time.Duration

	MinIOEnabled   bool
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	AvatarURLTTL   time.Duration

	RedisEnabled   bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	AuthRateLimitPerMin int
	APIRateLimitPerMin  int

	ReadinessProbeTimeout        time.Duration
	ServerStartGracePeriod       time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	localLike := isLocalLikeEnv(env)

	cfg := &Config{
		Env:                env,
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SessionCookieName:  getEnv("SESSION_COOKIE_NAME", "sessionid"),
		SessionPepper:      os.Getenv("SESSION_PEPPER"),
		CookieDomain:       os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:       getEnvBool("COOKIE_SECURE", !localLike),
		CookieSameSite:     strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		TelegramBotToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramBotName:         strings.TrimPrefix(os.Getenv("TELEGRAM_BOT_NAME"), "@"),
		TelegramBotSecret:       os.Getenv("TELEGRAM_BOT_SECRET"),
		TelegramRedirectSuccess: getEnv("TELEGRAM_REDIRECT_SUCCESS", "/"),
		TelegramRedirectFailure: getEnv("TELEGRAM_REDIRECT_FAILURE", "/"),

		CodeVerifyMaxFails: getEnvInt("CODE_VERIFY_MAX_FAILS", 5),
		LoginMaxFails:      getEnvInt("LOGIN_MAX_FAILS", 10),

		MailEnabled:  getEnvBool("MAIL_ENABLED", !localLike),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@localhost"),
		SMTPTLSMode:  strings.ToLower(getEnv("SMTP_TLS_MODE", "starttls")),

		MinIOEnabled:   getEnvBool("MINIO_ENABLED", true),
		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    getEnv("MINIO_BUCKET", "avatars"),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		RedisEnabled:   getEnvBool("REDIS_ENABLED", false),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "travelauth"),

		AuthRateLimitPerMin: getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		APIRateLimitPerMin:  getEnvInt("API_RATE_LIMIT_PER_MIN", 120),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "travel-auth"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", !localLike),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", !localLike),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", !localLike),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"SESSION_TTL", "336h", &cfg.SessionTTL},
		{"TELEGRAM_WEBAPP_MAX_AGE", "15m", &cfg.TelegramWebAppMaxAge},
		{"TELEGRAM_WIDGET_MAX_AGE", "24h", &cfg.TelegramWidgetMaxAge},
		{"TELEGRAM_PENDING_TTL", "600s", &cfg.TelegramPendingTTL},
		{"CODE_TTL", "15m", &cfg.CodeTTL},
		{"CODE_REQUEST_COOLDOWN", "60s", &cfg.CodeRequestCooldown},
		{"AUTH_ABUSE_WINDOW", "15m", &cfg.AbuseWindow},
		{"AUTH_ABUSE_COOLDOWN", "15m", &cfg.AbuseCooldown},
		{"SMTP_SEND_TIMEOUT", "10s", &cfg.SMTPSendTimeout},
		{"AVATAR_URL_TTL", "24h", &cfg.AvatarURLTTL},
		{"READINESS_PROBE_TIMEOUT", "1s", &cfg.ReadinessProbeTimeout},
		{"SERVER_START_GRACE_PERIOD", "2s", &cfg.ServerStartGracePeriod},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.SessionPepper) < 16 {
		errs = append(errs, "SESSION_PEPPER must be at least 16 chars")
	}
	if c.SessionCookieName == "" {
		errs = append(errs, "SESSION_COOKIE_NAME is required")
	}
	if c.SessionTTL <= 0 || c.SessionTTL > 90*24*time.Hour {
		errs = append(errs, "SESSION_TTL must be between 1s and 90d")
	}
	switch c.CookieSameSite {
	case "lax", "strict", "none":
	default:
		errs = append(errs, "COOKIE_SAMESITE must be one of lax, strict, none")
	}
	if c.TelegramBotToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required")
	}
	if c.TelegramBotName != "" && len(c.TelegramBotSecret) < 16 {
		errs = append(errs, "TELEGRAM_BOT_SECRET must be at least 16 chars when TELEGRAM_BOT_NAME is set")
	}
	if c.TelegramWebAppMaxAge <= 0 || c.TelegramWidgetMaxAge <= 0 {
		errs = append(errs, "TELEGRAM_WEBAPP_MAX_AGE and TELEGRAM_WIDGET_MAX_AGE must be > 0")
	}
	if c.TelegramPendingTTL <= 0 {
		errs = append(errs, "TELEGRAM_PENDING_TTL must be > 0")
	}
	if c.CodeTTL <= 0 {
		errs = append(errs, "CODE_TTL must be > 0")
	}
	if c.CodeRequestCooldown < 0 || c.CodeRequestCooldown >= c.CodeTTL {
		errs = append(errs, "CODE_REQUEST_COOLDOWN must be >= 0 and shorter than CODE_TTL")
	}
	if c.CodeVerifyMaxFails <= 0 || c.LoginMaxFails <= 0 {
		errs = append(errs, "CODE_VERIFY_MAX_FAILS and LOGIN_MAX_FAILS must be > 0")
	}
	if c.AbuseWindow <= 0 || c.AbuseCooldown <= 0 {
		errs = append(errs, "AUTH_ABUSE_WINDOW and AUTH_ABUSE_COOLDOWN must be > 0")
	}
	if c.MailEnabled {
		if c.SMTPHost == "" {
			errs = append(errs, "SMTP_HOST is required when MAIL_ENABLED=true")
		}
		switch c.SMTPTLSMode {
		case "starttls", "ssl", "none":
		default:
			errs = append(errs, "SMTP_TLS_MODE must be one of starttls, ssl, none")
		}
	}
	if c.MinIOEnabled && (c.MinIOAccessKey == "" || c.MinIOSecretKey == "" || c.MinIOBucket == "") {
		errs = append(errs, "MINIO_ACCESS_KEY, MINIO_SECRET_KEY and MINIO_BUCKET are required when MINIO_ENABLED=true")
	}
	if c.RedisEnabled && c.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.ReadinessProbeTimeout <= 0 {
		errs = append(errs, "READINESS_PROBE_TIMEOUT must be > 0")
	}
	if c.ShutdownTimeout <= 0 || c.ShutdownHTTPDrainTimeout <= 0 || c.ShutdownObservabilityTimeout <= 0 {
		errs = append(errs, "shutdown timeouts must be > 0")
	}
	if c.ShutdownHTTPDrainTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_HTTP_DRAIN_TIMEOUT must not exceed SHUTDOWN_TIMEOUT")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}

	if isProdLikeEnv(c.Env) {
		if !c.CookieSecure {
			errs = append(errs, "COOKIE_SECURE must be true in "+c.Env)
		}
		if c.CookieSameSite == "none" && !c.CookieSecure {
			errs = append(errs, "COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
		}
		if !c.MailEnabled {
			errs = append(errs, "MAIL_ENABLED must be true in "+c.Env)
		}
		if strings.HasPrefix(c.DatabaseURL, "sqlite:") || strings.HasPrefix(c.DatabaseURL, "file:") {
			errs = append(errs, "sqlite DATABASE_URL is only allowed in local profiles")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// IsLocal reports whether the profile is a developer or test profile.
func (c *Config) IsLocal() bool {
	return isLocalLikeEnv(c.Env)
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isProdLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
