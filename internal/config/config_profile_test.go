package config

import (
	"strings"
	"testing"
	"time"
)

func baseConfig(env string) *Config {
	return &Config{
		Env:                          env,
		DatabaseURL:                  "postgres://x",
		SessionCookieName:            "sessionid",
		SessionTTL:                   24 * time.Hour,
		SessionPepper:                "pepper-1234567890",
		CookieSecure:                 true,
		CookieSameSite:               "lax",
		TelegramBotToken:             "123456:bot-token",
		TelegramWebAppMaxAge:         15 * time.Minute,
		TelegramWidgetMaxAge:         24 * time.Hour,
		TelegramPendingTTL:           10 * time.Minute,
		CodeTTL:                      15 * time.Minute,
		CodeRequestCooldown:          time.Minute,
		CodeVerifyMaxFails:           5,
		LoginMaxFails:                10,
		AbuseWindow:                  15 * time.Minute,
		AbuseCooldown:                15 * time.Minute,
		MailEnabled:                  true,
		SMTPHost:                     "smtp.example.com",
		SMTPTLSMode:                  "starttls",
		AuthRateLimitPerMin:          30,
		APIRateLimitPerMin:           120,
		ReadinessProbeTimeout:        time.Second,
		ShutdownTimeout:              20 * time.Second,
		ShutdownHTTPDrainTimeout:     10 * time.Second,
		ShutdownObservabilityTimeout: 8 * time.Second,
		OTELTraceSamplingRatio:       1.0,
		OTELMetricsExportInterval:    10 * time.Second,
		OTELLogLevel:                 "info",
	}
}

func TestValidateProdProfileStrictRules(t *testing.T) {
	cfg := baseConfig("production")
	cfg.CookieSecure = false
	cfg.CookieSameSite = "none"
	cfg.MailEnabled = false

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected strict prod validation errors")
	}
	for _, want := range []string{"COOKIE_SECURE", "MAIL_ENABLED"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error, got %v", want, err)
		}
	}
}

func TestValidateDevelopmentProfileAllowsRelaxedSettings(t *testing.T) {
	cfg := baseConfig("development")
	cfg.CookieSecure = false
	cfg.MailEnabled = false
	cfg.DatabaseURL = "sqlite:./travel.db"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected relaxed dev validation to pass: %v", err)
	}
}

func TestValidateRejectsCooldownLongerThanCodeTTL(t *testing.T) {
	cfg := baseConfig("development")
	cfg.CodeRequestCooldown = 20 * time.Minute

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "CODE_REQUEST_COOLDOWN") {
		t.Fatalf("expected cooldown error, got %v", err)
	}
}

func TestValidateRequiresBotSecretWithBotName(t *testing.T) {
	cfg := baseConfig("development")
	cfg.TelegramBotName = "travel_bot"
	cfg.TelegramBotSecret = "short"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "TELEGRAM_BOT_SECRET") {
		t.Fatalf("expected bot secret error, got %v", err)
	}
}

func TestLoadAppliesTelegramWindows(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "sqlite:./test.db")
	t.Setenv("SESSION_PEPPER", "pepper-1234567890")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:bot-token")
	t.Setenv("MINIO_ENABLED", "false")
	t.Setenv("TELEGRAM_WEBAPP_MAX_AGE", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TelegramWebAppMaxAge != 5*time.Minute {
		t.Fatalf("expected 5m webapp window, got %s", cfg.TelegramWebAppMaxAge)
	}
	if cfg.TelegramWidgetMaxAge != 24*time.Hour {
		t.Fatalf("expected 24h widget window, got %s", cfg.TelegramWidgetMaxAge)
	}
	if cfg.TelegramPendingTTL != 600*time.Second {
		t.Fatalf("expected 600s pending ttl, got %s", cfg.TelegramPendingTTL)
	}
	if cfg.CookieSecure || cfg.MailEnabled {
		t.Fatal("expected local profile defaults to relax cookie security and mail")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("CODE_TTL", "soon")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "CODE_TTL") {
		t.Fatalf("expected CODE_TTL parse error, got %v", err)
	}
}
