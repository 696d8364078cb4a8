package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/telegram"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TelegramEntry selects the freshness window applied to a payload.
type TelegramEntry string

const (
	TelegramEntryWebApp TelegramEntry = "webapp"
	TelegramEntryWidget TelegramEntry = "widget"
)

type TelegramAuthOptions struct {
	BotToken     string
	WebAppMaxAge time.Duration
	WidgetMaxAge time.Duration
}

// TelegramAuthService runs verify, normalize, bind and issue in order. Any
// stage failing aborts before the next one runs.
type TelegramAuthService struct {
	opts     TelegramAuthOptions
	binder   *AccountBinder
	sessions *SessionService
	logger   *slog.Logger
	now      func() time.Time
}

func NewTelegramAuthService(opts TelegramAuthOptions, binder *AccountBinder, sessions *SessionService, logger *slog.Logger) *TelegramAuthService {
	if opts.WebAppMaxAge <= 0 {
		opts.WebAppMaxAge = 15 * time.Minute
	}
	if opts.WidgetMaxAge <= 0 {
		opts.WidgetMaxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramAuthService{
		opts:     opts,
		binder:   binder,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// LoginWithInitData authenticates a WebApp initData query string.
func (s *TelegramAuthService) LoginWithInitData(ctx context.Context, initData string, meta SessionMeta) (*LoginResult, error) {
	fields, err := telegram.ParseInitData(initData)
	if err != nil {
		return nil, s.reject(ctx, TelegramEntryWebApp, "parse", err)
	}
	return s.Login(ctx, fields, TelegramEntryWebApp, meta)
}

// Login authenticates an already decoded claim.
func (s *TelegramAuthService) Login(ctx context.Context, fields telegram.Fields, entry TelegramEntry, meta SessionMeta) (*LoginResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "telegram.login")
	defer span.End()
	span.SetAttributes(attribute.String("telegram.entry", string(entry)))

	if strings.TrimSpace(s.opts.BotToken) == "" {
		span.SetStatus(codes.Error, "bot token not configured")
		return nil, s.reject(ctx, entry, "config", errors.New("bot token not configured"))
	}
	if err := telegram.Check(fields, []byte(s.opts.BotToken), s.now(), s.maxAge(entry)); err != nil {
		span.SetStatus(codes.Error, "verify")
		return nil, s.reject(ctx, entry, "verify", err)
	}
	identity, err := telegram.Normalize(fields)
	if err != nil {
		span.SetStatus(codes.Error, "normalize")
		return nil, s.reject(ctx, entry, "normalize", err)
	}
	acc, err := s.binder.Bind(ctx, identity)
	if err != nil {
		span.RecordError(err)
		observability.RecordAuthLogin(ctx, "telegram", "failure")
		return nil, err
	}
	return s.issue(ctx, acc, meta)
}

// LoginAccount issues a session for an account already bound by another path.
func (s *TelegramAuthService) LoginAccount(ctx context.Context, acc *domain.Account, meta SessionMeta) (*LoginResult, error) {
	return s.issue(ctx, acc, meta)
}

func (s *TelegramAuthService) issue(ctx context.Context, acc *domain.Account, meta SessionMeta) (*LoginResult, error) {
	token, _, err := s.sessions.Issue(ctx, acc, meta)
	if err != nil {
		observability.RecordAuthLogin(ctx, "telegram", "failure")
		return nil, err
	}
	observability.RecordAuthLogin(ctx, "telegram", "success")
	return newLoginResult(acc, token), nil
}

func (s *TelegramAuthService) maxAge(entry TelegramEntry) time.Duration {
	if entry == TelegramEntryWidget {
		return s.opts.WidgetMaxAge
	}
	return s.opts.WebAppMaxAge
}

// reject logs the real reason and returns the one error clients ever see.
func (s *TelegramAuthService) reject(ctx context.Context, entry TelegramEntry, stage string, err error) error {
	s.logger.InfoContext(ctx, "telegram login rejected", "entry", entry, "stage", stage, "reason", err.Error())
	observability.RecordAuthLogin(ctx, "telegram", "rejected")
	return ErrTelegramAuth
}
