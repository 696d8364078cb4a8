package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/repository"
	"github.com/ayolclub/travel-auth/internal/telegram"

	"github.com/google/uuid"
)

type BotLoginOptions struct {
	BotName   string
	BotSecret string
	TTL       time.Duration
}

// BotLoginRequest is returned to the browser that starts a deep-link login.
type BotLoginRequest struct {
	RID      string
	DeepLink string
}

// BotLoginStatus is either still pending, or carries the login result.
type BotLoginStatus struct {
	Status PendingStatus
	Result *LoginResult
}

// TelegramBotLoginService drives the deep-link flow: the browser creates a
// request, the bot confirms it, the browser polls and receives the session.
type TelegramBotLoginService struct {
	opts     BotLoginOptions
	store    PendingLoginStore
	binder   *AccountBinder
	accounts repository.AccountRepository
	telegram *TelegramAuthService
	logger   *slog.Logger
	now      func() time.Time
}

func NewTelegramBotLoginService(
	opts BotLoginOptions,
	store PendingLoginStore,
	binder *AccountBinder,
	accounts repository.AccountRepository,
	telegramAuth *TelegramAuthService,
	logger *slog.Logger,
) *TelegramBotLoginService {
	if opts.TTL <= 0 {
		opts.TTL = 600 * time.Second
	}
	opts.BotName = strings.TrimPrefix(strings.TrimSpace(opts.BotName), "@")
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramBotLoginService{
		opts:     opts,
		store:    store,
		binder:   binder,
		accounts: accounts,
		telegram: telegramAuth,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *TelegramBotLoginService) Enabled() bool {
	return s.opts.BotName != "" && s.opts.BotSecret != ""
}

func (s *TelegramBotLoginService) CreateRequest(ctx context.Context) (*BotLoginRequest, error) {
	if !s.Enabled() {
		return nil, ErrBotLoginDisabled
	}
	rid := uuid.NewString()
	// Entries outlive the TTL by one TTL so an expired request can be told
	// apart from an unknown one.
	p := PendingLogin{RID: rid, Status: PendingStatusPending, CreatedAt: s.now()}
	if err := s.store.Create(ctx, p, 2*s.opts.TTL); err != nil {
		return nil, internalError("store pending login", err)
	}
	observability.RecordPendingLoginEvent(ctx, "created")
	deeplink := "https://t.me/" + url.PathEscape(s.opts.BotName) + "?start=login_" + rid
	return &BotLoginRequest{RID: rid, DeepLink: deeplink}, nil
}

// Status reports a pending request, or consumes a confirmed one and issues
// its session. A confirmed request yields a session exactly once.
func (s *TelegramBotLoginService) Status(ctx context.Context, rid string, meta SessionMeta) (*BotLoginStatus, error) {
	p, err := s.load(ctx, rid)
	if err != nil {
		return nil, err
	}
	if p.Status != PendingStatusConfirmed {
		return &BotLoginStatus{Status: PendingStatusPending}, nil
	}

	won, err := s.store.Delete(ctx, rid)
	if err != nil {
		return nil, internalError("consume pending login", err)
	}
	if !won {
		return nil, ErrPendingNotFound
	}
	acc, err := s.accounts.FindByID(ctx, p.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrPendingNotFound
		}
		return nil, internalError("load account", err)
	}
	res, err := s.telegram.LoginAccount(ctx, acc, meta)
	if err != nil {
		return nil, err
	}
	observability.RecordPendingLoginEvent(ctx, "consumed")
	return &BotLoginStatus{Status: PendingStatusConfirmed, Result: res}, nil
}

// BotConfirm is called by the bot after the user pressed start. The shared
// secret is the only proof the call came from the bot.
func (s *TelegramBotLoginService) BotConfirm(ctx context.Context, secret, rid string, identity telegram.Identity) (*domain.Account, error) {
	if !s.Enabled() {
		return nil, ErrBotLoginDisabled
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.BotSecret)) != 1 {
		observability.RecordPendingLoginEvent(ctx, "bad_secret")
		return nil, ErrBotSecret
	}
	identity.Username = strings.TrimPrefix(strings.TrimSpace(identity.Username), "@")
	if strings.TrimSpace(identity.ProviderUserID) == "" {
		return nil, validationError("id is required")
	}
	p, err := s.load(ctx, rid)
	if err != nil {
		return nil, err
	}
	if p.Status == PendingStatusConfirmed {
		return nil, newError(KindConflict, "login request already confirmed")
	}

	acc, err := s.binder.Bind(ctx, identity)
	if err != nil {
		return nil, err
	}
	if err := s.store.Confirm(ctx, rid, acc.ID); err != nil {
		if errors.Is(err, ErrPendingLoginNotFound) {
			return nil, ErrPendingExpired
		}
		return nil, internalError("confirm pending login", err)
	}
	observability.RecordPendingLoginEvent(ctx, "confirmed")
	return acc, nil
}

// load returns NotFound for unknown ids and Expired for ids past their TTL.
func (s *TelegramBotLoginService) load(ctx context.Context, rid string) (*PendingLogin, error) {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return nil, ErrPendingNotFound
	}
	p, err := s.store.Get(ctx, rid)
	if err != nil {
		if errors.Is(err, ErrPendingLoginNotFound) {
			return nil, ErrPendingNotFound
		}
		return nil, internalError("load pending login", err)
	}
	if s.now().Sub(p.CreatedAt) > s.opts.TTL {
		observability.RecordPendingLoginEvent(ctx, "expired")
		return nil, ErrPendingExpired
	}
	return p, nil
}
