package service

import (
	"context"
	"io"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/telegram"
)

type AuthServiceInterface interface {
	RequestSignupCode(ctx context.Context, name, email, password string) error
	VerifySignupCode(ctx context.Context, email, code string, meta SessionMeta) (*LoginResult, error)
	Login(ctx context.Context, email, password string, meta SessionMeta) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, accountID uint) (*domain.Account, error)
	RequestPasswordReset(ctx context.Context, email, newPassword string) error
	ConfirmPasswordReset(ctx context.Context, email, code, ip string) error
}

type TelegramAuthServiceInterface interface {
	LoginWithInitData(ctx context.Context, initData string, meta SessionMeta) (*LoginResult, error)
	Login(ctx context.Context, fields telegram.Fields, entry TelegramEntry, meta SessionMeta) (*LoginResult, error)
}

type BotLoginServiceInterface interface {
	CreateRequest(ctx context.Context) (*BotLoginRequest, error)
	Status(ctx context.Context, rid string, meta SessionMeta) (*BotLoginStatus, error)
	BotConfirm(ctx context.Context, secret, rid string, identity telegram.Identity) (*domain.Account, error)
}

type ProfileServiceInterface interface {
	UploadAvatar(ctx context.Context, accountID uint, file io.Reader, size int64) (string, error)
	AvatarURL(ctx context.Context, acc *domain.Account) string
}

type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*domain.Session, error)
}

var (
	_ AuthServiceInterface         = (*AuthService)(nil)
	_ TelegramAuthServiceInterface = (*TelegramAuthService)(nil)
	_ BotLoginServiceInterface     = (*TelegramBotLoginService)(nil)
	_ ProfileServiceInterface      = (*ProfileService)(nil)
	_ SessionResolver              = (*SessionService)(nil)
)
