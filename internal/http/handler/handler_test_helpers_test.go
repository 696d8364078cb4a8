package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/http/middleware"
	"github.com/ayolclub/travel-auth/internal/service"
	"github.com/ayolclub/travel-auth/internal/telegram"
)

type stubAuthService struct {
	requestCodeFn  func(name, email, password string) error
	verifyCodeFn   func(email, code string, meta service.SessionMeta) (*service.LoginResult, error)
	loginFn        func(email, password string, meta service.SessionMeta) (*service.LoginResult, error)
	logoutFn       func(token string) error
	meFn           func(accountID uint) (*domain.Account, error)
	resetRequestFn func(email, newPassword string) error
	resetConfirmFn func(email, code, ip string) error
}

func (s *stubAuthService) RequestSignupCode(_ context.Context, name, email, password string) error {
	if s.requestCodeFn != nil {
		return s.requestCodeFn(name, email, password)
	}
	return nil
}

func (s *stubAuthService) VerifySignupCode(_ context.Context, email, code string, meta service.SessionMeta) (*service.LoginResult, error) {
	if s.verifyCodeFn != nil {
		return s.verifyCodeFn(email, code, meta)
	}
	return nil, errors.New("not implemented")
}

func (s *stubAuthService) Login(_ context.Context, email, password string, meta service.SessionMeta) (*service.LoginResult, error) {
	if s.loginFn != nil {
		return s.loginFn(email, password, meta)
	}
	return nil, errors.New("not implemented")
}

func (s *stubAuthService) Logout(_ context.Context, token string) error {
	if s.logoutFn != nil {
		return s.logoutFn(token)
	}
	return nil
}

func (s *stubAuthService) Me(_ context.Context, accountID uint) (*domain.Account, error) {
	if s.meFn != nil {
		return s.meFn(accountID)
	}
	return nil, errors.New("not implemented")
}

func (s *stubAuthService) RequestPasswordReset(_ context.Context, email, newPassword string) error {
	if s.resetRequestFn != nil {
		return s.resetRequestFn(email, newPassword)
	}
	return nil
}

func (s *stubAuthService) ConfirmPasswordReset(_ context.Context, email, code, ip string) error {
	if s.resetConfirmFn != nil {
		return s.resetConfirmFn(email, code, ip)
	}
	return nil
}

type stubTelegramService struct {
	initDataFn func(initData string) (*service.LoginResult, error)
	loginFn    func(fields telegram.Fields, entry service.TelegramEntry) (*service.LoginResult, error)
}

func (s *stubTelegramService) LoginWithInitData(_ context.Context, initData string, _ service.SessionMeta) (*service.LoginResult, error) {
	if s.initDataFn != nil {
		return s.initDataFn(initData)
	}
	return nil, service.ErrTelegramAuth
}

func (s *stubTelegramService) Login(_ context.Context, fields telegram.Fields, entry service.TelegramEntry, _ service.SessionMeta) (*service.LoginResult, error) {
	if s.loginFn != nil {
		return s.loginFn(fields, entry)
	}
	return nil, service.ErrTelegramAuth
}

type stubBotLoginService struct {
	createFn  func() (*service.BotLoginRequest, error)
	statusFn  func(rid string) (*service.BotLoginStatus, error)
	confirmFn func(secret, rid string, identity telegram.Identity) (*domain.Account, error)
}

func (s *stubBotLoginService) CreateRequest(context.Context) (*service.BotLoginRequest, error) {
	if s.createFn != nil {
		return s.createFn()
	}
	return nil, service.ErrBotLoginDisabled
}

func (s *stubBotLoginService) Status(_ context.Context, rid string, _ service.SessionMeta) (*service.BotLoginStatus, error) {
	if s.statusFn != nil {
		return s.statusFn(rid)
	}
	return nil, service.ErrPendingNotFound
}

func (s *stubBotLoginService) BotConfirm(_ context.Context, secret, rid string, identity telegram.Identity) (*domain.Account, error) {
	if s.confirmFn != nil {
		return s.confirmFn(secret, rid, identity)
	}
	return nil, service.ErrBotLoginDisabled
}

type stubProfileService struct {
	uploadFn  func(accountID uint, file io.Reader, size int64) (string, error)
	avatarURL string
}

func (s *stubProfileService) UploadAvatar(_ context.Context, accountID uint, file io.Reader, size int64) (string, error) {
	if s.uploadFn != nil {
		return s.uploadFn(accountID, file, size)
	}
	return "", errors.New("not implemented")
}

func (s *stubProfileService) AvatarURL(_ context.Context, acc *domain.Account) string {
	if acc == nil || acc.AvatarKey == "" {
		return ""
	}
	return s.avatarURL
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func withSession(r *http.Request, accountID uint) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.SessionContextKey, &domain.Session{ID: 1, AccountID: accountID})
	return r.WithContext(ctx)
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func testAccount(id uint) *domain.Account {
	return &domain.Account{ID: id, Handle: "ext_100", FirstName: "Ivan", LastName: "Petrov"}
}
