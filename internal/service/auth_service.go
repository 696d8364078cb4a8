package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/repository"
	"github.com/ayolclub/travel-auth/internal/security"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxNameLength     = 150
)

var (
	letterRe = regexp.MustCompile(`\pL`)
	digitRe  = regexp.MustCompile(`[0-9]`)
)

// LoginResult is what every successful login path hands to the transport.
type LoginResult struct {
	Account      *domain.Account
	SessionToken string
	NeedAvatar   bool
}

func newLoginResult(acc *domain.Account, token string) *LoginResult {
	return &LoginResult{Account: acc, SessionToken: token, NeedAvatar: acc.AvatarKey == ""}
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) (bool, error)
}

// AuthService implements email signup, password login and password reset.
type AuthService struct {
	store    repository.Store
	codes    *OneTimeCodeService
	sessions *SessionService
	hasher   passwordHasher
	guard    AttemptGuard
	logger   *slog.Logger
	now      func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

func NewAuthService(
	store repository.Store,
	codes *OneTimeCodeService,
	sessions *SessionService,
	hasher *security.PasswordHasher,
	guard AttemptGuard,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:    store,
		codes:    codes,
		sessions: sessions,
		hasher:   hasher,
		guard:    guard,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestSignupCode hashes the password into a pending signup and mails a code.
func (s *AuthService) RequestSignupCode(ctx context.Context, name, email, password string) error {
	name = strings.TrimSpace(name)
	email = domain.NormalizeEmail(email)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return ErrInvalidName
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	if _, err := s.store.Accounts().FindByEmail(ctx, email); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return internalError("lookup account", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return internalError("hash password", err)
	}
	return s.codes.Request(ctx, email, domain.CodePurposeSignup, domain.CodePayload{Name: name, PasswordHash: hash})
}

// VerifySignupCode creates the verified account and logs it in.
func (s *AuthService) VerifySignupCode(ctx context.Context, email, code string, meta SessionMeta) (*LoginResult, error) {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidCode
	}

	acc, err := s.codes.Verify(ctx, email, domain.CodePurposeSignup, code, meta.IP,
		func(ctx context.Context, tx repository.Store, payload domain.CodePayload) (*domain.Account, error) {
			if _, err := tx.Accounts().FindByEmail(ctx, email); err == nil {
				return nil, ErrAccountExists
			} else if !errors.Is(err, repository.ErrAccountNotFound) {
				return nil, err
			}
			now := s.now()
			acc := &domain.Account{
				Handle:          email,
				Email:           &email,
				FirstName:       payload.Name,
				PasswordHash:    payload.PasswordHash,
				EmailVerified:   true,
				EmailVerifiedAt: &now,
			}
			if err := tx.Accounts().Create(ctx, acc); err != nil {
				if errors.Is(err, repository.ErrDuplicateAccount) {
					return nil, ErrAccountExists
				}
				return nil, err
			}
			return acc, nil
		})
	if err != nil {
		observability.RecordAuthLogin(ctx, "signup", "failure")
		return nil, err
	}
	return s.issue(ctx, acc, meta, "signup")
}

// Login checks the password first, so an unverified account is only
// revealed to someone who knows its password.
func (s *AuthService) Login(ctx context.Context, email, password string, meta SessionMeta) (*LoginResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	if err := admitAttempt(ctx, s.guard, AttemptScopeLogin, email, meta.IP); err != nil {
		return nil, err
	}

	acc, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, internalError("lookup account", err)
	}
	if acc == nil || !acc.HasUsablePassword() {
		// Unknown emails pay the same argon2 cost as wrong passwords.
		s.passwordMatches(s.decoy(), password)
		observability.RecordAuthLogin(ctx, "local", "failure")
		return nil, ErrInvalidCredentials
	}
	if !s.passwordMatches(acc.PasswordHash, password) {
		observability.RecordAuthLogin(ctx, "local", "failure")
		return nil, ErrInvalidCredentials
	}
	if err := s.guard.Reset(ctx, AttemptScopeLogin, email, meta.IP); err != nil {
		s.logger.WarnContext(ctx, "attempt guard reset failed", "error", err)
	}
	if !acc.EmailVerified {
		observability.RecordAuthLogin(ctx, "local", "unverified")
		return nil, ErrEmailNotVerified
	}
	return s.issue(ctx, acc, meta, "local")
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		observability.RecordAuthLogout(ctx, "failure")
		return err
	}
	observability.RecordAuthLogout(ctx, "success")
	return nil
}

// Me loads the account behind a resolved session.
func (s *AuthService) Me(ctx context.Context, accountID uint) (*domain.Account, error) {
	acc, err := s.store.Accounts().FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, internalError("load account", err)
	}
	return acc, nil
}

// RequestPasswordReset mails a reset code. Unknown emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, newPassword string) error {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	acc, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return internalError("lookup account", err)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internalError("hash password", err)
	}
	return s.codes.Request(ctx, email, domain.CodePurposeReset, domain.CodePayload{Name: acc.DisplayName(), PasswordHash: hash})
}

// ConfirmPasswordReset applies the new password and revokes every session.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, email, code, ip string) error {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return ErrInvalidCode
	}
	acc, err := s.codes.Verify(ctx, email, domain.CodePurposeReset, code, ip,
		func(ctx context.Context, tx repository.Store, payload domain.CodePayload) (*domain.Account, error) {
			acc, err := tx.Accounts().FindByEmail(ctx, email)
			if err != nil {
				if errors.Is(err, repository.ErrAccountNotFound) {
					return nil, ErrCodeNotFound
				}
				return nil, err
			}
			if err := tx.Accounts().UpdatePassword(ctx, acc.ID, payload.PasswordHash); err != nil {
				return nil, err
			}
			if !acc.EmailVerified {
				if err := tx.Accounts().MarkEmailVerified(ctx, acc.ID, s.now()); err != nil {
					return nil, err
				}
			}
			return acc, nil
		})
	if err != nil {
		return err
	}
	if err := s.sessions.RevokeAll(ctx, acc.ID); err != nil {
		return err
	}
	if err := s.guard.Reset(ctx, AttemptScopeLogin, email, ip); err != nil {
		s.logger.WarnContext(ctx, "attempt guard reset failed", "error", err)
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, acc *domain.Account, meta SessionMeta, provider string) (*LoginResult, error) {
	token, _, err := s.sessions.Issue(ctx, acc, meta)
	if err != nil {
		observability.RecordAuthLogin(ctx, provider, "failure")
		return nil, err
	}
	observability.RecordAuthLogin(ctx, provider, "success")
	return newLoginResult(acc, token), nil
}

// decoy is a hash with the live parameters that no submitted password matches.
func (s *AuthService) decoy() string {
	s.decoyOnce.Do(func() {
		secret, err := security.NewRandomToken(32)
		if err == nil {
			s.decoyHash, err = s.hasher.Hash(secret)
		}
		if err != nil {
			s.logger.Warn("decoy password hash unavailable", "error", err)
		}
	})
	return s.decoyHash
}

func (s *AuthService) passwordMatches(encoded, password string) bool {
	if encoded == "" {
		return false
	}
	ok, err := s.hasher.Verify(encoded, password)
	if err != nil {
		s.logger.Warn("stored password hash is unreadable", "error", err)
		return false
	}
	return ok
}

func validateEmail(email string) error {
	if email == "" || len(email) > 254 {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength || !letterRe.MatchString(password) || !digitRe.MatchString(password) {
		return ErrWeakPassword
	}
	return nil
}
