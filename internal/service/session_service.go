package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/repository"
	"github.com/ayolclub/travel-auth/internal/security"
)

const (
	sessionTokenBytes   = 32
	sessionTouchEvery   = 5 * time.Minute
	maxSessionUserAgent = 512
)

// SessionMeta is the client context recorded with a new session.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// SessionService issues opaque cookie sessions. Only a peppered hash of the
// token is stored.
type SessionService struct {
	sessions repository.SessionRepository
	accounts repository.AccountRepository
	pepper   string
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionService(sessions repository.SessionRepository, accounts repository.AccountRepository, pepper string, ttl time.Duration) *SessionService {
	return &SessionService{
		sessions: sessions,
		accounts: accounts,
		pepper:   pepper,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionService) TTL() time.Duration { return s.ttl }

// Issue creates a session for account and returns the raw token for the cookie.
func (s *SessionService) Issue(ctx context.Context, account *domain.Account, meta SessionMeta) (string, *domain.Session, error) {
	token, err := security.NewRandomToken(sessionTokenBytes)
	if err != nil {
		observability.RecordSessionEvent(ctx, "issue", "error")
		return "", nil, internalError("generate session token", err)
	}
	now := s.now()
	ua := meta.UserAgent
	if len(ua) > maxSessionUserAgent {
		ua = ua[:maxSessionUserAgent]
	}
	sess := &domain.Session{
		AccountID:  account.ID,
		TokenHash:  security.HashToken(token, s.pepper),
		UserAgent:  ua,
		IP:         meta.IP,
		ExpiresAt:  now.Add(s.ttl),
		LastSeenAt: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		observability.RecordSessionEvent(ctx, "issue", "error")
		return "", nil, internalError("store session", err)
	}
	if err := s.accounts.TouchLastLogin(ctx, account.ID, now); err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return "", nil, internalError("touch last login", err)
	}
	observability.RecordSessionEvent(ctx, "issue", "success")
	return token, sess, nil
}

// Resolve returns the live session for token or ErrUnauthenticated.
func (s *SessionService) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}
	now := s.now()
	sess, err := s.sessions.FindActiveByHash(ctx, security.HashToken(token, s.pepper), now)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordSessionEvent(ctx, "resolve", "miss")
			return nil, ErrUnauthenticated
		}
		return nil, internalError("load session", err)
	}
	if now.Sub(sess.LastSeenAt) > sessionTouchEvery {
		if err := s.sessions.Touch(ctx, sess.ID, now); err == nil {
			sess.LastSeenAt = now
		}
	}
	return sess, nil
}

func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.sessions.RevokeByHash(ctx, security.HashToken(token, s.pepper), s.now()); err != nil {
		observability.RecordSessionEvent(ctx, "revoke", "error")
		return internalError("revoke session", err)
	}
	observability.RecordSessionEvent(ctx, "revoke", "success")
	return nil
}

func (s *SessionService) RevokeAll(ctx context.Context, accountID uint) error {
	if err := s.sessions.RevokeByAccountID(ctx, accountID, s.now()); err != nil {
		return internalError("revoke account sessions", err)
	}
	observability.RecordSessionEvent(ctx, "revoke_all", "success")
	return nil
}
