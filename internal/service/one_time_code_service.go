package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/repository"
	"github.com/ayolclub/travel-auth/internal/security"
)

const codeDigits = 6

// CodeApplyFunc runs inside the transaction that consumes a code. Returning
// an error rolls the consumption back.
type CodeApplyFunc func(ctx context.Context, tx repository.Store, payload domain.CodePayload) (*domain.Account, error)

type OneTimeCodeService struct {
	store    repository.Store
	notifier CodeNotifier
	guard    AttemptGuard
	logger   *slog.Logger
	ttl      time.Duration
	cooldown time.Duration
	now      func() time.Time
}

func NewOneTimeCodeService(store repository.Store, notifier CodeNotifier, guard AttemptGuard, logger *slog.Logger, ttl, cooldown time.Duration) *OneTimeCodeService {
	if ttl <= 0 {
		ttl = domain.DefaultCodeTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OneTimeCodeService{
		store:    store,
		notifier: notifier,
		guard:    guard,
		logger:   logger,
		ttl:      ttl,
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Request replaces any unused code for (email, purpose) with a fresh one and
// mails it. Delivery failures are logged, not returned.
func (s *OneTimeCodeService) Request(ctx context.Context, email string, purpose domain.CodePurpose, payload domain.CodePayload) error {
	if !purpose.Valid() {
		return internalError("request code", errors.New("unknown code purpose "+string(purpose)))
	}
	email = domain.NormalizeEmail(email)
	now := s.now()

	code, err := security.NewNumericCode(codeDigits)
	if err != nil {
		return internalError("generate code", err)
	}
	record := &domain.OneTimeCode{
		Email:     email,
		Purpose:   purpose,
		CodeHash:  hashCode(code),
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	err = s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		latest, err := tx.Codes().FindLatestUnused(ctx, email, purpose)
		switch {
		case err == nil:
			if elapsed := now.Sub(latest.CreatedAt); elapsed < s.cooldown {
				return rateLimitError("please wait before requesting another code", s.cooldown-elapsed)
			}
		case !errors.Is(err, repository.ErrCodeNotFound):
			return err
		}
		if _, err := tx.Codes().DeleteUnused(ctx, email, purpose); err != nil {
			return err
		}
		err = tx.Codes().Create(ctx, record)
		if errors.Is(err, repository.ErrCodeConflict) {
			// A concurrent request committed its code first.
			return rateLimitError("please wait before requesting another code", s.retryAfterConflict())
		}
		return err
	})
	if err != nil {
		if KindOf(err) == KindRateLimit {
			observability.RecordOneTimeCodeEvent(ctx, string(purpose), "rate_limited")
			return err
		}
		return internalError("store code", err)
	}
	observability.RecordOneTimeCodeEvent(ctx, string(purpose), "issued")

	note := CodeNotification{Email: email, Name: payload.Name, Code: code, Purpose: purpose, ExpiresAt: record.ExpiresAt}
	if err := s.notifier.SendCode(ctx, note); err != nil {
		observability.RecordMailDelivery(ctx, string(purpose)+"_code", "failure")
		s.logger.WarnContext(ctx, "code mail delivery failed", "purpose", purpose, "error", err)
		return nil
	}
	observability.RecordMailDelivery(ctx, string(purpose)+"_code", "success")
	return nil
}

func (s *OneTimeCodeService) retryAfterConflict() time.Duration {
	if s.cooldown > 0 {
		return s.cooldown
	}
	return time.Second
}

// Verify checks code against the latest unused code for (email, purpose),
// then consumes it and runs apply in one transaction.
func (s *OneTimeCodeService) Verify(ctx context.Context, email string, purpose domain.CodePurpose, code, ip string, apply CodeApplyFunc) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)

	if err := admitAttempt(ctx, s.guard, AttemptScopeCodeVerify, email, ip); err != nil {
		return nil, err
	}

	latest, err := s.store.Codes().FindLatestUnused(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, internalError("load code", err)
	}
	if subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(latest.CodeHash)) != 1 {
		observability.RecordOneTimeCodeEvent(ctx, string(purpose), "rejected")
		return nil, ErrInvalidCode
	}
	if latest.Expired(s.now()) {
		observability.RecordOneTimeCodeEvent(ctx, string(purpose), "expired")
		return nil, ErrCodeExpired
	}

	var account *domain.Account
	err = s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		if err := tx.Codes().Consume(ctx, latest.ID); err != nil {
			return err
		}
		acc, err := apply(ctx, tx, latest.Payload)
		if err != nil {
			return err
		}
		account = acc
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		var se *Error
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, internalError("consume code", err)
	}
	if err := s.guard.Reset(ctx, AttemptScopeCodeVerify, email, ip); err != nil {
		s.logger.WarnContext(ctx, "attempt guard reset failed", "error", err)
	}
	observability.RecordOneTimeCodeEvent(ctx, string(purpose), "verified")
	return account, nil
}

// PurgeStale removes consumed codes and codes that expired before cutoff.
func (s *OneTimeCodeService) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.Codes().PurgeStale(ctx, cutoff)
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
