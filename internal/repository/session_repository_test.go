package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"
)

func TestSessionRepositoryRevocationAndExpiry(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newRepositoryDBForTest(t))
	now := time.Now().UTC()

	live := &domain.Session{AccountID: 1, TokenHash: "live", ExpiresAt: now.Add(time.Hour), LastSeenAt: now}
	expired := &domain.Session{AccountID: 1, TokenHash: "expired", ExpiresAt: now.Add(-time.Hour), LastSeenAt: now}
	other := &domain.Session{AccountID: 2, TokenHash: "other", ExpiresAt: now.Add(time.Hour), LastSeenAt: now}
	for _, s := range []*domain.Session{live, expired, other} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if _, err := repo.FindActiveByHash(ctx, "live", now); err != nil {
		t.Fatalf("expected live session: %v", err)
	}
	if _, err := repo.FindActiveByHash(ctx, "expired", now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session hidden, got %v", err)
	}

	if err := repo.RevokeByHash(ctx, "live", now); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := repo.FindActiveByHash(ctx, "live", now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked session hidden, got %v", err)
	}

	if err := repo.RevokeByAccountID(ctx, 2, now); err != nil {
		t.Fatalf("revoke by account: %v", err)
	}
	if _, err := repo.FindActiveByHash(ctx, "other", now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected account sessions revoked, got %v", err)
	}

	purged, err := repo.PurgeStale(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged sessions, got %d", purged)
	}
}
