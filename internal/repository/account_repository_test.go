package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"
)

func TestAccountRepositoryHandleIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(newRepositoryDBForTest(t))

	acct := &domain.Account{Handle: "Traveler", FirstName: "Ana"}
	if err := repo.Create(ctx, acct); err != nil {
		t.Fatalf("create: %v", err)
	}
	if acct.HandleKey != "traveler" {
		t.Fatalf("expected normalized handle key, got %q", acct.HandleKey)
	}

	found, err := repo.FindByHandle(ctx, "TRAVELER")
	if err != nil {
		t.Fatalf("find by handle: %v", err)
	}
	if found.ID != acct.ID || found.Handle != "Traveler" {
		t.Fatalf("unexpected account: %+v", found)
	}

	dup := &domain.Account{Handle: "traveler"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected duplicate account, got %v", err)
	}

	if _, err := repo.FindByHandle(ctx, "nobody"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccountRepositoryEmailUniqueAndNullable(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(newRepositoryDBForTest(t))

	for _, h := range []string{"ext_1", "ext_2"} {
		if err := repo.Create(ctx, &domain.Account{Handle: h}); err != nil {
			t.Fatalf("create %s without email: %v", h, err)
		}
	}

	a := &domain.Account{Handle: "alice@example.com", Email: strPtr(" Alice@Example.com ")}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create with email: %v", err)
	}
	if a.EmailAddress() != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", a.EmailAddress())
	}
	b := &domain.Account{Handle: "alice2", Email: strPtr("alice@example.com")}
	if err := repo.Create(ctx, b); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected duplicate email rejection, got %v", err)
	}

	found, err := repo.FindByEmail(ctx, "ALICE@example.com")
	if err != nil || found.ID != a.ID {
		t.Fatalf("find by email: %v %+v", err, found)
	}
}

func TestAccountRepositoryUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(newRepositoryDBForTest(t))
	acct := &domain.Account{Handle: "ext_9"}
	if err := repo.Create(ctx, acct); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	steps := []func() error{
		func() error { return repo.UpdateNames(ctx, acct.ID, "New", "Name") },
		func() error { return repo.UpdatePassword(ctx, acct.ID, "$argon2id$stub") },
		func() error { return repo.MarkEmailVerified(ctx, acct.ID, now) },
		func() error { return repo.UpdateAvatarKey(ctx, acct.ID, "avatars/account-1/x.png") },
		func() error { return repo.TouchLastLogin(ctx, acct.ID, now) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	got, err := repo.FindByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.FirstName != "New" || got.LastName != "Name" || !got.HasUsablePassword() ||
		!got.EmailVerified || got.AvatarKey == "" || got.LastLoginAt == nil {
		t.Fatalf("updates not applied: %+v", got)
	}

	if err := repo.UpdateNames(ctx, 9999, "x", "y"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found for missing id, got %v", err)
	}
}
