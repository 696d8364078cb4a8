package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/repository"
	"github.com/ayolclub/travel-auth/internal/telegram"

	"golang.org/x/sync/singleflight"
)

const (
	externalHandlePrefix = "ext_"
	maxHandleProbes      = 1000
)

var errHandleSpaceExhausted = errors.New("no free handle suffix")

// AccountBinder maps a verified external identity onto exactly one local
// account, creating it on first sight.
type AccountBinder struct {
	accounts repository.AccountRepository
	logger   *slog.Logger
	group    singleflight.Group
}

func NewAccountBinder(accounts repository.AccountRepository, logger *slog.Logger) *AccountBinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountBinder{accounts: accounts, logger: logger}
}

// CandidateHandle is the username, or ext_<provider id> when there is none.
func CandidateHandle(id telegram.Identity) string {
	if u := strings.TrimSpace(id.Username); u != "" {
		return u
	}
	return externalHandlePrefix + strings.TrimSpace(id.ProviderUserID)
}

func (b *AccountBinder) Bind(ctx context.Context, id telegram.Identity) (*domain.Account, error) {
	if strings.TrimSpace(id.ProviderUserID) == "" {
		return nil, ErrTelegramAuth
	}
	candidate := CandidateHandle(id)
	// The shared lookup outlives any single caller; each caller still stops
	// waiting when its own ctx ends.
	flight := b.group.DoChan(domain.NormalizeHandle(candidate), func() (any, error) {
		return b.findOrCreate(context.WithoutCancel(ctx), candidate)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		observability.RecordAccountBind(ctx, "error")
		return nil, internalError("bind account", ctx.Err())
	case res = <-flight:
	}
	if res.Err != nil {
		observability.RecordAccountBind(ctx, "error")
		return nil, res.Err
	}
	// Callers sharing one flight each get their own copy and sync their own names.
	acc := *res.Val.(*domain.Account)
	if err := b.syncNames(ctx, &acc, id); err != nil {
		observability.RecordAccountBind(ctx, "error")
		return nil, err
	}
	return &acc, nil
}

func (b *AccountBinder) findOrCreate(ctx context.Context, candidate string) (*domain.Account, error) {
	acc, err := b.accounts.FindByHandle(ctx, candidate)
	if err == nil {
		observability.RecordAccountBind(ctx, "existing")
		return acc, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, internalError("lookup account", err)
	}

	acc, err = b.create(ctx, candidate)
	if err == nil {
		observability.RecordAccountBind(ctx, "created")
		return acc, nil
	}
	if !errors.Is(err, repository.ErrDuplicateAccount) {
		return nil, internalError("create account", err)
	}

	// Lost a race with another writer: the winner's row is the answer.
	acc, err = b.accounts.FindByHandle(ctx, candidate)
	if err == nil {
		observability.RecordAccountBind(ctx, "conflict_retry")
		b.logger.InfoContext(ctx, "account bind resolved after conflict", "handle", candidate, "account_id", acc.ID)
		return acc, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, internalError("lookup account after conflict", err)
	}

	// The conflict was not on the handle itself; pick a suffixed one.
	handle, err := b.freeHandle(ctx, candidate, 1)
	if err != nil {
		return nil, err
	}
	acc, err = b.create(ctx, handle)
	if err != nil {
		return nil, internalError("create account with suffixed handle", err)
	}
	observability.RecordAccountBind(ctx, "created")
	return acc, nil
}

// freeHandle probes candidate+N for N >= start until a lookup misses.
func (b *AccountBinder) freeHandle(ctx context.Context, candidate string, start int) (string, error) {
	for i := start; i <= maxHandleProbes; i++ {
		handle := candidate + strconv.Itoa(i)
		_, err := b.accounts.FindByHandle(ctx, handle)
		if errors.Is(err, repository.ErrAccountNotFound) {
			return handle, nil
		}
		if err != nil {
			return "", internalError("probe handle", err)
		}
	}
	return "", internalError("pick handle", fmt.Errorf("%w for %q", errHandleSpaceExhausted, candidate))
}

func (b *AccountBinder) create(ctx context.Context, handle string) (*domain.Account, error) {
	acc := &domain.Account{Handle: handle}
	if err := b.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// syncNames copies non-empty provider names over stale stored ones. Handle
// and email never change here.
func (b *AccountBinder) syncNames(ctx context.Context, acc *domain.Account, id telegram.Identity) error {
	first, last := acc.FirstName, acc.LastName
	if v := strings.TrimSpace(id.FirstName); v != "" {
		first = v
	}
	if v := strings.TrimSpace(id.LastName); v != "" {
		last = v
	}
	if first == acc.FirstName && last == acc.LastName {
		return nil
	}
	if err := b.accounts.UpdateNames(ctx, acc.ID, first, last); err != nil {
		return internalError("sync account names", err)
	}
	acc.FirstName, acc.LastName = first, last
	return nil
}
