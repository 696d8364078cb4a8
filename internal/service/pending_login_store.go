package service

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusConfirmed PendingStatus = "confirmed"
)

var ErrPendingLoginNotFound = errors.New("pending login not found")

// PendingLogin is a bot deep-link login waiting for the bot to confirm it.
type PendingLogin struct {
	RID       string
	Status    PendingStatus
	AccountID uint
	CreatedAt time.Time
}

// PendingLoginStore keeps pending logins for a bounded time. Entries vanish
// on their own once ttl passes.
type PendingLoginStore interface {
	Create(ctx context.Context, p PendingLogin, ttl time.Duration) error
	Get(ctx context.Context, rid string) (*PendingLogin, error)
	// Confirm marks rid confirmed for accountID without extending its ttl.
	Confirm(ctx context.Context, rid string, accountID uint) error
	// Delete reports whether this call removed rid, so exactly one caller
	// wins a consume race.
	Delete(ctx context.Context, rid string) (bool, error)
}

type MemoryPendingLoginStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

func NewMemoryPendingLoginStore(cleanupInterval time.Duration) *MemoryPendingLoginStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryPendingLoginStore{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryPendingLoginStore) Create(_ context.Context, p PendingLogin, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Add(p.RID, p, ttl)
}

func (s *MemoryPendingLoginStore) Get(_ context.Context, rid string) (*PendingLogin, error) {
	v, ok := s.cache.Get(rid)
	if !ok {
		return nil, ErrPendingLoginNotFound
	}
	p := v.(PendingLogin)
	return &p, nil
}

func (s *MemoryPendingLoginStore) Confirm(_ context.Context, rid string, accountID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, exp, ok := s.cache.GetWithExpiration(rid)
	if !ok {
		return ErrPendingLoginNotFound
	}
	p := v.(PendingLogin)
	p.Status = PendingStatusConfirmed
	p.AccountID = accountID
	ttl := time.Until(exp)
	if exp.IsZero() {
		ttl = gocache.NoExpiration
	} else if ttl <= 0 {
		return ErrPendingLoginNotFound
	}
	s.cache.Set(rid, p, ttl)
	return nil
}

func (s *MemoryPendingLoginStore) Delete(_ context.Context, rid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache.Get(rid); !ok {
		return false, nil
	}
	s.cache.Delete(rid)
	return true, nil
}
