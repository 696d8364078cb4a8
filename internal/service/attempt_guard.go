package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ayolclub/travel-auth/internal/observability"
)

// AttemptScope separates failure counters per credential type.
type AttemptScope string

const (
	AttemptScopeLogin      AttemptScope = "login"
	AttemptScopeCodeVerify AttemptScope = "code_verify"
)

// AttemptPolicy allows FreeAttempts unconfirmed attempts inside ResetWindow,
// then imposes a cooldown of BaseDelay*Multiplier^n capped at MaxDelay.
type AttemptPolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

// AttemptResult is the outcome of one guarded attempt. Blocked is the
// remaining cooldown when the attempt was refused. Cooldown is the delay this
// attempt armed for the next one.
type AttemptResult struct {
	Blocked  time.Duration
	Cooldown time.Duration
}

// AttemptGuard throttles guessing of passwords and one-time codes. Attempts
// are counted per identity and per client IP; the longer cooldown wins.
//
// Attempt checks the cooldown and counts the attempt in one atomic step, so
// parallel guesses cannot all slip past a single check. A confirmed attempt
// calls Reset.
type AttemptGuard interface {
	Attempt(ctx context.Context, scope AttemptScope, identity, ip string) (AttemptResult, error)
	Reset(ctx context.Context, scope AttemptScope, identity, ip string) error
}

// admitAttempt counts one attempt and refuses it while a cooldown runs.
func admitAttempt(ctx context.Context, guard AttemptGuard, scope AttemptScope, identity, ip string) error {
	res, err := guard.Attempt(ctx, scope, identity, ip)
	if err != nil {
		return internalError("check attempt guard", err)
	}
	if res.Blocked > 0 {
		observability.RecordAttemptGuardEvent(ctx, string(scope), "blocked", res.Blocked)
		return rateLimitError("too many attempts, try again later", res.Blocked)
	}
	if res.Cooldown > 0 {
		observability.RecordAttemptGuardEvent(ctx, string(scope), "cooldown", res.Cooldown)
	}
	return nil
}

type attemptState struct {
	attempts      int
	lastAttempt   time.Time
	cooldownUntil time.Time
}

// MemoryAttemptGuard keeps counters in a go-cache whose entries expire with
// the policy's reset window.
type MemoryAttemptGuard struct {
	mu     sync.Mutex
	policy AttemptPolicy
	cache  *gocache.Cache
	now    func() time.Time
}

func NewMemoryAttemptGuard(policy AttemptPolicy) *MemoryAttemptGuard {
	policy = normalizeAttemptPolicy(policy)
	return &MemoryAttemptGuard{
		policy: policy,
		cache:  gocache.New(policy.ResetWindow, policy.ResetWindow),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (g *MemoryAttemptGuard) Attempt(_ context.Context, scope AttemptScope, identity, ip string) (AttemptResult, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := attemptKeys(scope, identity, ip)
	states := make([]attemptState, len(keys))
	var res AttemptResult
	for i, key := range keys {
		if v, ok := g.cache.Get(key); ok {
			states[i] = v.(attemptState)
		}
		if states[i].cooldownUntil.After(now) {
			res.Blocked = max(res.Blocked, states[i].cooldownUntil.Sub(now))
		}
	}
	if res.Blocked > 0 {
		return res, nil
	}

	for i, key := range keys {
		st := states[i]
		if st.lastAttempt.IsZero() || now.Sub(st.lastAttempt) > g.policy.ResetWindow {
			st.attempts = 0
		}
		st.attempts++
		st.lastAttempt = now
		delay := g.policy.delay(st.attempts)
		st.cooldownUntil = now.Add(delay)
		g.cache.Set(key, st, g.policy.ResetWindow+delay)
		res.Cooldown = max(res.Cooldown, delay)
	}
	return res, nil
}

func (g *MemoryAttemptGuard) Reset(_ context.Context, scope AttemptScope, identity, ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range attemptKeys(scope, identity, ip) {
		g.cache.Delete(key)
	}
	return nil
}

func (p AttemptPolicy) delay(attempts int) time.Duration {
	if attempts <= p.FreeAttempts {
		return 0
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempts-p.FreeAttempts-1)))
	if d > p.MaxDelay || d < 0 {
		return p.MaxDelay
	}
	return d
}

// attemptKeys returns the identity key then the IP key. Raw identities are
// hashed so emails never appear in cache keys.
func attemptKeys(scope AttemptScope, identity, ip string) []string {
	id := strings.ToLower(strings.TrimSpace(identity))
	if id == "" {
		id = "anonymous"
	}
	addr := strings.TrimSpace(ip)
	if addr == "" {
		addr = "unknown"
	}
	return []string{
		string(scope) + ":id:" + shortHash(id),
		string(scope) + ":ip:" + shortHash(addr),
	}
}

func shortHash(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:16])
}

func normalizeAttemptPolicy(p AttemptPolicy) AttemptPolicy {
	if p.FreeAttempts < 0 {
		p.FreeAttempts = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = 15 * time.Minute
	}
	if p.ResetWindow <= 0 {
		p.ResetWindow = 15 * time.Minute
	}
	return p
}
