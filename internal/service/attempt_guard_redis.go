package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Refuses the attempt while any key is cooling down; otherwise counts it on
// every key. Returns {blocked_ms, armed_cooldown_ms}.
var redisAttemptScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local base_ms = tonumber(ARGV[2])
local multiplier = tonumber(ARGV[3])
local max_ms = tonumber(ARGV[4])
local reset_ms = tonumber(ARGV[5])
local free_attempts = tonumber(ARGV[6])

local blocked = 0
for _, key in ipairs(KEYS) do
  local until_ms = tonumber(redis.call("HGET", key, "until_ms") or "0")
  if until_ms - now_ms > blocked then
    blocked = until_ms - now_ms
  end
end
if blocked > 0 then
  return {blocked, 0}
end

local longest = 0
for _, key in ipairs(KEYS) do
  local attempts = tonumber(redis.call("HGET", key, "attempts") or "0")
  local last_ms = tonumber(redis.call("HGET", key, "last_ms") or "0")
  if last_ms == 0 or (now_ms - last_ms) > reset_ms then
    attempts = 0
  end
  attempts = attempts + 1

  local delay = 0
  if attempts > free_attempts then
    delay = math.floor(base_ms * (multiplier ^ (attempts - free_attempts - 1)))
  end
  if delay > max_ms then
    delay = max_ms
  end

  redis.call("HSET", key, "attempts", tostring(attempts), "last_ms", tostring(now_ms), "until_ms", tostring(now_ms + delay))
  redis.call("PEXPIRE", key, reset_ms + delay)
  if delay > longest then
    longest = delay
  end
end
return {0, longest}
`)

type RedisAttemptGuard struct {
	client redis.UniversalClient
	prefix string
	policy AttemptPolicy
}

func NewRedisAttemptGuard(client redis.UniversalClient, prefix string, policy AttemptPolicy) *RedisAttemptGuard {
	if prefix == "" {
		prefix = "attempts"
	}
	return &RedisAttemptGuard{client: client, prefix: prefix, policy: normalizeAttemptPolicy(policy)}
}

func (g *RedisAttemptGuard) Attempt(ctx context.Context, scope AttemptScope, identity, ip string) (AttemptResult, error) {
	raw, err := redisAttemptScript.Run(ctx, g.client, g.keys(scope, identity, ip),
		time.Now().UTC().UnixMilli(),
		g.policy.BaseDelay.Milliseconds(),
		g.policy.Multiplier,
		g.policy.MaxDelay.Milliseconds(),
		g.policy.ResetWindow.Milliseconds(),
		g.policy.FreeAttempts,
	).Slice()
	if err != nil {
		return AttemptResult{}, err
	}
	if len(raw) != 2 {
		return AttemptResult{}, fmt.Errorf("unexpected attempt script reply of %d values", len(raw))
	}
	blocked, err := parseRedisInt64(raw[0])
	if err != nil {
		return AttemptResult{}, err
	}
	armed, err := parseRedisInt64(raw[1])
	if err != nil {
		return AttemptResult{}, err
	}
	return AttemptResult{
		Blocked:  time.Duration(max(blocked, 0)) * time.Millisecond,
		Cooldown: time.Duration(max(armed, 0)) * time.Millisecond,
	}, nil
}

func (g *RedisAttemptGuard) Reset(ctx context.Context, scope AttemptScope, identity, ip string) error {
	return g.client.Del(ctx, g.keys(scope, identity, ip)...).Err()
}

func (g *RedisAttemptGuard) keys(scope AttemptScope, identity, ip string) []string {
	keys := attemptKeys(scope, identity, ip)
	for i := range keys {
		keys[i] = g.prefix + ":" + keys[i]
	}
	return keys
}

// parseRedisInt64 accepts the integer shapes go-redis returns for script
// replies and the string shapes it returns for hash fields.
func parseRedisInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis response overflows int64")
		}
		return int64(n), nil
	case string:
		out, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse redis integer %q: %w", n, err)
		}
		return out, nil
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
