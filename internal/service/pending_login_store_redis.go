package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// confirmPendingScript updates the hash in place so the key keeps its TTL.
var confirmPendingScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "status", ARGV[1], "account_id", ARGV[2])
return 1
`)

type RedisPendingLoginStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisPendingLoginStore(client redis.UniversalClient, prefix string) *RedisPendingLoginStore {
	if prefix == "" {
		prefix = "travel"
	}
	return &RedisPendingLoginStore{client: client, prefix: prefix}
}

func (s *RedisPendingLoginStore) key(rid string) string {
	return s.prefix + ":pending:" + rid
}

func (s *RedisPendingLoginStore) Create(ctx context.Context, p PendingLogin, ttl time.Duration) error {
	key := s.key(p.RID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(p.Status),
		"account_id", strconv.FormatUint(uint64(p.AccountID), 10),
		"created_at", strconv.FormatInt(p.CreatedAt.UnixNano(), 10),
	)
	pipe.PExpire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisPendingLoginStore) Get(ctx context.Context, rid string) (*PendingLogin, error) {
	vals, err := s.client.HGetAll(ctx, s.key(rid)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrPendingLoginNotFound
	}
	accountID, err := strconv.ParseUint(vals["account_id"], 10, 64)
	if err != nil {
		return nil, errors.New("pending login: malformed account_id")
	}
	createdNanos, err := strconv.ParseInt(vals["created_at"], 10, 64)
	if err != nil {
		return nil, errors.New("pending login: malformed created_at")
	}
	return &PendingLogin{
		RID:       rid,
		Status:    PendingStatus(vals["status"]),
		AccountID: uint(accountID),
		CreatedAt: time.Unix(0, createdNanos).UTC(),
	}, nil
}

func (s *RedisPendingLoginStore) Confirm(ctx context.Context, rid string, accountID uint) error {
	n, err := confirmPendingScript.Run(ctx, s.client, []string{s.key(rid)},
		string(PendingStatusConfirmed), strconv.FormatUint(uint64(accountID), 10)).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPendingLoginNotFound
	}
	return nil
}

func (s *RedisPendingLoginStore) Delete(ctx context.Context, rid string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(rid)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
