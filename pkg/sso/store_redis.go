package sso

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisTokenPrefix = "sso:token:"

// createScript writes the token hash unless the key already exists and
// lets redis expire it at the token's expiry.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'email', ARGV[1], 'name', ARGV[2], 'used', '0', 'expires_at', ARGV[3], 'created_at', ARGV[4], 'updated_at', ARGV[4])
redis.call('PEXPIREAT', KEYS[1], ARGV[3])
return 1
`)

// consumeScript is the check-and-set on the used flag. Returns nil unless
// the token exists, is unused and has not expired at ARGV[1].
var consumeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'used', 'expires_at', 'email', 'name')
if not v[1] or v[1] ~= '0' then
	return false
end
if tonumber(v[2]) <= tonumber(ARGV[1]) then
	return false
end
redis.call('HSET', KEYS[1], 'used', '1', 'updated_at', ARGV[1])
return {v[3], v[4]}
`)

// RedisTokenStore keeps each token in a hash that expires with the token
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a redis-backed token store
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) key(token string) string {
	return redisTokenPrefix + token
}

// Create stores an unconsumed token
func (s *RedisTokenStore) Create(ctx context.Context, t *Token) error {
	created, err := createScript.Run(ctx, s.client, []string{s.key(t.Value)},
		t.Identity.Email,
		t.Identity.Name,
		strconv.FormatInt(t.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(t.CreatedAt.UnixMilli(), 10),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to create sso token: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("failed to create sso token: token already exists")
	}
	return nil
}

// Consume runs the check-and-set server side
func (s *RedisTokenStore) Consume(ctx context.Context, token string, now time.Time) (Identity, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(token)},
		strconv.FormatInt(now.UnixMilli(), 10),
	).Result()
	if errors.Is(err, redis.Nil) {
		return Identity{}, ErrTokenInvalid
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to consume sso token: %w", err)
	}

	fields, ok := res.([]interface{})
	if !ok || len(fields) != 2 {
		return Identity{}, fmt.Errorf("failed to consume sso token: unexpected reply %T", res)
	}
	email, _ := fields[0].(string)
	name, _ := fields[1].(string)
	return Identity{Email: email, Name: name}, nil
}

// DeleteExpired is a no-op: redis drops each token key at its expiry
func (s *RedisTokenStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
