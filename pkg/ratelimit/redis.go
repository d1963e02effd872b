package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// windowScript counts a request in a fixed window. The expiry is set only
// when the window opens, so steady traffic cannot keep extending it.
var windowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter is a fixed-window limiter shared by every replica
type RedisLimiter struct {
	redis  *redis.Client
	config Config
	prefix string
}

// NewRedisLimiter creates a redis-backed limiter. Keys are stored under
// "ratelimit:<prefix>:".
func NewRedisLimiter(client *redis.Client, config Config, prefix string) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		config: config.normalize(),
		prefix: "ratelimit:" + prefix + ":",
	}
}

// Allow counts one request against key's current window
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := windowScript.Run(ctx, rl.redis, []string{rl.prefix + key}, rl.config.WindowDuration.Milliseconds()).Result()
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("rate limit check failed: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return Decision{Allowed: true}, fmt.Errorf("unexpected rate limit reply %T", res)
	}
	count, _ := vals[0].(int64)
	ttl, _ := vals[1].(int64)

	limit := rl.config.Capacity()
	d := Decision{Limit: limit, Remaining: limit - int(count)}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	d.Allowed = count <= int64(limit)
	if !d.Allowed {
		d.RetryAfter = time.Duration(ttl) * time.Millisecond
		if d.RetryAfter <= 0 {
			d.RetryAfter = rl.config.WindowDuration
		}
	}
	return d, nil
}

// Reset clears the window for key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.prefix+key).Err()
}
