package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:identity:"

// Returns {allowed, count, ttl_ms}. Over the limit the counter is left as is.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local current = redis.call('GET', key)
if not current then
	redis.call('SET', key, 1, 'PX', window)
	return {1, 1, window}
end

current = tonumber(current)
local ttl = redis.call('PTTL', key)
if current >= limit then
	return {0, current, ttl}
end

current = redis.call('INCR', key)
return {1, current, ttl}
`)

// RedisLimiter shares windows between processes. Window expiry is driven by
// the key TTL on the redis server.
type RedisLimiter struct {
	client redis.Scripter
	rule   Rule
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client redis.Scripter, rule Rule) (*RedisLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if rule.Requests <= 0 || rule.Window <= 0 {
		return nil, fmt.Errorf("rate limit rule must have positive values")
	}
	return &RedisLimiter{client: client, rule: rule}, nil
}

func (l *RedisLimiter) Admit(ctx context.Context, key string, now time.Time) (Decision, error) {
	res, err := admitScript.Run(ctx, l.client, []string{keyPrefix + key}, l.rule.Requests, l.rule.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	ttl := time.Duration(res[2]) * time.Millisecond
	if ttl < 0 {
		ttl = l.rule.Window
	}
	return Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Limit:   l.rule.Requests,
		ResetAt: now.Add(ttl),
	}, nil
}
