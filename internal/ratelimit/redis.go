package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "natal:ratelimit:"

// allowScript checks and increments atomically; the window starts with the
// first counted request and ends when the key expires.
var allowScript = redis.NewScript(`
local c = tonumber(redis.call('GET', KEYS[1]) or '0')
if c >= tonumber(ARGV[1]) then
	return 0
end
c = redis.call('INCR', KEYS[1])
if c == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisLimiter is a fixed-window limiter whose counters live in Redis, so
// several gateway instances share one quota per client.
type RedisLimiter struct {
	rdb    redis.Cmdable
	limit  int
	period time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows limit requests per client per period.
func NewRedisLimiter(rdb redis.Cmdable, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		limit:  limit,
		period: period,
		now:    time.Now,
	}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (l *RedisLimiter) key(clientID string) string {
	return keyPrefix + clientID
}

// Allow reports whether clientID may make one more request, consuming a unit
// of quota if so.
func (l *RedisLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	if l.limit <= 0 {
		return false, nil
	}
	n, err := allowScript.Run(ctx, l.rdb, []string{l.key(clientID)}, l.limit, l.period.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return n == 1, nil
}

// Usage reports clientID's current window without consuming quota.
func (l *RedisLimiter) Usage(ctx context.Context, clientID string) (Usage, error) {
	key := l.key(clientID)

	count, err := l.rdb.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return newUsage(0, l.limit, time.Time{}), nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("rate limit usage: %w", err)
	}

	ttl, err := l.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return Usage{}, fmt.Errorf("rate limit usage: %w", err)
	}
	var resetAt time.Time
	if ttl > 0 {
		resetAt = l.now().Add(ttl)
	}
	return newUsage(count, l.limit, resetAt), nil
}

// Sweep is a no-op: Redis expires windows on its own.
func (l *RedisLimiter) Sweep() int {
	return 0
}
