package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementWindowLua increments KEYS[1] and arms its expiry on the first hit
// of a window. A key that somehow lost its TTL is re-armed so a counter can
// never become permanent.
//
// KEYS[1] = counter key
// ARGV[1] = window in milliseconds
//
// Returns {count, remaining ttl in ms}.
var incrementWindowLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Decision is the outcome of a single [Limiter.Check] call.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds. A denied decision
// always reports at least one second.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		if d.Allowed {
			return 0
		}
		return 1
	}
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Limiter counts hits per key inside fixed windows stored in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Limiter] backed by the given Redis client. prefix namespaces
// every counter key; an empty prefix defaults to "rl".
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Key builds the counter key for an operation and target.
func (l *Limiter) Key(operation, target string) string {
	return l.prefix + ":" + operation + ":" + target
}

// Check increments the counter stored at key and reports whether the hit is
// still within maxAttempts for the current window. The increment is never
// undone, even when the hit is denied.
func (l *Limiter) Check(ctx context.Context, key string, window time.Duration, maxAttempts int) (Decision, error) {
	if window <= 0 || maxAttempts <= 0 {
		return Decision{}, ErrInvalidPolicy
	}
	if l == nil || l.redis == nil {
		return Decision{}, ErrUnavailable
	}

	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1
	}

	res, err := incrementWindowLua.Run(ctx, l.redis, []string{key}, windowMS).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected script result", ErrUnavailable)
	}

	count, ttlMS := res[0], res[1]
	decision := Decision{
		Allowed: count <= int64(maxAttempts),
		Count:   count,
	}
	if remaining := int64(maxAttempts) - count; remaining > 0 {
		decision.Remaining = int(remaining)
	}
	if !decision.Allowed {
		decision.RetryAfter = time.Duration(ttlMS) * time.Millisecond
	}

	return decision, nil
}

// Peek returns the current count for key without incrementing it.
func (l *Limiter) Peek(ctx context.Context, key string) (int64, error) {
	if l == nil || l.redis == nil {
		return 0, ErrUnavailable
	}
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}
