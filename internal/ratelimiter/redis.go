package ratelimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/infra"
)

// incrWindow atomically increments a fixed-window counter and sets its TTL
// on the first increment in that window, in one round trip. This is the
// idiomatic go-redis replacement for the separate INCR+EXPIRE calls a
// naive limiter would issue, which would let a crash between the two
// leave a key with no expiry.
var incrWindow = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter is the primary RateLimiter backend: a Lua-scripted fixed
// window counter per identity, namespaced the way the teacher's
// KillSwitchManager namespaces its Redis keys (infra.RedisKeyRatePrefix).
// On any Redis error it falls through to an in-memory Fallback rather
// than propagating the error, per spec.md §4.3's degrade-don't-fail rule.
type RedisLimiter struct {
	rdb      *redis.Client
	fallback *Fallback
	logger   *zap.Logger
}

func NewRedisLimiter(rdb *redis.Client, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		rdb:      rdb,
		fallback: NewFallback(),
		logger:   logger.Named("ratelimiter"),
	}
}

func (l *RedisLimiter) Check(ctx context.Context, identity string, limit int, windowSeconds int) (Decision, error) {
	if windowSeconds <= 0 {
		windowSeconds = 86400
	}
	now := time.Now().Unix()
	windowStart := now - now%int64(windowSeconds)
	key := infra.RateLimitKey(identity, windowStart)

	res, err := incrWindow.Run(ctx, l.rdb, []string{key}, windowSeconds).Int64()
	if err != nil {
		l.logger.Warn("redis unavailable, degrading to in-memory fallback",
			zap.String("identity", identity), zap.Error(err))
		d := l.fallback.check(identity, limit, windowSeconds)
		d.Degraded = true
		return d, nil
	}

	remaining := limit - int(res)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   int(res) <= limit,
		Remaining: remaining,
		ResetAt:   windowStart + int64(windowSeconds),
	}, nil
}

// Peek reports the decision the next Check would make without
// incrementing the counter, via a plain GET rather than the INCR script.
func (l *RedisLimiter) Peek(ctx context.Context, identity string, limit int, windowSeconds int) (Decision, error) {
	if windowSeconds <= 0 {
		windowSeconds = 86400
	}
	now := time.Now().Unix()
	windowStart := now - now%int64(windowSeconds)
	key := infra.RateLimitKey(identity, windowStart)

	count := 0
	res, err := l.rdb.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		l.logger.Warn("redis unavailable, degrading to in-memory fallback for peek",
			zap.String("identity", identity), zap.Error(err))
		d := l.fallback.peek(identity, limit, windowSeconds)
		d.Degraded = true
		return d, nil
	}
	if err == nil {
		count = int(res)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count < limit,
		Remaining: remaining,
		ResetAt:   windowStart + int64(windowSeconds),
	}, nil
}
