package infra

import "fmt"

// RedisNamespace isolates this project's keys from anything else sharing
// the Redis instance.
const RedisNamespace = "toolbroker"

// Rate-limiter counter and idempotency keys.
const (
	RedisKeyRatePrefix        = RedisNamespace + ":rate:"
	RedisKeyIdempotencyPrefix = RedisNamespace + ":idempotency:"
)

// Pub/sub channel for cache invalidation when an operator edits a policy
// through the Admin API; the PolicyEngine's in-process policy cache (if
// any) can subscribe to re-fetch from Store.
const RedisChanPolicyUpdate = RedisNamespace + ":policy-update"

// RateLimitKey builds the Redis key for a fixed window counter.
func RateLimitKey(identity string, windowStart int64) string {
	return fmt.Sprintf("%s%s:%d", RedisKeyRatePrefix, identity, windowStart)
}

// IdempotencyKey builds the Redis key for a cached AccessBroker decision.
func IdempotencyKey(key string) string {
	return RedisKeyIdempotencyPrefix + key
}
