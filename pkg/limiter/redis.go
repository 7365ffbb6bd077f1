package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes atomically server-side, so
// every ingest instance draws from the same budget.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = current unix time (fractional seconds)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

const redisKeyPrefix = "notary:limiter:"

// RedisLimiter shares one token bucket per key across ingest instances.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
}

// NewRedisLimiter connects to addr and keeps the buckets there.
func NewRedisLimiter(addr, password string, db int, cfg Config) *RedisLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisLimiterWithClient(client, cfg)
}

// NewRedisLimiterWithClient wraps an existing client. The limiter takes
// ownership; Close closes the client.
func NewRedisLimiterWithClient(client *redis.Client, cfg Config) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg.withDefaults()}
}

// Allow consumes one token for key. An error is a transport failure,
// not a verdict; the caller chooses whether to fail open or closed.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	allowed, err := tokenBucketScript.Run(ctx, l.client,
		[]string{redisKeyPrefix + key},
		l.cfg.PerSecond, l.cfg.Burst, 1, now,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("limiter: redis: %w", err)
	}
	return allowed == 1, nil
}

// Close releases the underlying client.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
