package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult is the outcome of taking one token from a bucket.
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	// ResetAt is when the bucket will be full again.
	ResetAt time.Time
	// RetryAfter is zero when Allowed.
	RetryAfter time.Duration
}

// bucket describes one token bucket in Redis.
type bucket struct {
	key string
	// perMilli is the refill rate in tokens per millisecond.
	perMilli float64
	burst    int
}

// takeTokenScript refills the bucket for the time elapsed since the last
// take, then consumes one token if there is one. Times are milliseconds.
// Returns {allowed, tokens left, ms until next token, ms until full}.
var takeTokenScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
	tokens = math.min(burst, tokens + (now - ts) * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait = math.ceil((1 - tokens) / rate)
end

local full = math.ceil((burst - tokens) / rate)
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', KEYS[1], full + 1000)
return {allowed, math.floor(tokens), wait, full}
`)

func (c *Cache) take(ctx context.Context, b bucket) (*RateLimitResult, error) {
	now := time.Now()
	res, err := takeTokenScript.Run(ctx, c.client, []string{b.key}, b.perMilli, b.burst, now.UnixMilli()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", b.key, err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", b.key, res)
	}
	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
		ResetAt:    now.Add(time.Duration(res[3]) * time.Millisecond),
	}, nil
}

// CheckAPIRateLimit takes a token from the bucket of one API key.
// A zero rate means the key's tier is unlimited.
func (c *Cache) CheckAPIRateLimit(ctx context.Context, keyID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now()}, nil
	}
	return c.take(ctx, bucket{
		key:      "ratelimit:apikey:" + keyID,
		perMilli: float64(ratePerMinute) / float64(time.Minute/time.Millisecond),
		burst:    max(burst, 1),
	})
}

// CheckIPRateLimit takes a token from the bucket of one client IP. It
// guards the routes that run before any API key is known: sign-in and the
// backend's status callbacks. IPs are stored hashed.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now()}, nil
	}
	return c.take(ctx, bucket{
		key:      "ratelimit:ip:" + hashIP(ip),
		perMilli: float64(ratePerSecond) / float64(time.Second/time.Millisecond),
		burst:    max(burst, 1),
	})
}

// hashIP keeps raw client addresses out of Redis: 8 bytes of SHA-256, hex.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
