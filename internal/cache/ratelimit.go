package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketKind namespaces one family of token buckets in Redis.
type bucketKind struct {
	prefix string
	// idle buckets expire once they would have refilled anyway
	ttl time.Duration
}

var (
	principalBuckets = bucketKind{prefix: "ratelimit:principal:", ttl: 2 * time.Minute}
	ipBuckets        = bucketKind{prefix: "ratelimit:ip:", ttl: 10 * time.Second}
)

// RateLimitResult is the outcome of taking one token.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time // when the bucket is full again
	RetryAfter time.Duration
}

// takeToken keeps {tokens, ts} in a hash with millisecond timestamps.
// Returns {allowed, retry_after_ms, remaining, full_in_ms}.
var takeToken = redis.NewScript(`
local rate = tonumber(ARGV[1]) / 1000
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

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, wait, math.floor(tokens), math.ceil((burst - tokens) / rate)}
`)

// CheckPrincipalRateLimit takes a token from the bucket of a user or API
// key (AuthContext.PrincipalID). A zero rate means unlimited.
func (c *Cache) CheckPrincipalRateLimit(ctx context.Context, principalID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute == 0 {
		return c.unlimited(burst), nil
	}
	return c.take(ctx, principalBuckets, principalID, float64(ratePerMinute)/60, burst)
}

// CheckIPRateLimit takes a token from the bucket of a client IP. Signup
// and login use it before any principal exists. Raw IPs are not stored.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.take(ctx, ipBuckets, hashIP(ip), float64(ratePerSecond), burst)
}

func (c *Cache) take(ctx context.Context, kind bucketKind, id string, perSecond float64, burst int) (*RateLimitResult, error) {
	now := c.clock()
	res, err := takeToken.Run(ctx, c.client, []string{kind.prefix + id},
		perSecond, burst, now.UnixMilli(), kind.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		// Callers fail open on error, so the result still says allowed.
		return c.unlimited(burst), fmt.Errorf("rate limit %s: %w", kind.prefix, err)
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(res[3]) * time.Millisecond),
	}, nil
}

func (c *Cache) unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: c.clock().Add(time.Minute)}
}

func (c *Cache) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// hashIP keys IP buckets by the first 8 bytes of SHA-256.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
