// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements per-identity rate limiting behind a small Limiter
// interface with two backends:
//
//   - RateLimiter: in-process token buckets (golang.org/x/time/rate) held in
//     a bounded LRU. Fine for a single replica.
//   - RedisLimiter: GCRA over Redis (go-redis/redis_rate) so every replica
//     shares one budget per identity.
//
// Idempotent replays flagged by IdempotencyValidator skip limiting.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP prefers the caller's user id and falls back to the client IP.
// Keys are namespaced ("user:abc", "ip:203.0.113.7").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// Limiter decides whether one more request for key is allowed. retryAfter is
// a hint for the Retry-After header when denied.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// maxBuckets bounds the in-memory limiter; the least recently seen identity
// is evicted first.
const maxBuckets = 10000

// RateLimiter is the in-memory Limiter. Safe for concurrent use.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	keyFn   keyFunc
	buckets *lru.Cache
}

// NewRateLimiter builds an in-memory limiter; burst <= 0 is coerced to 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	buckets, _ := lru.New(maxBuckets) // only fails for size <= 0
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: buckets,
	}
}

// bucket returns the token bucket for key, creating it on first use.
func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	if v, ok := rl.buckets.Get(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	if prev, found, _ := rl.buckets.PeekOrAdd(key, lim); found {
		return prev.(*rate.Limiter)
	}
	return lim
}

// Allow implements Limiter. A denied request does not consume a token and
// the retry hint is the time until the next one.
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	r := rl.bucket(key).Reserve()
	if !r.OK() {
		return false, time.Second, nil
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d, nil
	}
	return true, 0, nil
}

// Handler is RateLimit(rl, keyFn) for the in-memory limiter.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return RateLimit(rl, rl.keyFn)
}

// RedisLimiter is a Limiter shared across replicas through Redis.
type RedisLimiter struct {
	lim   *redis_rate.Limiter
	limit redis_rate.Limit
}

// NewRedisLimiter allows rps requests per second with the given burst per
// key. Fractional rates stretch the period instead (0.5 rps = 1 per 2s).
func NewRedisLimiter(rdb redis.UniversalClient, rps float64, burst int) *RedisLimiter {
	if burst <= 0 {
		burst = 1
	}
	l := redis_rate.Limit{Rate: int(math.Round(rps)), Burst: burst, Period: time.Second}
	if rps < 1 {
		l.Rate = 1
		if rps > 0 {
			l.Period = time.Duration(float64(time.Second) / rps)
		}
	}
	return &RedisLimiter{lim: redis_rate.NewLimiter(rdb), limit: l}
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := r.lim.Allow(ctx, "ratelimit:"+key, r.limit)
	if err != nil {
		return false, 0, err
	}
	return res.Allowed > 0, res.RetryAfter, nil
}

// IsRateBypass reports whether IdempotencyValidator served this request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// RateLimit enforces l per keyFn identity and answers 429 too_many_requests
// with Retry-After when the budget is spent. Limiter errors fail open.
func RateLimit(l Limiter, keyFn keyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		allowed, retry, err := l.Allow(c.Request.Context(), keyFn(c))
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if allowed {
			c.Next()
			return
		}
		secs := int(math.Ceil(retry.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		httpThrottled.WithLabelValues(metricPath(c)).Inc()
		abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}
