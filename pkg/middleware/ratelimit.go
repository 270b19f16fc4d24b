package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/scmguard/scmguard/pkg/httputil"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns the per-caller default. Authorization
// checks are cheap but sit in front of every API call, so the ceiling
// is generous.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter implements fixed-window rate limiting on Redis so limits
// hold across service instances.
type RateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewRateLimiter creates a new Redis-backed rate limiter
func NewRateLimiter(redisClient *redis.Client, config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		redis:  redisClient,
		config: config,
		prefix: "ratelimit",
	}
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// TTL returns the time until the rate limit window resets
func (rl *RateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, fmt.Sprintf("%s:%s", rl.prefix, key)).Result()
}

// Handler wraps an HTTP handler with per-caller rate limiting. Keys by
// the gateway identity when present, otherwise by client IP. Redis
// failures fail open: a rate limiter outage must not take
// authorization checks down with it.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key := "ip:" + clientIP(r)
		if identity := GetIdentity(r); identity != nil {
			key = fmt.Sprintf("user:%s:%s", identity.Provider, identity.ProviderUserID)
		}

		allowed, err := rl.Allow(ctx, key)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			retryAfter := rl.config.WindowDuration.Seconds()
			if ttl, err := rl.TTL(ctx, key); err == nil && ttl > 0 {
				retryAfter = ttl.Seconds()
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
