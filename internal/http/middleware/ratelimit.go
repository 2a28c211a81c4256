// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the product rate limiter: an in-memory sliding window
// over request timestamps, keyed per identity. It is the quota that protects
// the expensive AI-backed endpoints, distinct from the edge throttle in
// throttle.go (which is a coarse token bucket in front of everything).
//
// Semantics:
//   - Each identity may have at most `max` accepted requests inside any
//     window-sized interval.
//   - Rejected attempts are NOT recorded, so hammering a full window never
//     pushes the reset time further out.
//   - Timestamps older than the window are pruned on every check.
//
// Notes:
//   - The limiter is process-local. Horizontally scaled deployments need a
//     distributed limiter (e.g., Redis-backed) to enforce a global quota.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// keyFunc selects the identity used to key a rate-limit bucket.
//
// Implementations should return a stable string for the duration of a request
// (e.g., "user:<id>" or "ip:<addr>").
type keyFunc func(*gin.Context) string

// KeyByUserOrIP returns a keyFunc that prefers the authenticated user (from
// the Gin context under "userID", set by RequireAuth) and falls back to the
// client IP address.
//
// The resulting keys are prefixed to avoid collisions between user and IP
// namespaces (e.g., "user:abc123" vs "ip:203.0.113.7").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter implements a per-identity sliding-window request limiter.
//
// Accepted request timestamps are kept per identity; a request is allowed
// when, after pruning entries older than the window, fewer than max
// timestamps remain. Only accepted requests append a timestamp.
//
// This type is safe for concurrent use.
type RateLimiter struct {
	max    int
	window time.Duration
	keyFn  keyFunc

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewRateLimiter constructs a RateLimiter allowing max accepted requests per
// identity inside any window-sized interval.
//
//   - max:    values < 1 are coerced to 1.
//   - window: values <= 0 are coerced to one hour.
//   - keyFn:  function that maps a request to its identity.
func NewRateLimiter(max int, window time.Duration, keyFn keyFunc) *RateLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &RateLimiter{
		max:    max,
		window: window,
		keyFn:  keyFn,
		hits:   make(map[string][]time.Time),
	}
}

// Allow reports whether identity may proceed right now. On acceptance the
// current timestamp is recorded; on rejection nothing is recorded, so the
// caller's window is never extended by refused attempts.
func (rl *RateLimiter) Allow(identity string) bool {
	ok, _ := rl.allowAt(identity, time.Now())
	return ok
}

// allowAt is Allow with an injectable clock. It returns the decision and,
// when rejected, how long until the oldest recorded request leaves the
// window (i.e., the soonest moment a retry can succeed).
func (rl *RateLimiter) allowAt(identity string, now time.Time) (bool, time.Duration) {
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Prune in place: kept shares the backing array and only overwrites
	// slots already read.
	old := rl.hits[identity]
	kept := old[:0]
	for _, ts := range old {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.max {
		rl.hits[identity] = kept
		return false, kept[0].Sub(cutoff)
	}
	rl.hits[identity] = append(kept, now)
	return true, 0
}

// Handler returns a Gin middleware enforcing the sliding-window limit.
//
// Rejections answer:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds until a slot frees>
//	{
//	  "request_id": "<uuid>",
//	  "error":      "too_many_requests",
//	  "message":    "rate limit exceeded"
//	}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryIn := rl.allowAt(rl.keyFn(c), time.Now())
		if allowed {
			c.Next()
			return
		}

		secs := int(retryIn.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"error":      "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
