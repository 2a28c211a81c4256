// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a lightweight, in-memory, token-bucket edge throttle
// with per-identity buckets and opportunistic garbage collection. It sits in
// front of the whole router (including unauthenticated endpoints) and exists
// for abuse control and cost protection; the product quota is the
// sliding-window RateLimiter in ratelimit.go.
//
// Features:
//   - Per-key token buckets using golang.org/x/time/rate
//   - Pluggable identity function (user ID or client IP)
//   - Best-effort cleanup of idle buckets to bound memory
//
// Notes:
//   - The throttle is process-local. For horizontally scaled deployments,
//     prefer a distributed limiter to enforce global limits.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitor holds a single token bucket and the last time it was seen.
// Used to opportunistically evict idle buckets.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle implements a per-key token-bucket throttle.
//
// Buckets are created on demand and stored in an internal map guarded by a
// mutex. Idle buckets are evicted after a TTL via opportunistic cleanup during
// lookups to keep memory usage bounded.
//
// This type is safe for concurrent use.
type Throttle struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewThrottle constructs a Throttle with the given tokens-per-second and
// burst size, keyed by keyFn.
//
//   - rps:   tokens replenished per second (0 allows no requests; use >0).
//   - burst: maximum burst size; values <= 0 are coerced to 1.
//   - keyFn: function that maps a request to a bucket identity.
//
// The returned throttle is ready to be installed as middleware via Handler().
func NewThrottle(rps float64, burst int, keyFn keyFunc) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute, // evict idle entries after TTL
	}
}

// getVisitor returns (and updates) the bucket for key, creating it if absent.
// It also performs opportunistic GC of idle entries after ~5000 lookups.
//
// IMPORTANT: Run GC *before* touching the requested visitor so an "old"
// bucket can be evicted even when it's the one being fetched.
func (t *Throttle) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	t.mu.Lock()
	// Opportunistic cleanup after a threshold of lookups, then reset the
	// counter. Do this BEFORE updating/creating the requested visitor to
	// avoid refreshing an "old" entry that should be evicted.
	t.cleanupN++
	if t.cleanupN >= 5000 {
		for k, vv := range t.visitors {
			if now.Sub(vv.lastSeen) >= t.ttl {
				delete(t.visitors, k)
			}
		}
		t.cleanupN = 0
	}

	if v, ok := t.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		t.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(t.rps, t.burst)
	t.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	t.mu.Unlock()
	return lim
}

// Handler returns a Gin middleware that enforces per-key token-bucket limits.
//
// The request is checked against the key's bucket. If allowed, the request
// proceeds; if not, a 429 response is returned with the standard error
// envelope and a minimal Retry-After header.
func (t *Throttle) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lim := t.getVisitor(t.keyFn(c))

		if lim.Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"error":      "too_many_requests",
			"message":    "too many requests, slow down",
		})
	}
}
