package middleware

import (
	"net/http"
	"sync"
	"time"

	"ecoreports/internal/metrics"

	"github.com/gin-gonic/gin"
)

// RateLimitStore decides whether one more request for key fits the budget.
type RateLimitStore interface {
	Allow(key string) bool
}

type bucket struct {
	start time.Time
	count int
}

// FixedWindowLimiter allows limit requests per key per window. State is process-local.
// Expired windows are evicted lazily: on access, and in a sweep every window.
type FixedWindowLimiter struct {
	mu        sync.Mutex
	windows   map[string]*bucket
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewFixedWindowLimiter(limit int, win time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		windows:   make(map[string]*bucket),
		limit:     limit,
		window:    win,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (r *FixedWindowLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastSweep) >= r.window {
		r.sweep(now)
	}
	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= r.window {
		r.windows[key] = &bucket{start: now, count: 1}
		return r.limit > 0
	}
	if w.count >= r.limit {
		return false
	}
	w.count++
	return true
}

func (r *FixedWindowLimiter) sweep(now time.Time) {
	for k, w := range r.windows {
		if now.Sub(w.start) >= r.window {
			delete(r.windows, k)
		}
	}
	r.lastSweep = now
}

// Len returns the number of tracked keys.
func (r *FixedWindowLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// RateLimit returns a middleware that limits by client IP.
func RateLimit(store RateLimitStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !store.Allow(c.ClientIP()) {
			metrics.RateLimitedTotal.Inc()
			Abort(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		c.Next()
	}
}
