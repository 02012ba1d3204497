package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type bucket struct {
	count    int
	windowAt time.Time
}

// RateLimiter caps how many requests a single host may make within a
// rolling window. It guards the websocket upgrade endpoint so a
// misbehaving client cannot churn through join attempts.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
	}
	go rl.sweep()
	return rl
}

// Allow reports whether the given host is still under its request
// budget for the current window.
func (rl *RateLimiter) Allow(host string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[host]
	if !ok || now.Sub(b.windowAt) > rl.window {
		rl.buckets[host] = &bucket{count: 1, windowAt: now}
		return true
	}

	b.count++
	return b.count <= rl.limit
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		if !rl.Allow(host) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) sweep() {
	for {
		time.Sleep(rl.window)
		now := time.Now()
		rl.mu.Lock()
		for host, b := range rl.buckets {
			if now.Sub(b.windowAt) > rl.window {
				delete(rl.buckets, host)
			}
		}
		rl.mu.Unlock()
	}
}
