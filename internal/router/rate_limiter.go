package router

import (
	"sync"
	"time"

	"checkmate/internal/registry"
)

// Defaults are generous: control traffic is a handful of messages per page
// load, so the limit only matters for misbehaving clients.
const (
	DefaultRateLimit  = 100
	DefaultRateWindow = time.Minute
)

// RateLimiter tracks inbound message counts per connection over a fixed
// window. Keyed by connection rather than user because unauthenticated
// connections send control messages too.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[*registry.Connection]*connLimit
}

type connLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit messages per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[*registry.Connection]*connLimit),
	}
}

// Allow reports whether the connection may send another message and records
// the attempt.
func (rl *RateLimiter) Allow(conn *registry.Connection) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	cl, ok := rl.clients[conn]
	if !ok {
		rl.clients[conn] = &connLimit{count: 1, windowStart: now}
		return true
	}

	if now.Sub(cl.windowStart) >= rl.window {
		cl.count = 1
		cl.windowStart = now
		return true
	}

	if cl.count >= rl.limit {
		return false
	}

	cl.count++
	return true
}

// Forget drops state for a closed connection so entries don't accumulate.
func (rl *RateLimiter) Forget(conn *registry.Connection) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, conn)
}
