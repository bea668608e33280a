package main

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimiter is a simple windowed rate limiter that tracks request
// counts per client key in memory. A zero limit allows everything.
type rateLimiter struct {
	rpm      int
	mu       sync.Mutex
	counters map[string]*windowCounter
}

type windowCounter struct {
	count    int
	windowAt time.Time
}

func newRateLimiter(rpm int) *rateLimiter {
	return &rateLimiter{
		rpm:      rpm,
		counters: make(map[string]*windowCounter),
	}
}

// allow checks if a request under the given key is within the limit.
// When the limit is exceeded it returns false and the time remaining
// until the window resets, suitable for a Retry-After header.
func (l *rateLimiter) allow(key string) (time.Duration, bool) {
	if l.rpm <= 0 {
		return 0, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		// New window.
		l.counters[key] = &windowCounter{count: 1, windowAt: now}
		return 0, true
	}

	c.count++
	if c.count > l.rpm {
		return time.Minute - now.Sub(c.windowAt), false
	}

	return 0, true
}

// clientKey identifies the caller for rate limiting: the Portkey API
// key when one is sent, otherwise the remote host.
func clientKey(r *http.Request) string {
	if key := r.Header.Get(headerAPIKey); key != "" {
		return key
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
