package api

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

// RateLimiter implements per-IP rate limiting with a sliding window. A limit
// of zero disables limiting.
type RateLimiter struct {
	mu              sync.Mutex
	perMinute       int
	visitors        map[string][]time.Time
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		perMinute:       perMinute,
		visitors:        make(map[string][]time.Time),
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from ip fits inside the window and records
// it when it does.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.perMinute <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := pruneOlder(rl.visitors[ip], now)
	if len(recent) >= rl.perMinute {
		rl.visitors[ip] = recent
		return false
	}

	rl.visitors[ip] = append(recent, now)
	return true
}

// RetryAfter returns the seconds until the oldest request leaves the window.
func (rl *RateLimiter) RetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	requests := rl.visitors[ip]
	if len(requests) == 0 {
		return 0
	}

	remaining := rateWindow - time.Since(requests[0])
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}

func pruneOlder(requests []time.Time, now time.Time) []time.Time {
	valid := requests[:0]
	for _, ts := range requests {
		if now.Sub(ts) < rateWindow {
			valid = append(valid, ts)
		}
	}
	return valid
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, requests := range rl.visitors {
		valid := pruneOlder(requests, now)
		if len(valid) == 0 {
			delete(rl.visitors, ip)
		} else {
			rl.visitors[ip] = valid
		}
	}
}

// Stop terminates the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
