// Package ratelimit provides in-memory, per-key limiters.
//
// WindowLimiter is a fixed-window counter used for invite redemption
// attempts, where the window is also the penalty. MessageRateLimiter
// (message_ratelimit.go) adds a separate cooldown for chat spam.
package ratelimit

import (
	"sync"
	"time"
)

type windowBucket struct {
	count       int
	windowStart time.Time
}

// WindowLimiter allows at most maxAttempts per key inside each window.
type WindowLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*windowBucket
	maxAttempts int
	window      time.Duration
	now         func() time.Time
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewWindowLimiter starts a limiter and its background sweeper.
// Call Stop when the limiter is no longer used.
func NewWindowLimiter(maxAttempts int, window time.Duration) *WindowLimiter {
	l := &WindowLimiter{
		buckets:     make(map[string]*windowBucket),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	go sweep(l.stop, 2*window, l.cleanup)
	return l
}

// Allow records an attempt for key and reports whether it is within budget.
func (l *WindowLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) > l.window {
		l.buckets[key] = &windowBucket{count: 1, windowStart: now}
		return true
	}

	b.count++
	return b.count <= l.maxAttempts
}

// Reset forgets key, e.g. after a successful redemption.
func (l *WindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// RetryAfterSeconds is the Retry-After value for a rejected key, 0 if none.
func (l *WindowLimiter) RetryAfterSeconds(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return 0
	}
	remaining := l.window - l.now().Sub(b.windowStart)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// Stop ends the background sweeper. Safe to call more than once.
func (l *WindowLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *WindowLimiter) cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.windowStart) > l.window {
			delete(l.buckets, key)
		}
	}
}

// sweep runs fn every interval until stop is closed.
func sweep(stop <-chan struct{}, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-stop:
			return
		}
	}
}
