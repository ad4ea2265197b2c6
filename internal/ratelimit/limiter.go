// Package ratelimit spaces out requests to the same key.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between requests per key.
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]time.Time
	minInterval time.Duration
}

// New creates a limiter. A zero interval allows everything.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Allow reports whether a request to key may go out now and, if so, records it.
// A refused request does not move the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.hosts[key]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.hosts[key] = now
	return true
}

// Wait blocks until a request to key may go out, or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	now := time.Now()
	next := now
	if last, ok := l.hosts[key]; ok {
		if earliest := last.Add(l.minInterval); earliest.After(now) {
			next = earliest
		}
	}
	// Reserve the slot before sleeping so concurrent callers queue behind it.
	l.hosts[key] = next
	l.mu.Unlock()

	delay := next.Sub(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset forgets the last request to key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.hosts, key)
	l.mu.Unlock()
}

// ResetAll forgets every key.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	l.hosts = make(map[string]time.Time)
	l.mu.Unlock()
}
