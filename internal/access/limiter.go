package access

import (
	"context"
	"math"
	"sync"
	"time"
)

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter is an in-memory token bucket per client. Each client gets limit
// tokens per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	now     func() time.Time
}

// NewLimiter creates a limiter and evicts idle buckets until ctx ends.
func NewLimiter(ctx context.Context, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
		now:     time.Now,
	}
	go l.evictLoop(ctx)
	return l
}

// Allow takes one token from client's bucket. When none is left it reports
// how long until the next token arrives. A non-positive limit never blocks.
func (l *Limiter) Allow(client string, limit int) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[client]
	if !ok {
		l.buckets[client] = &bucket{tokens: float64(limit - 1), lastCheck: now}
		return true, 0
	}

	rate := float64(limit) / l.window.Seconds()
	b.tokens = math.Min(float64(limit), b.tokens+now.Sub(b.lastCheck).Seconds()*rate)
	b.lastCheck = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / rate * float64(time.Second))
		return false, wait
	}
	b.tokens--
	return true, 0
}

func (l *Limiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// evictIdle drops buckets untouched for two windows; they would be full
// again anyway.
func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for client, b := range l.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(l.buckets, client)
		}
	}
}
