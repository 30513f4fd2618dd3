package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Breaker stops calls to an upstream after Threshold failures within Window
// and keeps it closed off for Cooldown. A success clears the count.
type Breaker struct {
	name      string
	threshold int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	failures  int
	lastFail  time.Time
	openUntil time.Time
}

// NewBreaker creates a Breaker. name only appears in logs.
func NewBreaker(name string, threshold int, window, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Open reports whether calls should be skipped right now.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.openUntil)
}

// Failure records a failed call and trips the breaker at the threshold.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.lastFail) > b.window {
		b.failures = 0
	}
	b.failures++
	b.lastFail = now
	if b.failures < b.threshold {
		return
	}
	b.openUntil = now.Add(b.cooldown)
	b.failures = 0
	zap.L().Warn("circuit breaker opened",
		zap.String("upstream", b.name),
		zap.Duration("cooldown", b.cooldown),
	)
}

// Success records a good call.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}
