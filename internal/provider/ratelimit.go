package provider

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a fixed minimum delay between successive calls to the same
// source, across requests. Rate-limit compliance is a correctness
// requirement for the free tiers of the upstream APIs, not an optimization.
type Pacer struct {
	mu       sync.Mutex
	lastCall map[string]time.Time
	delay    time.Duration
}

// NewPacer creates a Pacer with the given minimum inter-call delay.
// A zero or negative delay disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{
		lastCall: make(map[string]time.Time),
		delay:    delay,
	}
}

// Wait blocks until source may be called again, or ctx is done. The call
// slot is reserved before sleeping, so concurrent waiters queue up rather
// than stampede.
func (p *Pacer) Wait(ctx context.Context, source string) error {
	if p.delay <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	next := now
	if last, ok := p.lastCall[source]; ok && last.Add(p.delay).After(now) {
		next = last.Add(p.delay)
	}
	p.lastCall[source] = next
	p.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
