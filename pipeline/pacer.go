package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer spaces browser page visits with a jittered delay so the acquisition
// stage looks like a person rather than a scraper. The last-visit timestamp
// is owned by the Pacer and guarded by its own lock, since concurrent
// acquisition attempts race to schedule the next slot.
type Pacer struct {
	min time.Duration
	max time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewPacer creates a Pacer that keeps consecutive visits between min and max
// apart. A nil Pacer or a non-positive max disables pacing.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{min: min, max: max}
}

// Wait blocks until this caller's reserved slot arrives. Each caller
// reserves the slot one jittered delay after the previous reservation, so
// concurrent callers are spaced out rather than released together.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.max <= 0 {
		return nil
	}

	delay := p.min
	if jitter := p.max - p.min; jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(jitter) + 1))
	}

	p.mu.Lock()
	now := time.Now()
	target := p.last.Add(delay)
	if target.Before(now) {
		target = now
	}
	p.last = target
	p.mu.Unlock()

	wait := time.Until(target)
	if wait <= 0 {
		return nil
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
