package infra

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Backoff hands out growing, jittered delays between retries of a failing operation
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

func NewBackoff(minDelay, maxDelay time.Duration, mult float64) *Backoff {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Backoff{
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		multiplier: mult,
		current:    minDelay,
	}
}

// Next returns the delay before the next attempt, +/-20% jitter, never below minDelay
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	jitterFactor := rand.Float64()*0.4 - 0.2
	jitter := time.Duration(jitterFactor * float64(b.current))
	wait := max(b.current+jitter, b.minDelay)

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

// Wait sleeps for Next() and returns early with ctx.Err() on cancellation
func (b *Backoff) Wait(ctx context.Context) (time.Duration, error) {
	wait := b.Next()
	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return wait, ctx.Err()
	case <-t.C:
		return wait, nil
	}
}

// Reset is called after a success
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
