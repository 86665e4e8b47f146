package runner

import (
	"sync"
	"time"
)

// Backoff computes capped exponential retry delays.
// The n-th consecutive failure waits min(base*2^(n-1), ceiling).
type Backoff struct {
	mu       sync.Mutex
	base     time.Duration
	ceiling  time.Duration
	failures int
}

// NewBackoff returns a Backoff with the given bounds.
func NewBackoff(base, ceiling time.Duration) *Backoff {
	b := &Backoff{}
	b.SetBounds(base, ceiling)
	return b
}

// SetBounds replaces base and ceiling without resetting the failure count.
func (b *Backoff) SetBounds(base, ceiling time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ceiling < base {
		ceiling = base
	}
	b.base = base
	b.ceiling = ceiling
}

// Next records a failure and returns how long to wait before retrying.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	return b.delay(b.failures)
}

// Peek returns the delay the next failure would produce.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delay(b.failures + 1)
}

// Reset returns to the base delay after a success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// Failures returns the number of consecutive failures recorded.
func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Backoff) delay(n int) time.Duration {
	d := b.base
	for i := 1; i < n; i++ {
		if d > b.ceiling/2 {
			return b.ceiling
		}
		d *= 2
	}
	if d > b.ceiling {
		return b.ceiling
	}
	return d
}
