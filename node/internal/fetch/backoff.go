package fetch

import (
	"math/rand"
	"time"
)

// BackoffPolicy describes truncated exponential backoff with jitter.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// New returns a fresh Backoff following p.
func (p BackoffPolicy) New() *Backoff {
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return &Backoff{policy: p, current: p.Initial}
}

// Backoff is the per-fetcher state of a BackoffPolicy. Not safe for
// concurrent use; each polling loop owns one.
type Backoff struct {
	policy  BackoffPolicy
	current time.Duration
}

// Next returns the current wait with ±25% jitter and advances the state.
func (b *Backoff) Next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * b.policy.Multiplier)
	if b.current > b.policy.Max {
		b.current = b.policy.Max
	}
	return d
}

// Reset returns to the initial wait, called after a productive round.
func (b *Backoff) Reset() {
	b.current = b.policy.Initial
}
