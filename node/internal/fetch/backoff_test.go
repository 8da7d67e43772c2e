package fetch

import (
	"testing"
	"time"
)

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := BackoffPolicy{Initial: 100 * time.Millisecond, Max: 400 * time.Millisecond, Multiplier: 2}.New()

	// Jitter is ±25%, so each wait lies within [0.75, 1.25] of the nominal.
	for _, nominal := range []time.Duration{100, 200, 400, 400, 400} {
		nominal *= time.Millisecond
		d := b.Next()
		lo, hi := nominal*3/4, nominal*5/4
		if d < lo || d > hi {
			t.Errorf("Next: got %v, want within [%v, %v]", d, lo, hi)
		}
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := BackoffPolicy{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 3}.New()
	b.Next()
	b.Next()
	b.Reset()
	if d := b.Next(); d > 125*time.Millisecond {
		t.Errorf("Next after Reset: got %v, want about 100ms", d)
	}
}

func TestBackoffPolicy_NormalisesBadValues(t *testing.T) {
	b := BackoffPolicy{Initial: time.Second, Max: time.Millisecond, Multiplier: 0}.New()
	for i := 0; i < 3; i++ {
		if d := b.Next(); d > 1250*time.Millisecond {
			t.Errorf("Next: got %v, want capped near 1s", d)
		}
	}
}
