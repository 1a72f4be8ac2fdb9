package hubwire

import (
	"math"
	"math/rand"
	"time"
)

// reconnectBackoff computes the wait before each reconnection attempt:
// exponential growth from a base delay, a hard ceiling, and random jitter
// so a fleet of clients losing the same hub does not redial in lockstep.
type reconnectBackoff struct {
	base    time.Duration
	ceiling time.Duration
	// jitter is the randomization factor in [0, 1): the computed delay is
	// shifted by up to jitter*delay in either direction.
	jitter float64
}

// delay returns the wait before the given 1-based attempt.
func (b *reconnectBackoff) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.base) * math.Pow(2, float64(attempt-1))
	if d > float64(b.ceiling) {
		d = float64(b.ceiling)
	}
	if b.jitter > 0 {
		deviation := rand.Float64() * b.jitter * d
		if rand.Intn(2) == 0 {
			d -= deviation
		} else {
			d += deviation
		}
	}
	if d > float64(b.ceiling) {
		d = float64(b.ceiling)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
