package hubwire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsExponentiallyWithoutJitter(t *testing.T) {
	b := &reconnectBackoff{base: time.Second, ceiling: time.Minute}

	assert.Equal(t, time.Second, b.delay(1))
	assert.Equal(t, 2*time.Second, b.delay(2))
	assert.Equal(t, 4*time.Second, b.delay(3))
	assert.Equal(t, 8*time.Second, b.delay(4))
}

func TestBackoffHonorsCeiling(t *testing.T) {
	b := &reconnectBackoff{base: time.Second, ceiling: 5 * time.Second}

	assert.Equal(t, 5*time.Second, b.delay(10))
	assert.Equal(t, 5*time.Second, b.delay(63))
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	b := &reconnectBackoff{base: time.Second, ceiling: 30 * time.Second, jitter: 0.5}

	for attempt := 1; attempt <= 6; attempt++ {
		base := time.Duration(float64(time.Second) * float64(int(1)<<(attempt-1)))
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		for i := 0; i < 50; i++ {
			d := b.delay(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.5))
			assert.LessOrEqual(t, d, 30*time.Second)
		}
	}
}

func TestBackoffClampsBadAttempt(t *testing.T) {
	b := &reconnectBackoff{base: time.Second, ceiling: time.Minute}

	assert.Equal(t, time.Second, b.delay(0))
	assert.Equal(t, time.Second, b.delay(-3))
}
