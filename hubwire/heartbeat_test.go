package hubwire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatSendsOnCadence(t *testing.T) {
	sched := newFakeScheduler()
	var pings []int64
	h := NewHeartbeat(sched, 25*time.Second, func(timestamp int64) error {
		pings = append(pings, timestamp)
		return nil
	})

	h.Start()
	require.True(t, h.Running())
	assert.Empty(t, pings)

	sched.advance(25 * time.Second)
	assert.Len(t, pings, 1)

	sched.advance(25 * time.Second)
	assert.Len(t, pings, 2)
}

func TestHeartbeatStartWhileRunningResetsCadence(t *testing.T) {
	sched := newFakeScheduler()
	sends := 0
	h := NewHeartbeat(sched, 10*time.Second, func(int64) error {
		sends++
		return nil
	})

	h.Start()
	sched.advance(6 * time.Second)
	// Restart rewinds the timer; no duplicate timer may survive.
	h.Start()
	assert.Equal(t, 1, sched.pending())

	sched.advance(6 * time.Second)
	assert.Zero(t, sends)

	sched.advance(4 * time.Second)
	assert.Equal(t, 1, sends)
}

func TestHeartbeatStop(t *testing.T) {
	sched := newFakeScheduler()
	sends := 0
	h := NewHeartbeat(sched, 10*time.Second, func(int64) error {
		sends++
		return nil
	})

	h.Start()
	h.Stop()
	assert.False(t, h.Running())

	sched.advance(time.Hour)
	assert.Zero(t, sends)
}

func TestHeartbeatKeepsTickingThroughSendErrors(t *testing.T) {
	sched := newFakeScheduler()
	sends := 0
	h := NewHeartbeat(sched, 10*time.Second, func(int64) error {
		sends++
		return errors.New("not connected")
	})

	h.Start()
	sched.advance(10 * time.Second)
	sched.advance(10 * time.Second)

	assert.Equal(t, 2, sends)
}

func TestHeartbeatPongComputesLatency(t *testing.T) {
	sched := newFakeScheduler()
	h := NewHeartbeat(sched, 10*time.Second, func(int64) error { return nil })

	h.HandlePong(time.Now().UnixMilli() - 40)
	got := h.Latency()
	assert.GreaterOrEqual(t, got, 40*time.Millisecond)
	assert.Less(t, got, time.Second)
}

func TestHeartbeatPongFromTheFutureClampsToZero(t *testing.T) {
	sched := newFakeScheduler()
	h := NewHeartbeat(sched, 10*time.Second, func(int64) error { return nil })

	h.HandlePong(time.Now().UnixMilli() + 60_000)
	assert.Equal(t, time.Duration(0), h.Latency())
}
