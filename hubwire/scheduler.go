package hubwire

import (
	"time"

	"github.com/zishang520/engine.io/v2/utils"
)

// TimerHandle cancels a callback scheduled through a Scheduler. Canceling
// an already-fired or already-canceled handle is a no-op.
type TimerHandle interface {
	Cancel()
}

// Scheduler creates one-shot timers. Every time-driven piece of the client
// (delivery timeouts, retry cycles, reconnect backoff, heartbeats) takes
// its timers from here, so tests can substitute a fake clock and drive time
// deterministically.
type Scheduler interface {
	// Schedule runs fn once after delay on its own goroutine.
	Schedule(delay time.Duration, fn func()) TimerHandle
}

// NewScheduler returns the production Scheduler backed by real timers.
func NewScheduler() Scheduler {
	return timerScheduler{}
}

type timerScheduler struct{}

func (timerScheduler) Schedule(delay time.Duration, fn func()) TimerHandle {
	return &timerHandle{timer: utils.SetTimeout(fn, delay)}
}

type timerHandle struct {
	timer *utils.Timer
}

func (h *timerHandle) Cancel() {
	utils.ClearTimeout(h.timer)
}
