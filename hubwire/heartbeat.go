package hubwire

import (
	"sync"
	"sync/atomic"
	"time"
)

// Heartbeat emits application-level pings on a fixed cadence and computes
// the round-trip time from the echoed timestamps. It is purely advisory:
// a missing pong never tears the connection down, close detection belongs
// to the transport.
type Heartbeat struct {
	mu       sync.Mutex
	sched    Scheduler
	interval time.Duration
	send     func(timestamp int64) error
	timer    TimerHandle
	running  bool

	latency atomic.Int64 // milliseconds
}

func NewHeartbeat(sched Scheduler, interval time.Duration, send func(timestamp int64) error) *Heartbeat {
	return &Heartbeat{
		sched:    sched,
		interval: interval,
		send:     send,
	}
}

// Start arms the ping cycle. Calling Start while running resets the cycle
// instead of stacking a second timer.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Cancel()
	}
	h.running = true
	h.timer = h.sched.Schedule(h.interval, h.tick)
}

// Stop cancels the cycle. Latency from the last pong stays readable.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	if h.timer != nil {
		h.timer.Cancel()
		h.timer = nil
	}
}

// Running reports whether the cycle is armed.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Heartbeat) tick() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	// Re-arm before sending to keep the cadence independent of send time.
	h.timer = h.sched.Schedule(h.interval, h.tick)
	send := h.send
	h.mu.Unlock()

	if err := send(time.Now().UnixMilli()); err != nil {
		client_log.Debug("heartbeat ping not sent: %v", err)
	}
}

// HandlePong records the round trip derived from a pong's echoed ping
// timestamp.
func (h *Heartbeat) HandlePong(receivedPing int64) {
	rtt := time.Now().UnixMilli() - receivedPing
	if rtt < 0 {
		rtt = 0
	}
	h.latency.Store(rtt)
	client_log.Debug("heartbeat round trip %dms", rtt)
}

// Latency returns the round-trip time measured from the most recent pong,
// zero before the first one.
func (h *Heartbeat) Latency() time.Duration {
	return time.Duration(h.latency.Load()) * time.Millisecond
}
