package hubwire

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler is a deterministic Scheduler for tests: time only moves
// when advance is called, and due callbacks run on the calling goroutine.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	sched    *fakeScheduler
	deadline time.Duration
	fn       func()
	canceled bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{}
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, deadline: s.now + delay, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Cancel() {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	t.canceled = true
}

// advance moves the clock and fires due timers in deadline order.
// Callbacks may schedule new timers; those fire too when they fall within
// the advanced window.
func (s *fakeScheduler) advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		idx := -1
		for i, t := range s.timers {
			if t.canceled || t.deadline > target {
				continue
			}
			if idx == -1 || t.deadline < s.timers[idx].deadline {
				idx = i
			}
		}
		if idx == -1 {
			s.now = target
			s.mu.Unlock()
			return
		}
		due := s.timers[idx]
		s.timers = append(s.timers[:idx:idx], s.timers[idx+1:]...)
		if due.deadline > s.now {
			s.now = due.deadline
		}
		s.mu.Unlock()
		due.fn()
	}
}

// pending counts timers that are armed and not yet due.
func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.canceled {
			n++
		}
	}
	return n
}

func TestFakeSchedulerFiresInDeadlineOrder(t *testing.T) {
	sched := newFakeScheduler()

	var order []string
	sched.Schedule(30*time.Millisecond, func() { order = append(order, "late") })
	sched.Schedule(10*time.Millisecond, func() { order = append(order, "early") })
	sched.Schedule(20*time.Millisecond, func() { order = append(order, "middle") })

	sched.advance(50 * time.Millisecond)

	assert.Equal(t, []string{"early", "middle", "late"}, order)
	assert.Zero(t, sched.pending())
}

func TestFakeSchedulerCancel(t *testing.T) {
	sched := newFakeScheduler()

	fired := false
	h := sched.Schedule(10*time.Millisecond, func() { fired = true })
	h.Cancel()
	sched.advance(time.Hour)

	assert.False(t, fired)
}

func TestFakeSchedulerChainedTimers(t *testing.T) {
	sched := newFakeScheduler()

	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		if ticks < 3 {
			sched.Schedule(10*time.Millisecond, tick)
		}
	}
	sched.Schedule(10*time.Millisecond, tick)

	sched.advance(35 * time.Millisecond)
	assert.Equal(t, 3, ticks)
}

func TestTimerSchedulerFiresAndCancels(t *testing.T) {
	sched := NewScheduler()

	fired := make(chan struct{})
	sched.Schedule(5*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		require.FailNow(t, "timer did not fire")
	}

	canceled := make(chan struct{})
	h := sched.Schedule(20*time.Millisecond, func() { close(canceled) })
	h.Cancel()
	select {
	case <-canceled:
		require.FailNow(t, "canceled timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}
