package hubwire

import "sync"

// Action is one queued outbound emission.
type Action struct {
	Event   EventName
	Payload any

	// MessageID is set for tracked message sends: the drain hands those to
	// the delivery tracker instead of emitting the payload directly, so
	// timeout and retry bookkeeping starts at transmission time.
	MessageID string
}

// OutboundQueue buffers actions attempted while the connection is down and
// replays them in FIFO order once it is back. Replay is best effort: items
// are popped before emission, and only a failed emission puts its item
// back.
type OutboundQueue struct {
	mu    sync.Mutex
	items []Action
}

func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{}
}

// Enqueue appends an action.
func (q *OutboundQueue) Enqueue(a Action) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()
}

// Len reports the number of queued actions.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain replays queued actions through emit until the queue is empty.
// Actions enqueued while the drain runs are picked up by the same pass. On
// an emission error the failed action returns to the head of the queue and
// the drain stops; the next connect drains the remainder.
func (q *OutboundQueue) Drain(emit func(Action) error) error {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return nil
		}
		a := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		if err := emit(a); err != nil {
			q.mu.Lock()
			q.items = append([]Action{a}, q.items...)
			q.mu.Unlock()
			return err
		}
	}
}
