package hubwire

import (
	"sync"
	"time"
)

// DeliveryStatus is the lifecycle state of a tracked message.
type DeliveryStatus string

const (
	// DeliveryPending: recorded, not yet written to a transport.
	DeliveryPending DeliveryStatus = "pending"
	// DeliveryQueued: recorded while disconnected, waiting in the
	// outbound queue.
	DeliveryQueued DeliveryStatus = "queued"
	// DeliverySent: written to the transport, acknowledgment outstanding.
	DeliverySent DeliveryStatus = "sent"
	// DeliveryDelivered and DeliveryRead are the success outcomes.
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	// DeliveryTimeout: an acknowledgment deadline expired while the
	// connection was down; the reconnect pass retransmits.
	DeliveryTimeout DeliveryStatus = "timeout"
	// DeliveryFailed: rejected by the hub or retry budget exhausted.
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryResult is the terminal outcome of a tracked send.
type DeliveryResult struct {
	MessageID       string
	ServerMessageID string
	Status          DeliveryStatus
	Attempts        int
}

// DeliveryCallback receives the outcome of a tracked send exactly once.
type DeliveryCallback func(DeliveryResult, error)

type trackedMessage struct {
	payload  *MessagePayload
	status   DeliveryStatus
	attempts int
	timer    TimerHandle // ack deadline of the current attempt
	evict    TimerHandle // grace-period eviction after resolution
	resolved bool
	cb       DeliveryCallback
}

type deliveryTrackerConfig struct {
	scheduler   Scheduler
	ackTimeout  time.Duration
	maxAttempts int
	grace       time.Duration

	// write puts a packet on the current transport; ErrNotConnected when
	// there is none.
	write func(*Packet) error
	// connected probes current connectivity at record time.
	connected func() bool
	// enqueue parks an action in the outbound queue.
	enqueue func(Action)
}

// DeliveryTracker correlates sent messages with their acknowledgments and
// drives the timeout/retry cycle.
//
// Every tracked message resolves its callback exactly once: on the first
// delivered/read acknowledgment, on an explicit failure acknowledgment, or
// when the retry budget runs out. Acknowledged messages stay around for a
// grace period so a late delivered-to-read upgrade still lands; after
// eviction further acknowledgments for the id are ignored.
type DeliveryTracker struct {
	mu  sync.Mutex
	cfg deliveryTrackerConfig

	messages map[string]*trackedMessage
}

func newDeliveryTracker(cfg deliveryTrackerConfig) *DeliveryTracker {
	return &DeliveryTracker{
		cfg:      cfg,
		messages: make(map[string]*trackedMessage),
	}
}

// Send records a message and either transmits it right away or parks it in
// the outbound queue, depending on connectivity. cb fires exactly once with
// the terminal outcome, possibly only after one or more reconnects.
func (t *DeliveryTracker) Send(payload *MessagePayload, cb DeliveryCallback) {
	t.mu.Lock()
	if _, ok := t.messages[payload.MessageID]; ok {
		t.mu.Unlock()
		if cb != nil {
			cb(DeliveryResult{MessageID: payload.MessageID}, &DeliveryError{
				MessageID: payload.MessageID,
				Reason:    "duplicate message id",
			})
		}
		return
	}
	m := &trackedMessage{payload: payload, status: DeliveryPending, cb: cb}
	t.messages[payload.MessageID] = m
	if t.cfg.connected() {
		fire := t.transmitLocked(m)
		t.mu.Unlock()
		if fire != nil {
			fire()
		}
		return
	}
	m.status = DeliveryQueued
	t.mu.Unlock()

	delivery_log.Debug(`message "%s" queued while disconnected`, payload.MessageID)
	t.cfg.enqueue(Action{Event: EventMessage, Payload: payload, MessageID: payload.MessageID})
}

// Transmit hands a queued message to the transport. The outbound queue
// calls this from its drain pass; an ErrNotConnected return makes the drain
// stop and keep the action.
func (t *DeliveryTracker) Transmit(id string) error {
	t.mu.Lock()
	m, ok := t.messages[id]
	if !ok || m.resolved {
		// Resolved or evicted while waiting in the queue; nothing to send.
		t.mu.Unlock()
		return nil
	}
	if !t.cfg.connected() {
		t.mu.Unlock()
		return ErrNotConnected
	}
	fire := t.transmitLocked(m)
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
	return nil
}

// RetryPending retransmits every message whose acknowledgment deadline
// expired while the connection was down. Messages with a deadline still
// armed are left alone: their own timers drive the retry, exactly as if the
// connection had never dropped.
func (t *DeliveryTracker) RetryPending() {
	t.mu.Lock()
	var fires []func()
	for _, m := range t.messages {
		if m.resolved || m.timer != nil {
			continue
		}
		if m.status == DeliveryTimeout || m.status == DeliveryPending {
			if fire := t.transmitLocked(m); fire != nil {
				fires = append(fires, fire)
			}
		}
	}
	t.mu.Unlock()
	for _, fire := range fires {
		fire()
	}
}

// HandleStatus applies one acknowledgment from the hub.
func (t *DeliveryTracker) HandleStatus(ack *StatusPayload) {
	t.mu.Lock()
	fire := t.handleStatusLocked(ack)
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
}

func (t *DeliveryTracker) handleStatusLocked(ack *StatusPayload) func() {
	m, ok := t.messages[ack.ClientMessageID]
	if !ok {
		delivery_log.Debug(`acknowledgment for unknown message "%s" ignored`, ack.ClientMessageID)
		return nil
	}
	switch ack.Status {
	case DeliverySent:
		// The hub holds the message now; retransmitting would only create
		// a duplicate. The outcome stays open until a terminal ack.
		t.stopTimerLocked(m)
		m.status = DeliverySent
		return nil

	case DeliveryDelivered, DeliveryRead:
		t.stopTimerLocked(m)
		if m.resolved {
			if m.status == DeliveryDelivered && ack.Status == DeliveryRead {
				// Late upgrade inside the grace window.
				m.status = DeliveryRead
			}
			return nil
		}
		m.status = ack.Status
		t.scheduleEvictLocked(ack.ClientMessageID, m)
		return t.resolveLocked(m, DeliveryResult{
			MessageID:       ack.ClientMessageID,
			ServerMessageID: ack.ServerMessageID,
			Status:          ack.Status,
			Attempts:        m.attempts,
		})

	case DeliveryFailed:
		if m.resolved {
			return nil
		}
		t.dropLocked(ack.ClientMessageID, m)
		m.status = DeliveryFailed
		reason := ack.Error
		if reason == "" {
			reason = "rejected by hub"
		}
		return t.rejectLocked(m, &DeliveryError{MessageID: ack.ClientMessageID, Reason: reason})

	default:
		delivery_log.Warnf(`unknown delivery status "%s" for message "%s"`, ack.Status, ack.ClientMessageID)
		return nil
	}
}

// transmitLocked writes the identical payload of m to the transport,
// counting the attempt and arming the acknowledgment deadline. A write
// failure parks the message for the reconnect pass.
func (t *DeliveryTracker) transmitLocked(m *trackedMessage) func() {
	id := m.payload.MessageID
	p, err := NewPacket(EventMessage, m.payload)
	if err != nil {
		// No retry fixes an unencodable payload.
		m.status = DeliveryFailed
		t.dropLocked(id, m)
		return t.rejectLocked(m, err)
	}
	if err := t.cfg.write(p); err != nil {
		// The attempt is not counted; nothing reached the wire.
		delivery_log.Debug(`message "%s" not written (%v), waiting for reconnect`, id, err)
		m.status = DeliveryTimeout
		m.timer = nil
		return nil
	}
	m.attempts++
	delivery_log.Debug(`message "%s" transmitted (attempt %d)`, id, m.attempts)
	m.status = DeliverySent
	m.timer = t.cfg.scheduler.Schedule(t.cfg.ackTimeout, func() {
		t.onTimeout(id)
	})
	return nil
}

func (t *DeliveryTracker) onTimeout(id string) {
	t.mu.Lock()
	var fire func()
	m, ok := t.messages[id]
	switch {
	case !ok || m.resolved:
		// Ack won the race with the timer.
	case m.attempts >= t.cfg.maxAttempts:
		delivery_log.Debug(`message "%s" unacknowledged after %d attempts, giving up`, id, m.attempts)
		m.status = DeliveryFailed
		t.dropLocked(id, m)
		fire = t.rejectLocked(m, &DeliveryTimeoutError{MessageID: id, Attempts: m.attempts})
	case t.cfg.connected():
		delivery_log.Debug(`message "%s" unacknowledged, retransmitting`, id)
		fire = t.transmitLocked(m)
	default:
		// Connection is down; the reconnect pass picks it up.
		m.status = DeliveryTimeout
		m.timer = nil
	}
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Status reports the current status of a tracked message.
func (t *DeliveryTracker) Status(id string) (DeliveryStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.messages[id]
	if !ok {
		return "", false
	}
	return m.status, true
}

// Len reports the number of tracked messages, resolved-but-not-evicted ones
// included.
func (t *DeliveryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *DeliveryTracker) resolveLocked(m *trackedMessage, res DeliveryResult) func() {
	m.resolved = true
	cb := m.cb
	if cb == nil {
		return nil
	}
	return func() { cb(res, nil) }
}

func (t *DeliveryTracker) rejectLocked(m *trackedMessage, err error) func() {
	m.resolved = true
	cb := m.cb
	if cb == nil {
		return nil
	}
	res := DeliveryResult{MessageID: m.payload.MessageID, Status: m.status, Attempts: m.attempts}
	return func() { cb(res, err) }
}

func (t *DeliveryTracker) stopTimerLocked(m *trackedMessage) {
	if m.timer != nil {
		m.timer.Cancel()
		m.timer = nil
	}
}

func (t *DeliveryTracker) scheduleEvictLocked(id string, m *trackedMessage) {
	m.evict = t.cfg.scheduler.Schedule(t.cfg.grace, func() {
		t.mu.Lock()
		delete(t.messages, id)
		t.mu.Unlock()
	})
}

func (t *DeliveryTracker) dropLocked(id string, m *trackedMessage) {
	t.stopTimerLocked(m)
	if m.evict != nil {
		m.evict.Cancel()
		m.evict = nil
	}
	delete(t.messages, id)
}
