package hubwire

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zishang520/engine.io/v2/types"
)

// ConnectionListener observes connectivity transitions. It fires with true
// only after the resume sequence (heartbeat, subscription replay, queue
// drain, delivery retries) has run, so a listener that sends immediately
// sends on a fully restored session.
type ConnectionListener func(connected bool)

type connEntry struct {
	id uint64
	fn ConnectionListener
}

// Client is a realtime chat connection: one transport at a time, endpoint
// discovery in front, and automatic reconnection with exponential backoff
// behind. Room subscriptions, queued emissions and unacknowledged messages
// all survive a reconnect.
//
// A Client is safe for concurrent use. Every Client is independent; two
// instances share nothing, not even default options.
type Client struct {
	mu sync.RWMutex

	opts  *ClientOptions
	state ClientState

	transport Transport
	endpoint  *Endpoint
	ctors     []TransportCtor

	// initialized is set once an endpoint resolution has been kicked off.
	initialized bool
	// intentional marks a user-requested disconnect, which must not
	// trigger reconnection.
	intentional bool
	// reconnecting is true between the first scheduled retry and the next
	// successful open.
	reconnecting   bool
	attempts       int
	reconnectTimer TimerHandle

	sched   Scheduler
	backoff *reconnectBackoff

	dispatcher *Dispatcher
	rooms      *RoomRegistry
	queue      *OutboundQueue
	tracker    *DeliveryTracker
	heartbeat  *Heartbeat

	// Connection listeners keep registration order; notifications walk the
	// slice front to back.
	connListeners []connEntry
	nextConnID    uint64

	// Transport listeners are stored so detach can remove exactly the
	// functions attach added.
	onOpenFn   func(...any)
	onPacketFn func(...any)
	onErrorFn  func(...any)
	onCloseFn  func(...any)
}

// NewClient creates a Client from the given options. Nil options and unset
// fields take their defaults. The client stays offline until Init or
// Connect.
func NewClient(opts *ClientOptions) *Client {
	o := opts.withDefaults()
	c := &Client{
		opts:  o,
		state: ClientStateDisconnected,
		sched: o.Scheduler,
		backoff: &reconnectBackoff{
			base:    o.ReconnectionDelay,
			ceiling: o.ReconnectionDelayMax,
			jitter:  o.RandomizationFactor,
		},
		dispatcher: NewDispatcher(),
		rooms:      NewRoomRegistry(o.VisitorID),
		queue:      NewOutboundQueue(),
		ctors:      enabledTransports(o.Transports),
	}
	c.tracker = newDeliveryTracker(deliveryTrackerConfig{
		scheduler:   o.Scheduler,
		ackTimeout:  o.DeliveryTimeout,
		maxAttempts: o.MaxSendAttempts,
		grace:       o.DeliveryGracePeriod,
		write:       c.writePacket,
		connected:   c.IsConnected,
		enqueue:     c.queue.Enqueue,
	})
	c.heartbeat = NewHeartbeat(o.Scheduler, o.HeartbeatInterval, c.sendPing)

	c.onOpenFn = func(...any) {
		c.onTransportOpen()
	}
	c.onPacketFn = func(args ...any) {
		if p, ok := args[0].(*Packet); ok {
			c.onPacket(p)
		}
	}
	c.onErrorFn = func(args ...any) {
		if err, ok := args[0].(error); ok {
			c.onTransportError(err)
		}
	}
	c.onCloseFn = func(args ...any) {
		var reason error
		if len(args) > 0 {
			reason, _ = args[0].(error)
		}
		c.onTransportClose(reason)
	}
	return c
}

// enabledTransports filters the known transport builders down to the
// enabled set, keeping the preference order stable.
func enabledTransports(enabled *types.Set[string]) []TransportCtor {
	all := []TransportCtor{&WebSocketBuilder{}, &WebTransportBuilder{}, &PollingBuilder{}}
	ctors := make([]TransportCtor, 0, len(all))
	for _, ctor := range all {
		if enabled.Has(ctor.Name()) {
			ctors = append(ctors, ctor)
		}
	}
	return ctors
}

// Init resolves the realtime endpoint and opens the first connection. It
// returns immediately; progress is reported through the "connect" and
// "error" events. Calling Init more than once is a no-op.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.state == ClientStateClosed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	c.intentional = false
	c.mu.Unlock()

	go c.bootstrap(ctx)
	return nil
}

func (c *Client) bootstrap(ctx context.Context) {
	e, err := resolveEndpoint(ctx, c.opts)
	if err != nil {
		client_log.Debug("endpoint resolution failed: %v", err)
		c.mu.Lock()
		c.initialized = false
		c.mu.Unlock()
		c.dispatcher.Dispatch(EventError, err)
		return
	}
	c.mu.Lock()
	c.endpoint = e
	c.mu.Unlock()
	c.connect()
}

// Connect opens a connection after a Disconnect, re-running discovery when
// no endpoint is known yet. It also resets an exhausted reconnection cycle.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == ClientStateClosed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.intentional = false
	if c.state == ClientStateConnected || c.state == ClientStateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.attempts = 0
	initialized := c.initialized && c.endpoint != nil
	c.initialized = true
	c.mu.Unlock()

	if !initialized {
		go c.bootstrap(ctx)
		return nil
	}
	go c.connect()
	return nil
}

// connect opens one transport toward the resolved endpoint.
func (c *Client) connect() {
	c.mu.Lock()
	if c.state != ClientStateDisconnected || c.intentional {
		c.mu.Unlock()
		return
	}
	ctor := c.pickTransportLocked()
	if ctor == nil {
		c.mu.Unlock()
		c.dispatcher.Dispatch(EventError, errors.New("hubwire: no transport enabled"))
		return
	}
	c.state = ClientStateConnecting
	t := ctor.New(c.endpoint, c.opts)
	c.transport = t
	c.attachLocked(t)
	c.mu.Unlock()

	client_log.Debug(`opening transport "%s"`, t.Name())
	t.Open()
}

// pickTransportLocked prefers the transport named by the discovery hint
// when it is enabled, and the first enabled transport otherwise.
func (c *Client) pickTransportLocked() TransportCtor {
	if len(c.ctors) == 0 {
		return nil
	}
	if hint := c.endpoint.Transport; hint != "" {
		for _, ctor := range c.ctors {
			if ctor.Name() == hint {
				return ctor
			}
		}
		client_log.Debug(`discovery transport hint "%s" is not enabled`, hint)
	}
	return c.ctors[0]
}

func (c *Client) attachLocked(t Transport) {
	t.On("open", c.onOpenFn)
	t.On("packet", c.onPacketFn)
	t.On("error", c.onErrorFn)
	t.On("close", c.onCloseFn)
}

func (c *Client) detachLocked(t Transport) {
	t.RemoveListener("open", c.onOpenFn)
	t.RemoveListener("packet", c.onPacketFn)
	t.RemoveListener("error", c.onErrorFn)
	t.RemoveListener("close", c.onCloseFn)
}

// onTransportOpen runs the session resume sequence. The order is fixed:
// heartbeat first, then subscription replay, then the queued backlog, then
// retries of unacknowledged messages, and connection listeners last, so by
// the time a listener observes connected=true the session is whole again.
func (c *Client) onTransportOpen() {
	c.mu.Lock()
	if c.state == ClientStateClosed || c.intentional {
		t := c.transport
		c.mu.Unlock()
		if t != nil {
			t.Close()
		}
		return
	}
	wasReconnect := c.reconnecting
	attempts := c.attempts
	c.state = ClientStateConnected
	c.reconnecting = false
	c.attempts = 0
	c.mu.Unlock()

	client_log.Debug("transport open (reconnect=%t)", wasReconnect)

	c.heartbeat.Start()
	if err := c.rooms.ReplayAll(c.emitNow); err != nil {
		client_log.Debug("subscription replay interrupted: %v", err)
	}
	if err := c.queue.Drain(c.replayAction); err != nil {
		client_log.Debug("queue drain interrupted: %v", err)
	}
	c.tracker.RetryPending()
	c.notifyConnectionChange(true)
	c.dispatcher.Dispatch(EventConnect, nil)
	if wasReconnect {
		c.dispatcher.Dispatch(EventReconnect, attempts)
	}
}

// replayAction emits one queued action. Tracked message sends go through
// the delivery tracker so their timeout bookkeeping starts now, not at
// enqueue time.
func (c *Client) replayAction(a Action) error {
	if a.MessageID != "" {
		return c.tracker.Transmit(a.MessageID)
	}
	return c.emitNow(a.Event, a.Payload)
}

// emitNow writes one event to the current transport, or fails with
// ErrNotConnected.
func (c *Client) emitNow(event EventName, payload any) error {
	p, err := NewPacket(event, payload)
	if err != nil {
		return err
	}
	return c.writePacket(p)
}

func (c *Client) writePacket(p *Packet) error {
	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()
	if t == nil || t.State() != TransportStateOpen {
		return ErrNotConnected
	}
	t.Send(p)
	return nil
}

// onPacket routes one inbound packet: protocol events feed their internal
// consumers, and every event reaches the dispatcher for user handlers.
func (c *Client) onPacket(p *Packet) {
	payload, err := p.DecodeData()
	if err != nil {
		client_log.Debug(`dropping "%s" packet with malformed payload: %v`, p.Event, err)
		return
	}
	switch p.Event {
	case EventMessageStatus:
		if ack, ok := payload.(*StatusPayload); ok {
			c.tracker.HandleStatus(ack)
		}
	case EventPong:
		if pong, ok := payload.(*PongPayload); ok {
			c.heartbeat.HandlePong(pong.ReceivedPing)
		}
	case EventJoinSuccess:
		if js, ok := payload.(*JoinSuccessPayload); ok {
			client_log.Debug(`join confirmed for room "%s"`, js.RoomID)
		}
	}
	c.dispatcher.Dispatch(p.Event, payload)
}

func (c *Client) onTransportError(err error) {
	client_log.Debug("transport error: %v", err)
	c.dispatcher.Dispatch(EventError, err)
}

// onTransportClose records the loss, tells listeners, and schedules the
// next attempt unless the disconnect was requested.
func (c *Client) onTransportClose(reason error) {
	c.mu.Lock()
	if t := c.transport; t != nil {
		c.detachLocked(t)
		c.transport = nil
	}
	if c.state == ClientStateClosed {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == ClientStateConnected
	c.state = ClientStateDisconnected
	intentional := c.intentional
	c.mu.Unlock()

	client_log.Debug("transport closed (reason: %v)", reason)

	c.heartbeat.Stop()
	if wasConnected {
		c.notifyConnectionChange(false)
		c.dispatcher.Dispatch(EventDisconnect, reason)
	}
	if !intentional {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or gives
// up when the attempt budget is spent.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.state != ClientStateDisconnected || c.intentional || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	if c.opts.ReconnectionAttempts > 0 && c.attempts >= c.opts.ReconnectionAttempts {
		c.reconnecting = false
		c.mu.Unlock()
		client_log.Debug("reconnection budget spent after %d attempts", c.opts.ReconnectionAttempts)
		c.dispatcher.Dispatch(EventError, ErrReconnectExhausted)
		return
	}
	c.reconnecting = true
	c.attempts++
	attempt := c.attempts
	delay := c.backoff.delay(attempt)
	c.reconnectTimer = c.sched.Schedule(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		c.dispatcher.Dispatch(EventReconnectAttempt, attempt)
		c.connect()
	})
	c.mu.Unlock()

	client_log.Debug("reconnect attempt %d in %s", attempt, delay)
}

// Disconnect closes the connection and stays offline until Connect. Queued
// actions, room subscriptions and unresolved deliveries are kept.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == ClientStateClosed {
		c.mu.Unlock()
		return
	}
	c.intentional = true
	c.reconnecting = false
	c.attempts = 0
	if c.reconnectTimer != nil {
		c.reconnectTimer.Cancel()
		c.reconnectTimer = nil
	}
	t := c.transport
	if t == nil {
		c.state = ClientStateDisconnected
	}
	c.mu.Unlock()

	c.heartbeat.Stop()
	if t != nil {
		// Close emits the close event; onTransportClose does the rest of
		// the bookkeeping.
		t.Close()
	}
}

// Close disconnects and retires the client for good. Every operation on a
// closed client returns ErrClientClosed.
func (c *Client) Close() {
	c.Disconnect()
	c.mu.Lock()
	c.state = ClientStateClosed
	c.mu.Unlock()
	// A transport open racing Disconnect can restart the heartbeat; with the
	// state latched closed a second stop is final.
	c.heartbeat.Stop()
}

// IsConnected reports whether a transport is open right now.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == ClientStateConnected && c.transport != nil && c.transport.State() == TransportStateOpen
}

// State returns the connection lifecycle state.
func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsReconnecting reports whether the client is between reconnection
// attempts after an unclean close.
func (c *Client) IsReconnecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnecting
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == ClientStateClosed
}

// Latency returns the last heartbeat round trip time.
func (c *Client) Latency() time.Duration {
	return c.heartbeat.Latency()
}

// VisitorID returns the identity this client joins rooms with.
func (c *Client) VisitorID() string {
	return c.opts.VisitorID
}

// OnConnectionChange registers a connectivity listener and returns its
// removal function.
func (c *Client) OnConnectionChange(fn ConnectionListener) func() {
	c.mu.Lock()
	id := c.nextConnID
	c.nextConnID++
	c.connListeners = append(c.connListeners, connEntry{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		for i, e := range c.connListeners {
			if e.id == id {
				c.connListeners = append(c.connListeners[:i], c.connListeners[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
	}
}

func (c *Client) notifyConnectionChange(connected bool) {
	c.mu.RLock()
	listeners := make([]ConnectionListener, 0, len(c.connListeners))
	for _, e := range c.connListeners {
		listeners = append(listeners, e.fn)
	}
	c.mu.RUnlock()
	for _, fn := range listeners {
		c.safeNotify(fn, connected)
	}
}

// safeNotify keeps one panicking listener from taking down the transport
// goroutine or starving the listeners after it.
func (c *Client) safeNotify(fn ConnectionListener, connected bool) {
	defer func() {
		if r := recover(); r != nil {
			client_log.Debug("connection listener panic recovered: %v", r)
		}
	}()
	fn(connected)
}

// On registers a handler for an event and returns its removal function.
func (c *Client) On(event EventName, fn Handler) func() {
	return c.dispatcher.On(event, fn)
}

// Off removes specific handlers for an event, or every handler for the
// event when none are given.
func (c *Client) Off(event EventName, fns ...Handler) {
	c.dispatcher.Off(event, fns...)
}

// JoinRoom subscribes to a room. The subscription is recorded first, so it
// is replayed on every reconnect; offline joins go out with the next
// replay. Joining a room twice does not emit twice.
func (c *Client) JoinRoom(roomID string) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if roomID == "" {
		return errors.New("hubwire: empty room id")
	}
	if !c.rooms.Join(roomID) {
		return nil
	}
	if c.IsConnected() {
		return c.emitNow(EventJoin, &JoinPayload{RoomID: roomID, VisitorID: c.opts.VisitorID})
	}
	return nil
}

// LeaveRoom drops a room subscription. An offline leave only updates the
// registry; the room is simply absent from the next replay.
func (c *Client) LeaveRoom(roomID string) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if roomID == "" {
		return errors.New("hubwire: empty room id")
	}
	if !c.rooms.Leave(roomID) {
		return nil
	}
	if c.IsConnected() {
		return c.emitNow(EventLeave, &LeavePayload{RoomID: roomID})
	}
	return nil
}

// Rooms returns the subscribed rooms in join order.
func (c *Client) Rooms() []string {
	return c.rooms.Rooms()
}

// SendMessage sends a chat message with a generated id and blocks until
// the hub acknowledges it, the retry budget runs out, or ctx is done. The
// returned result carries the delivery status reached so far even on error.
func (c *Client) SendMessage(ctx context.Context, roomID string, content string) (*DeliveryResult, error) {
	return c.SendMessageWithID(ctx, roomID, content, uuid.NewString())
}

// SendMessageWithID is SendMessage with a caller-chosen message id.
// The id must be unique per client; reusing one fails the send.
func (c *Client) SendMessageWithID(ctx context.Context, roomID string, content string, messageID string) (*DeliveryResult, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	type outcome struct {
		res DeliveryResult
		err error
	}
	done := make(chan outcome, 1)
	c.sendMessage(roomID, content, messageID, func(res DeliveryResult, err error) {
		done <- outcome{res: res, err: err}
	})
	select {
	case out := <-done:
		return &out.res, out.err
	case <-ctx.Done():
		status, _ := c.tracker.Status(messageID)
		return &DeliveryResult{MessageID: messageID, Status: status}, ctx.Err()
	}
}

// SendMessageAsync sends a chat message with a generated id and reports the
// outcome through cb instead of blocking. It returns the message id.
func (c *Client) SendMessageAsync(roomID string, content string, cb DeliveryCallback) string {
	id := uuid.NewString()
	if c.isClosed() {
		if cb != nil {
			cb(DeliveryResult{MessageID: id}, ErrClientClosed)
		}
		return id
	}
	c.sendMessage(roomID, content, id, cb)
	return id
}

func (c *Client) sendMessage(roomID string, content string, messageID string, cb DeliveryCallback) {
	c.tracker.Send(&MessagePayload{
		RoomID:      roomID,
		Content:     content,
		MessageID:   messageID,
		MessageType: c.opts.MessageType,
		Timestamp:   time.Now().UnixMilli(),
	}, cb)
}

// SendTypingStatus reports typing activity in a room.
func (c *Client) SendTypingStatus(roomID string, typing bool) error {
	return c.emitOrQueue(EventTyping, &TypingPayload{
		RoomID:    roomID,
		Typing:    typing,
		VisitorID: c.opts.VisitorID,
	})
}

// SendReadReceipt marks messages in a room as read. An empty id list is a
// no-op.
func (c *Client) SendReadReceipt(roomID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return c.emitOrQueue(EventMessageRead, &ReadReceiptPayload{
		RoomID:     roomID,
		MessageIDs: messageIDs,
		VisitorID:  c.opts.VisitorID,
	})
}

// SendUserStatus reports this visitor as active or away in a room.
func (c *Client) SendUserStatus(roomID string, active bool) error {
	event := EventUserAway
	if active {
		event = EventUserActive
	}
	return c.emitOrQueue(event, &PresencePayload{
		RoomID:    roomID,
		VisitorID: c.opts.VisitorID,
	})
}

// emitOrQueue emits now when connected and queues for the reconnect drain
// otherwise.
func (c *Client) emitOrQueue(event EventName, payload any) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	err := c.emitNow(event, payload)
	if errors.Is(err, ErrNotConnected) {
		client_log.Debug(`"%s" queued while disconnected`, event)
		c.queue.Enqueue(Action{Event: event, Payload: payload})
		return nil
	}
	return err
}

func (c *Client) sendPing(timestamp int64) error {
	return c.emitNow(EventPing, &PingPayload{Timestamp: timestamp})
}
