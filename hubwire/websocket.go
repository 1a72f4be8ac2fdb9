package hubwire

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zishang520/engine.io/v2/transports"
)

// webSocket is the WebSocket transport. It dials the realtime endpoint,
// pumps inbound frames into packet events, and serializes outbound writes
// behind a mutex.
type webSocket struct {
	transport

	mu     sync.Mutex // guards writes to conn
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWebSocket creates a WebSocket transport for the given endpoint.
func NewWebSocket(e *Endpoint, opts *ClientOptions) Transport {
	t := &webSocket{}
	t.construct(e, opts)
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// Name returns the identifier for the WebSocket transport type.
func (t *webSocket) Name() string {
	return transports.WEBSOCKET
}

// Open starts the handshake. The result arrives as an "open" or
// "error"+"close" event.
func (t *webSocket) Open() {
	go t.dial()
}

func (t *webSocket) dial() {
	uri := t.createURI(t.wsScheme()).String()
	transport_log.Debug("websocket dialing %s", uri)

	dialer := &websocket.Dialer{
		HandshakeTimeout:  t.opts.DialTimeout,
		TLSClientConfig:   t.opts.TLSClientConfig,
		EnableCompression: t.opts.EnableCompression,
	}
	conn, _, err := dialer.DialContext(t.ctx, uri, t.requestHeaders())
	if err != nil {
		t.onError("websocket dial failed", err, t.ctx)
		t.onClose(err)
		return
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.onOpen()
	t.readLoop(conn)
}

func (t *webSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() == nil {
				t.onError("websocket read failed", err, t.ctx)
			}
			t.onClose(err)
			return
		}
		t.onData(data)
	}
}

// Send writes packets as individual text frames, in order.
func (t *webSocket) Send(packets ...*Packet) {
	if t.State() != TransportStateOpen {
		transport_log.Debug("transport is not open, discarding packets")
		return
	}

	t.mu.Lock()
	conn := t.conn
	var writeErr error
	if conn != nil {
		for _, p := range packets {
			data, err := EncodePacket(p)
			if err != nil {
				transport_log.Debug("skipping unencodable packet %q: %v", p.Event, err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				writeErr = err
				break
			}
		}
	}
	t.mu.Unlock()

	if writeErr != nil {
		t.onError("websocket write failed", writeErr, t.ctx)
		t.Close()
	}
}

// Close tears the connection down and reports the close upstream.
func (t *webSocket) Close() {
	t.cancel()

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		// Best effort close frame; the peer may already be gone.
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	t.onClose(nil)
}
