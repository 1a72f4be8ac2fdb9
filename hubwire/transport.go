package hubwire

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/zishang520/engine.io/v2/types"
)

// transport is the base implementation shared by the concrete transport
// types (WebSocket, WebTransport, Polling). It owns the lifecycle state and
// the event plumbing; the concrete types supply the actual I/O.
type transport struct {
	types.EventEmitter

	// query contains the URL query parameters for the transport connection.
	query url.Values

	// writable indicates whether the transport is currently able to send
	// data. This is an atomic boolean to ensure thread-safe access.
	writable atomic.Bool

	// endpoint is the resolved realtime endpoint this transport dials.
	endpoint *Endpoint

	// opts contains the client options configuration for this transport.
	opts *ClientOptions

	// readyState represents the current state of the transport connection.
	// This is an atomic pointer to ensure thread-safe state management.
	readyState atomic.Pointer[TransportState]

	// closed latches the close event so it fires at most once, whichever
	// of the read loop or an explicit Close gets there first.
	closed atomic.Bool
}

// construct initializes the base transport in place.
func (t *transport) construct(e *Endpoint, opts *ClientOptions) {
	t.EventEmitter = types.NewEventEmitter()
	t.endpoint = e
	t.opts = opts
	t.query = e.Query
	t.writable.Store(false)
	t.setReadyState(TransportStateOpening)
}

// Query returns the URL query parameters for the transport.
func (t *transport) Query() url.Values {
	return t.query
}

// SetWritable updates the writable state of the transport.
func (t *transport) SetWritable(writable bool) {
	t.writable.Store(writable)
}

// Writable returns whether the transport is currently able to send data.
func (t *transport) Writable() bool {
	return t.writable.Load()
}

// setReadyState updates the current state of the transport connection.
func (t *transport) setReadyState(readyState TransportState) {
	t.readyState.Store(&readyState)
}

// State returns the current state of the transport connection.
// Returns an empty string if no state is set.
func (t *transport) State() TransportState {
	if readyState := t.readyState.Load(); readyState != nil {
		return *readyState
	}
	return ""
}

// onError emits an error event with the specified reason and description.
func (t *transport) onError(reason string, description error, context context.Context) {
	t.Emit("error", NewTransportError(reason, description, context).Err())
}

// onOpen is called when the transport connection is successfully
// established. This updates the ready state and emits an open event.
func (t *transport) onOpen() {
	t.setReadyState(TransportStateOpen)
	t.SetWritable(true)
	t.Emit("open")
}

// onData processes one incoming frame. Frames that do not decode into a
// packet are dropped; a misbehaving hub must not take the connection down.
func (t *transport) onData(data []byte) {
	p, err := DecodePacket(data)
	if err != nil {
		transport_log.Debug("dropping malformed frame: %v", err)
		return
	}
	t.onPacket(p)
}

// onPacket hands a decoded packet to whoever listens.
func (t *transport) onPacket(data *Packet) {
	t.Emit("packet", data)
}

// onClose is called when the transport connection is closed. This updates
// the ready state and emits a close event with any error details.
func (t *transport) onClose(details error) {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.SetWritable(false)
	t.setReadyState(TransportStateClosed)
	t.Emit("close", details)
}

// createURI constructs a URL for the transport connection. This combines
// the schema, hostname, port, and path with any query parameters.
func (t *transport) createURI(schema string) *url.URL {
	uri := &url.URL{
		Scheme: schema,
		Host:   t._hostname() + t._port(),
		Path:   t.endpoint.Path,
	}
	if t.query != nil {
		uri.RawQuery = t.query.Encode()
	}
	return uri
}

// _hostname returns the formatted hostname for the transport.
// This handles IPv6 addresses by wrapping them in square brackets.
func (t *transport) _hostname() string {
	hostname := t.endpoint.Hostname
	if strings.Contains(hostname, ":") {
		return "[" + hostname + "]"
	}
	return hostname
}

// _port returns the formatted port string for the transport.
// This only includes the port if it's not the default port for the protocol.
func (t *transport) _port() string {
	port := t.endpoint.Port
	if port != "" && ((t.endpoint.Secure && port != "443") || (!t.endpoint.Secure && port != "80")) {
		return ":" + port
	}
	return ""
}

// wsScheme returns the WebSocket scheme matching the endpoint security.
func (t *transport) wsScheme() string {
	if t.endpoint.Secure {
		return "wss"
	}
	return "ws"
}

// httpScheme returns the HTTP scheme matching the endpoint security.
func (t *transport) httpScheme() string {
	if t.endpoint.Secure {
		return "https"
	}
	return "http"
}

// requestHeaders returns a copy of the configured handshake headers, never
// nil.
func (t *transport) requestHeaders() http.Header {
	headers := http.Header{}
	for name, values := range t.opts.Headers {
		for _, value := range values {
			headers.Add(name, value)
		}
	}
	return headers
}
