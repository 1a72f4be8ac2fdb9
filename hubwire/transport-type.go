package hubwire

import (
	"net/url"

	"github.com/zishang520/engine.io/v2/transports"
	"github.com/zishang520/engine.io/v2/types"
)

// Transport defines the interface shared by all realtime transports.
// Concrete implementations dial the hub, exchange event packets, and report
// their lifecycle through emitter events:
//
//	"open"          - the transport is connected and writable
//	"packet" *Packet - a decoded inbound packet
//	"error" error    - a transport-level failure
//	"close" error    - the transport is gone, with the cause when known
type Transport interface {
	// Extends EventEmitter for event-based communication
	types.EventEmitter

	// Name returns the transport identifier used in discovery hints.
	Name() string

	// Open starts the connection attempt. Progress is reported through
	// the emitter; Open itself never blocks on the network.
	Open()

	// Close tears the connection down. Safe to call in any state and more
	// than once.
	Close()

	// Send writes packets in order. Packets sent while the transport is
	// not open are discarded.
	Send(...*Packet)

	// State returns the current lifecycle state.
	State() TransportState

	// Writable reports whether Send currently reaches the wire.
	Writable() bool

	// Query returns the query parameters the transport dials with.
	Query() url.Values
}

// TransportCtor builds transports by name. The client picks one per
// connection attempt, honoring the discovery hint when it names an enabled
// transport.
type TransportCtor interface {
	New(e *Endpoint, opts *ClientOptions) Transport
	Name() string
}

// WebSocketBuilder implements the transport builder pattern for WebSocket
// connections.
type WebSocketBuilder struct{}

// New creates a new WebSocket transport instance.
func (*WebSocketBuilder) New(e *Endpoint, opts *ClientOptions) Transport {
	return NewWebSocket(e, opts)
}

// Name returns the identifier for the WebSocket transport type.
func (*WebSocketBuilder) Name() string {
	return transports.WEBSOCKET
}

// WebTransportBuilder implements the transport builder pattern for
// WebTransport connections.
type WebTransportBuilder struct{}

// New creates a new WebTransport instance.
func (*WebTransportBuilder) New(e *Endpoint, opts *ClientOptions) Transport {
	return NewWebTransport(e, opts)
}

// Name returns the identifier for the WebTransport transport type.
func (*WebTransportBuilder) Name() string {
	return transports.WEBTRANSPORT
}

// PollingBuilder implements the transport builder pattern for HTTP
// long-polling connections.
type PollingBuilder struct{}

// New creates a new Polling transport instance.
func (*PollingBuilder) New(e *Endpoint, opts *ClientOptions) Transport {
	return NewPolling(e, opts)
}

// Name returns the identifier for the Polling transport type.
func (*PollingBuilder) Name() string {
	return transports.POLLING
}
