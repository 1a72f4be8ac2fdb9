package transports

import (
	"github.com/hubwire/hubwire-client-go/hubwire"
)

type (
	TransportCtor = hubwire.TransportCtor

	WebSocketBuilder    = hubwire.WebSocketBuilder
	WebTransportBuilder = hubwire.WebTransportBuilder
	PollingBuilder      = hubwire.PollingBuilder
)

var (
	Polling      TransportCtor = &PollingBuilder{}
	WebSocket    TransportCtor = &WebSocketBuilder{}
	WebTransport TransportCtor = &WebTransportBuilder{}
)
