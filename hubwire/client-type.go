package hubwire

// ClientState is the lifecycle state of a Client.
//
// State transitions:
//
//	disconnected -> connecting -> connected -> disconnected -> ...
//	any state    -> closed (terminal)
//
// Reconnection cycles move between disconnected and connecting without user
// involvement; closed is only entered through Close.
type ClientState string

const (
	ClientStateDisconnected ClientState = "disconnected"
	ClientStateConnecting   ClientState = "connecting"
	ClientStateConnected    ClientState = "connected"
	ClientStateClosed       ClientState = "closed"
)

// TransportState is the lifecycle state of a single transport connection.
// A transport never leaves the closed state; reconnection means a new
// transport instance.
type TransportState string

const (
	TransportStateOpening TransportState = "opening"
	TransportStateOpen    TransportState = "open"
	TransportStateClosed  TransportState = "closed"
)
