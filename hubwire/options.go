package hubwire

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/zishang520/engine.io/v2/transports"
	"github.com/zishang520/engine.io/v2/types"
)

const (
	defaultDiscoveryPath = "/api/realtime/session"
	defaultRealtimePath  = "/realtime"
	defaultFallbackPort  = "8443"
	defaultMessageType   = "text"
)

// ClientOptions configures a Client. NewClient fills every unset field with
// its default, so the zero value plus an endpoint is enough to get going.
type ClientOptions struct {
	// GatewayURL is the base URL of the HTTP gateway used for endpoint
	// discovery, e.g. "https://app.example.com". When empty, discovery is
	// skipped and the client connects straight to the endpoint described
	// by Hostname, Port, Secure and Path.
	GatewayURL string

	// DiscoveryPath is the gateway path queried for the realtime endpoint.
	DiscoveryPath string

	// Token is the static bearer credential sent with the discovery
	// request. TokenProvider takes precedence when both are set.
	Token string

	// TokenProvider supplies a fresh bearer credential for each discovery
	// request. Use it when credentials expire.
	TokenProvider func(ctx context.Context) (string, error)

	// VisitorID identifies this client in join and presence payloads. A
	// random id is generated when empty.
	VisitorID string

	// Hostname, Port, Secure and Path describe the fallback realtime
	// endpoint used when discovery is disabled or unavailable. Hostname
	// defaults to the gateway host, Secure to the gateway scheme.
	Hostname string
	Port     string
	Secure   bool
	Path     string

	// Query is appended to every transport URI.
	Query url.Values

	// Headers is sent on transport handshakes and polling requests.
	Headers http.Header

	// Transports is the set of enabled transport names; the discovery
	// response may prefer one of them. Defaults to websocket and polling.
	Transports *types.Set[string]

	// TLSClientConfig is used by the WebSocket and WebTransport dialers.
	TLSClientConfig *tls.Config

	// EnableCompression negotiates permessage-deflate on the WebSocket
	// transport.
	EnableCompression bool

	// HeartbeatInterval is the cadence of application-level pings.
	HeartbeatInterval time.Duration

	// DeliveryTimeout is how long a sent message may stay unacknowledged
	// before it is retransmitted.
	DeliveryTimeout time.Duration

	// MaxSendAttempts caps transmissions per tracked message, the first
	// send included.
	MaxSendAttempts int

	// DeliveryGracePeriod is how long an acknowledged message is retained
	// so a late delivered-to-read upgrade still lands.
	DeliveryGracePeriod time.Duration

	// ReconnectionAttempts caps one reconnection cycle. 0 retries forever.
	ReconnectionAttempts int

	// ReconnectionDelay and ReconnectionDelayMax bound the exponential
	// backoff between attempts; RandomizationFactor jitters it.
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration
	RandomizationFactor  float64

	// DialTimeout bounds a single transport handshake.
	DialTimeout time.Duration

	// RequestTimeout bounds the discovery request.
	RequestTimeout time.Duration

	// PollTimeout bounds one long-poll round trip and must exceed the
	// hub's poll hold time.
	PollTimeout time.Duration

	// WriteTimeout bounds a single WebSocket frame write.
	WriteTimeout time.Duration

	// MessageType is stamped on outbound messages.
	MessageType string

	// Scheduler supplies timers. Tests inject a fake clock here.
	Scheduler Scheduler
}

// DefaultClientOptions returns a ClientOptions with every field set to its
// default.
func DefaultClientOptions() *ClientOptions {
	return new(ClientOptions).withDefaults()
}

// withDefaults copies the options and fills unset fields. The receiver is
// never mutated.
func (o *ClientOptions) withDefaults() *ClientOptions {
	opts := &ClientOptions{}
	if o != nil {
		*opts = *o
	}
	if opts.DiscoveryPath == "" {
		opts.DiscoveryPath = defaultDiscoveryPath
	}
	if opts.Path == "" {
		opts.Path = defaultRealtimePath
	}
	if opts.VisitorID == "" {
		opts.VisitorID = uuid.NewString()
	}
	if opts.Transports == nil {
		opts.Transports = types.NewSet[string](transports.WEBSOCKET, transports.POLLING)
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 25 * time.Second
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	if opts.MaxSendAttempts <= 0 {
		opts.MaxSendAttempts = 3
	}
	if opts.DeliveryGracePeriod <= 0 {
		opts.DeliveryGracePeriod = 30 * time.Second
	}
	if opts.ReconnectionDelay <= 0 {
		opts.ReconnectionDelay = time.Second
	}
	if opts.ReconnectionDelayMax <= 0 {
		opts.ReconnectionDelayMax = 30 * time.Second
	}
	if opts.RandomizationFactor <= 0 {
		opts.RandomizationFactor = 0.5
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 75 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MessageType == "" {
		opts.MessageType = defaultMessageType
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewScheduler()
	}
	return opts
}
