package hubwire

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"
	"github.com/zishang520/engine.io/v2/transports"
)

// maxFrameSize caps a single newline-delimited frame on the WebTransport
// stream.
const maxFrameSize = 1 << 20

// webTransport carries packets over a single bidirectional WebTransport
// stream as newline-delimited JSON frames.
type webTransport struct {
	transport

	mu      sync.Mutex // guards session, stream and writes
	session *webtransport.Session
	stream  io.ReadWriteCloser
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWebTransport creates a WebTransport transport for the given endpoint.
func NewWebTransport(e *Endpoint, opts *ClientOptions) Transport {
	t := &webTransport{}
	t.construct(e, opts)
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// Name returns the identifier for the WebTransport transport type.
func (t *webTransport) Name() string {
	return transports.WEBTRANSPORT
}

// Open starts the session handshake. The result arrives as an "open" or
// "error"+"close" event.
func (t *webTransport) Open() {
	go t.dial()
}

func (t *webTransport) dial() {
	uri := t.createURI("https").String()
	transport_log.Debug("webtransport dialing %s", uri)

	dialer := &webtransport.Dialer{
		TLSClientConfig: t.opts.TLSClientConfig,
		QUICConfig: &quic.Config{
			EnableDatagrams: true,
			KeepAlivePeriod: t.opts.HeartbeatInterval,
		},
	}
	ctx, cancel := context.WithTimeout(t.ctx, t.opts.DialTimeout)
	defer cancel()

	_, session, err := dialer.Dial(ctx, uri, t.requestHeaders())
	if err != nil {
		t.onError("webtransport dial failed", err, t.ctx)
		t.onClose(err)
		return
	}
	stream, err := session.OpenStreamSync(ctx)
	if err != nil {
		session.CloseWithError(0, "stream open failed")
		t.onError("webtransport stream open failed", err, t.ctx)
		t.onClose(err)
		return
	}

	t.mu.Lock()
	t.session = session
	t.stream = stream
	t.mu.Unlock()

	t.onOpen()
	t.readLoop(stream)
}

func (t *webTransport) readLoop(stream io.Reader) {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer on the next Scan.
		data := make([]byte, len(line))
		copy(data, line)
		t.onData(data)
	}
	err := scanner.Err()
	if err != nil && t.ctx.Err() == nil {
		t.onError("webtransport read failed", err, t.ctx)
	}
	t.onClose(err)
}

// Send writes packets as newline-delimited frames, in order.
func (t *webTransport) Send(packets ...*Packet) {
	if t.State() != TransportStateOpen {
		transport_log.Debug("transport is not open, discarding packets")
		return
	}

	t.mu.Lock()
	stream := t.stream
	var writeErr error
	if stream != nil {
		for _, p := range packets {
			data, err := EncodePacket(p)
			if err != nil {
				transport_log.Debug("skipping unencodable packet %q: %v", p.Event, err)
				continue
			}
			if _, err := stream.Write(append(data, '\n')); err != nil {
				writeErr = err
				break
			}
		}
	}
	t.mu.Unlock()

	if writeErr != nil {
		t.onError("webtransport write failed", writeErr, t.ctx)
		t.Close()
	}
}

// Close shuts the stream and the session down.
func (t *webTransport) Close() {
	t.cancel()

	t.mu.Lock()
	stream, session := t.stream, t.session
	t.stream, t.session = nil, nil
	t.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	if session != nil {
		session.CloseWithError(0, "client closed")
	}
	t.onClose(nil)
}
