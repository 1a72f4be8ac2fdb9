package hubwire

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zishang520/engine.io/v2/transports"
	"resty.dev/v3"
)

// polling is the HTTP long-polling transport. A GET loop holds a request
// open until the hub has packets or its hold time expires; sends go out as
// separate POSTs carrying a packet batch.
type polling struct {
	transport

	mu     sync.Mutex // serializes outbound POSTs
	rest   *resty.Client
	ctx    context.Context
	cancel context.CancelFunc

	// released latches the HTTP client teardown, whichever of the poll
	// loop or an explicit Close gets there first.
	released atomic.Bool
}

// NewPolling creates a long-polling transport for the given endpoint.
func NewPolling(e *Endpoint, opts *ClientOptions) Transport {
	t := &polling{}
	t.construct(e, opts)
	t.ctx, t.cancel = context.WithCancel(context.Background())
	// The poll timeout bounds both channels; it must outlast the hub's
	// poll hold time or every idle poll turns into an error.
	t.rest = resty.New().SetTimeout(opts.PollTimeout)
	return t
}

// Name returns the identifier for the Polling transport type.
func (t *polling) Name() string {
	return transports.POLLING
}

// Open starts the poll loop. Polling has no handshake of its own: the POST
// channel works from the first request, so the transport reports open as
// soon as the loop starts and lets the first GET surface any failure.
func (t *polling) Open() {
	go func() {
		t.onOpen()
		t.pollLoop()
	}()
}

func (t *polling) pollLoop() {
	uri := t.createURI(t.httpScheme()).String()
	transport_log.Debug("polling %s", uri)

	for t.State() == TransportStateOpen {
		var packets []*Packet
		res, err := t.request().SetResult(&packets).Get(uri)
		if t.ctx.Err() != nil {
			return
		}
		if err != nil {
			t.onError("polling request failed", err, t.ctx)
			t.terminate(err)
			return
		}
		if !res.IsSuccess() {
			err := fmt.Errorf("polling returned status %d", res.StatusCode())
			t.onError("polling request rejected", err, t.ctx)
			t.terminate(err)
			return
		}
		for _, p := range packets {
			t.onPacket(p)
		}
	}
}

// Send posts packets as one batch. Batches never interleave; the hub sees
// sends in call order.
func (t *polling) Send(packets ...*Packet) {
	if t.State() != TransportStateOpen {
		transport_log.Debug("transport is not open, discarding packets")
		return
	}
	uri := t.createURI(t.httpScheme()).String()

	t.mu.Lock()
	res, err := t.request().SetBody(packets).Post(uri)
	if err == nil && !res.IsSuccess() {
		err = fmt.Errorf("polling write returned status %d", res.StatusCode())
	}
	t.mu.Unlock()

	if err != nil && t.ctx.Err() == nil {
		t.onError("polling write failed", err, t.ctx)
		t.Close()
	}
}

func (t *polling) request() *resty.Request {
	req := t.rest.R().SetContext(t.ctx)
	for name, values := range t.opts.Headers {
		for _, value := range values {
			req.SetHeader(name, value)
		}
	}
	return req
}

// Close stops the poll loop and releases the HTTP client.
func (t *polling) Close() {
	t.terminate(nil)
}

// terminate ends the transport: the poll context is canceled, the close
// event fires (at most once, via the base latch) and the HTTP client is
// released exactly once.
func (t *polling) terminate(reason error) {
	t.cancel()
	t.onClose(reason)
	if t.released.CompareAndSwap(false, true) {
		t.rest.Close()
	}
}
