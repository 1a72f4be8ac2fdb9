package hubwire

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPollHub is a minimal long-poll peer: GET returns the next queued
// batch, or an empty one after a short hold; POST accepts a batch.
type testPollHub struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	outbox   [][]*Packet
	received []*Packet
	failGets bool

	postCh chan *Packet
}

func newTestPollHub(t *testing.T) *testPollHub {
	h := &testPollHub{t: t, postCh: make(chan *Packet, 16)}
	h.server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.server.Close)
	return h
}

func (h *testPollHub) handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.mu.Lock()
		fail := h.failGets
		var batch []*Packet
		if len(h.outbox) > 0 {
			batch = h.outbox[0]
			h.outbox = h.outbox[1:]
		}
		h.mu.Unlock()
		if fail {
			http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
			return
		}
		if batch == nil {
			// Idle poll: hold briefly, then release an empty batch.
			time.Sleep(20 * time.Millisecond)
			batch = []*Packet{}
		}
		data, err := jsonCodec.Marshal(batch)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var batch []*Packet
		if err := jsonCodec.Unmarshal(body, &batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.mu.Lock()
		h.received = append(h.received, batch...)
		h.mu.Unlock()
		for _, p := range batch {
			select {
			case h.postCh <- p:
			default:
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *testPollHub) queue(packets ...*Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outbox = append(h.outbox, packets)
}

func (h *testPollHub) setFailGets(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failGets = fail
}

func TestPollingReceivesPackets(t *testing.T) {
	hub := newTestPollHub(t)
	hub.queue(
		&Packet{Event: EventUserJoined, Data: []byte(`{"room_id":"r1","visitor_id":"v2"}`)},
		&Packet{Event: EventTyping, Data: []byte(`{"room_id":"r1","typing":true}`)},
	)

	tr := NewPolling(endpointForServer(t, hub.server), DefaultClientOptions())
	opened := make(chan struct{})
	packets := make(chan *Packet, 4)
	tr.On("open", func(...any) { close(opened) })
	tr.On("packet", func(args ...any) {
		if p, ok := args[0].(*Packet); ok {
			select {
			case packets <- p:
			default:
			}
		}
	})

	tr.Open()
	t.Cleanup(tr.Close)

	waitSignal(t, opened, "open")
	assert.Equal(t, TransportStateOpen, tr.State())
	assert.True(t, tr.Writable())

	for _, want := range []EventName{EventUserJoined, EventTyping} {
		select {
		case p := <-packets:
			assert.Equal(t, want, p.Event)
		case <-time.After(2 * time.Second):
			require.FailNowf(t, "timeout", `waiting for "%s" packet`, want)
		}
	}
}

func TestPollingSendPostsBatch(t *testing.T) {
	hub := newTestPollHub(t)
	tr := NewPolling(endpointForServer(t, hub.server), DefaultClientOptions())
	opened := make(chan struct{})
	tr.On("open", func(...any) { close(opened) })

	tr.Open()
	t.Cleanup(tr.Close)
	waitSignal(t, opened, "open")

	p, err := NewPacket(EventTyping, &TypingPayload{RoomID: "r1", Typing: true})
	require.NoError(t, err)
	tr.Send(p)

	select {
	case got := <-hub.postCh:
		assert.Equal(t, EventTyping, got.Event)
		var typing TypingPayload
		require.NoError(t, jsonCodec.Unmarshal(got.Data, &typing))
		assert.Equal(t, "r1", typing.RoomID)
		assert.True(t, typing.Typing)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for POST")
	}
}

func TestPollingServerErrorClosesTransport(t *testing.T) {
	hub := newTestPollHub(t)
	hub.setFailGets(true)

	tr := NewPolling(endpointForServer(t, hub.server), DefaultClientOptions())
	errs := make(chan error, 1)
	closed := make(chan struct{})
	tr.On("error", func(args ...any) {
		if err, ok := args[0].(error); ok {
			select {
			case errs <- err:
			default:
			}
		}
	})
	tr.On("close", func(...any) { close(closed) })

	tr.Open()
	t.Cleanup(tr.Close)

	waitSignal(t, closed, "close")
	assert.Equal(t, TransportStateClosed, tr.State())

	select {
	case err := <-errs:
		var te *Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "TransportError", te.Type)
		assert.EqualError(t, err, "polling request rejected")
	case <-time.After(time.Second):
		require.FailNow(t, "error event never fired")
	}
}

func TestPollingCloseStopsLoop(t *testing.T) {
	hub := newTestPollHub(t)
	tr := NewPolling(endpointForServer(t, hub.server), DefaultClientOptions())
	opened := make(chan struct{})
	closed := make(chan struct{})
	tr.On("open", func(...any) { close(opened) })
	tr.On("close", func(...any) { close(closed) })

	tr.Open()
	waitSignal(t, opened, "open")

	tr.Close()
	waitSignal(t, closed, "close")
	assert.Equal(t, TransportStateClosed, tr.State())
	assert.False(t, tr.Writable())

	// Sends after close are discarded without reaching the wire.
	p, err := NewPacket(EventTyping, &TypingPayload{RoomID: "r1", Typing: true})
	require.NoError(t, err)
	assert.NotPanics(t, func() { tr.Send(p) })
	select {
	case <-hub.postCh:
		require.FailNow(t, "packet posted after close")
	default:
	}

	assert.NotPanics(t, tr.Close)
}
