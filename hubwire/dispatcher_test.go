package hubwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherDeliversToAllHandlers(t *testing.T) {
	d := NewDispatcher()

	var got []string
	d.On(EventMessage, func(payload any) {
		got = append(got, "first")
	})
	d.On(EventMessage, func(payload any) {
		got = append(got, "second")
	})

	d.Dispatch(EventMessage, &MessagePayload{Content: "hi"})

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestDispatcherUnsubscribeClosure(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	off := d.On(EventTyping, func(any) { calls++ })

	d.Dispatch(EventTyping, nil)
	off()
	d.Dispatch(EventTyping, nil)
	off() // second call is a no-op

	assert.Equal(t, 1, calls)
	assert.Zero(t, d.HandlerCount(EventTyping))
}

func TestDispatcherUnsubscribeRemovesOnlyItsRegistration(t *testing.T) {
	d := NewDispatcher()

	first, second := 0, 0
	offFirst := d.On(EventMessage, func(any) { first++ })
	d.On(EventMessage, func(any) { second++ })

	offFirst()
	d.Dispatch(EventMessage, nil)

	assert.Zero(t, first)
	assert.Equal(t, 1, second)
}

func TestDispatcherOffWithHandlerRemovesByIdentity(t *testing.T) {
	d := NewDispatcher()

	kept, removed := 0, 0
	keptFn := Handler(func(any) { kept++ })
	removedFn := Handler(func(any) { removed++ })
	d.On(EventMessage, keptFn)
	d.On(EventMessage, removedFn)

	d.Off(EventMessage, removedFn)
	d.Dispatch(EventMessage, nil)

	assert.Equal(t, 1, kept)
	assert.Zero(t, removed)
	assert.Equal(t, 1, d.HandlerCount(EventMessage))
}

func TestDispatcherOffWithoutHandlersRemovesAll(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	d.On(EventMessage, func(any) { calls++ })
	d.On(EventMessage, func(any) { calls++ })

	d.Off(EventMessage)
	d.Dispatch(EventMessage, nil)

	assert.Zero(t, calls)
	assert.Zero(t, d.HandlerCount(EventMessage))
}

func TestDispatcherPanicDoesNotStarveSiblings(t *testing.T) {
	d := NewDispatcher()

	survived := false
	d.On(EventMessage, func(any) { panic("boom") })
	d.On(EventMessage, func(any) { survived = true })

	assert.NotPanics(t, func() {
		d.Dispatch(EventMessage, nil)
	})
	assert.True(t, survived)
}

func TestDispatcherHandlerUnsubscribingItselfMidDispatch(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	var off func()
	off = d.On(EventMessage, func(any) {
		calls++
		off()
	})

	d.Dispatch(EventMessage, nil)
	d.Dispatch(EventMessage, nil)

	assert.Equal(t, 1, calls)
}

func TestDispatcherPayloadReachesHandler(t *testing.T) {
	d := NewDispatcher()

	var got any
	d.On(EventMessageStatus, func(payload any) { got = payload })

	ack := &StatusPayload{ClientMessageID: "m1", Status: DeliveryDelivered}
	d.Dispatch(EventMessageStatus, ack)

	assert.Same(t, ack, got)
}
