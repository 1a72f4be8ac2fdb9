package hubwire

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClientClosed is returned by every operation on a Client after
	// Close.
	ErrClientClosed = errors.New("hubwire: client is closed")

	// ErrNotConnected is returned when an emission needs an open transport
	// and there is none. Callers that can queue treat it as a signal, not
	// a failure.
	ErrNotConnected = errors.New("hubwire: not connected")

	// ErrReconnectExhausted is dispatched on the "error" event when the
	// configured reconnection budget runs out. Connect starts a fresh
	// cycle.
	ErrReconnectExhausted = errors.New("hubwire: reconnect attempts exhausted")

	// ErrNoEndpoint is returned when neither discovery nor the static
	// options yield a realtime host to connect to.
	ErrNoEndpoint = errors.New("hubwire: no realtime endpoint configured")
)

// Error is the structured error type used for transport and protocol level
// failures. It carries the underlying cause and optional request context
// alongside the human-readable message.
type Error struct {
	// Message is a human-readable description of the error.
	Message string

	// Description contains the underlying error, when there is one.
	Description error

	// Type identifies the category of the error (e.g., "TransportError").
	Type string

	// Context carries request/connection context for errors raised while
	// a context was in scope.
	Context context.Context

	errs []error
}

// Err returns the error interface implementation.
func (e *Error) Err() error {
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying errors for error chain inspection.
func (e *Error) Unwrap() []error {
	return e.errs
}

// NewTransportError creates a transport-level Error with the given reason
// and underlying cause.
func NewTransportError(reason string, description error, context context.Context) *Error {
	err := &Error{
		Message:     reason,
		Description: description,
		Type:        "TransportError",
		Context:     context,
	}
	if description != nil {
		err.errs = []error{description}
	}
	return err
}

// DeliveryError is a server-reported failure for a tracked message: the hub
// received the message and explicitly rejected it.
type DeliveryError struct {
	MessageID string
	Reason    string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("hubwire: delivery of message %q failed: %s", e.MessageID, e.Reason)
}

// DeliveryTimeoutError reports that a tracked message stayed unacknowledged
// through its full retry budget.
type DeliveryTimeoutError struct {
	MessageID string
	Attempts  int
}

func (e *DeliveryTimeoutError) Error() string {
	return fmt.Sprintf("hubwire: message %q unacknowledged after %d attempts", e.MessageID, e.Attempts)
}
