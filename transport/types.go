package transport

import (
	"encoding/json"
	"errors"
)

// ErrClosed is returned when emitting on a closed transport.
var ErrClosed = errors.New("transport closed")

// Handler processes the JSON payload of an inbound event. A nil payload
// means the event carried none.
type Handler func(payload json.RawMessage) error

// Transport defines the duplex event channel a delivery session is layered
// on. Implementations deliver inbound events to handlers one at a time, in
// arrival order, so handlers of one connection never run concurrently.
type Transport interface {
	// Emit sends a named event with a JSON-encodable payload to the peer.
	// A nil payload sends the event without one.
	Emit(event string, payload any) error

	// On registers a handler for an inbound event. Handlers of the same
	// event run in registration order.
	On(event string, handler Handler)

	// Close shuts down the transport.
	Close() error
}
