// Package transport provides the duplex event channels a delivery session
// is layered on.
//
// # Architecture
//
// The protocol only needs named events with JSON payloads, delivered in
// order per connection. The core abstraction is the Transport interface
// which all implementations satisfy:
//
//	type Transport interface {
//	    Emit(event string, payload any) error
//	    On(event string, handler Handler)
//	    Close() error
//	}
//
// Every implementation frames events with the same Envelope:
//
//	{"event": "send.success", "payload": "6f1c..."}
//
// # Transport Implementations
//
// In-memory pipe:
//
//	a, b := transport.Pipe()
//	// Connected pair; each end dispatches on its own goroutine
//
// WebSocket client:
//
//	ws, err := transport.Dial(ctx, "ws://127.0.0.1:5001/delivery")
//	session := delivery.NewSession(ws)
//	go ws.Serve()
//
// WebSocket server:
//
//	http.Handle("/delivery", transport.NewHandler(func(ws *transport.WebSocket) {
//	    session := delivery.NewSession(ws)
//	    session.OnReceiveSuccess(save)
//	}))
//
// # Ordering
//
// Inbound events of one connection are dispatched by a single goroutine,
// one at a time, in arrival order. Handler errors are logged and never stop
// the read loop. Emit is safe for concurrent use.
//
// # Frame Limits
//
// WebSocket readers reject frames above limits.MaxFrameSize.
package transport
