// Package delivery implements a bidirectional file hand-off protocol on top
// of a duplex, event-based connection.
//
// Either endpoint hands a file to its Session; the file is encoded into a
// single send.start event, decoded by the peer's Session and acknowledged
// with send.success. A two-message handshake lets hosts wait until the peer
// is listening before sending.
//
// # Getting Started
//
// Create one Session per connection and subscribe to the topics you need:
//
//	ws, err := transport.Dial(ctx, "ws://127.0.0.1:5001/delivery")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	session := delivery.NewSession(ws)
//	go ws.Serve()
//
//	session.OnConnect(func(s *delivery.Session) error {
//	    _, err := s.Send(ctx, file.Record{Path: "./sample-image.jpg"})
//	    return err
//	})
//	session.OnSendSuccess(func(uid string) error {
//	    log.Printf("file %s delivered", uid)
//	    return nil
//	})
//
//	if err := session.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//
// On the receiving side:
//
//	session.OnReceiveSuccess(func(p *file.Packet) error {
//	    _, err := p.Save("./downloads")
//	    return err
//	})
//
// # Handshake
//
// The initiator calls Connect, which emits delivery.connecting and moves to
// StateConnecting. The responder replies with delivery.connect and considers
// itself connected immediately; the initiator becomes connected when that
// reply arrives. Both publish TopicConnect exactly once.
//
// # Topics
//
//   - TopicConnect        handshake completed (*Session)
//   - TopicReceiveStart   peer offers a file (uid string)
//   - TopicReceiveSuccess file decoded (*file.Packet)
//   - TopicReceiveError   file rejected (*TransferError)
//   - TopicSendStart      file about to be emitted (*file.Packet)
//   - TopicSendSuccess    peer acknowledged a file (uid string)
//
// Handlers run synchronously in registration order. A handler returning an
// error stops the remaining handlers of that publish; do not fail
// TopicReceiveStart handlers for files you still want to receive.
//
// # Transfer Tables
//
// Sent files stay in the session until acknowledged (see Pending). There is
// no timeout or cancellation for an unacknowledged send. Received packets
// are dropped after TopicReceiveSuccess unless WithReceiveRetention keeps
// the most recent ones for Received lookups and duplicate suppression.
//
// # Limits
//
// Files are buffered whole in memory and sent as one event. The default
// limit is limits.DefaultMaxFileSize; WithMaxFileSize raises it up to
// limits.MaxFileSize.
//
// # Thread Safety
//
// Inbound events are handled one at a time by the transport's dispatch
// goroutine. Send, Connect and the accessors may be called from any
// goroutine, including from inside handlers.
package delivery
