package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/opd-ai/delivery/eventbus"
	"github.com/opd-ai/delivery/file"
	"github.com/opd-ai/delivery/limits"
	"github.com/opd-ai/delivery/transport"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyConnecting is returned by Connect outside StateDisconnected.
	ErrAlreadyConnecting = errors.New("session already connecting or connected")

	// ErrUnknownTopic is returned by On for topics the session never publishes.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrEmit wraps transport failures while sending a file.
	ErrEmit = errors.New("transport emit failed")
)

// TransferError reports an inbound file that could not be accepted.
type TransferError struct {
	UID  string
	Name string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s (%s): %v", e.UID, e.Name, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Session is one endpoint's view of the delivery protocol on a single
// connection. It owns the connection's event bus and its transfer tables.
// Create one per connection with NewSession.
type Session struct {
	transport   transport.Transport
	bus         *eventbus.Bus
	maxFileSize int64
	retention   int

	mu        sync.Mutex
	state     State
	connected chan struct{}
	sending   map[string]*file.Packet
	receiving map[string]*file.Packet
	completed []string
}

// NewSession binds a session to t and registers its transport handlers.
// For transports with an explicit read loop, create the session before
// starting it.
func NewSession(t transport.Transport, opts ...Option) *Session {
	s := &Session{
		transport:   t,
		bus:         eventbus.New(),
		maxFileSize: limits.DefaultMaxFileSize,
		connected:   make(chan struct{}),
		sending:     make(map[string]*file.Packet),
		receiving:   make(map[string]*file.Packet),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Internal subscribers go first so application handlers cannot
	// prevent the acknowledgment or the emission.
	s.bus.Subscribe(topicFileLoad, s.handleFileLoad)
	s.bus.Subscribe(TopicReceiveSuccess, s.acknowledge)

	t.On(transport.EventConnecting, s.handleConnecting)
	t.On(transport.EventConnect, s.handleConnect)
	t.On(transport.EventSendStart, s.handleSendStart)
	t.On(transport.EventSendSuccess, s.handleSendSuccess)

	logrus.WithFields(logrus.Fields{
		"function":      "NewSession",
		"max_file_size": s.maxFileSize,
		"retention":     s.retention,
	}).Info("Delivery session created")

	return s
}

// Connect starts the handshake by emitting delivery.connecting.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrAlreadyConnecting, state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.transport.Emit(transport.EventConnecting, nil); err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"state":    StateConnecting,
	}).Info("Handshake initiated")

	return nil
}

// WaitConnected blocks until the handshake completes or ctx ends.
func (s *Session) WaitConnected(ctx context.Context) error {
	select {
	case <-s.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected returns a channel closed when the handshake completes.
func (s *Session) Connected() <-chan struct{} {
	return s.connected
}

// State returns the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send reads and encodes rec, offers it to the peer and returns its uid.
// The only blocking step is the file read, which honours ctx. The transfer
// stays pending until the peer acknowledges it.
//
// Local send.start subscribers run before the offer is emitted, so they
// always see a transfer before its acknowledgment. If one of them fails,
// or the read, encode or emit fails, nothing stays pending and Send
// returns an empty uid with the error.
func (s *Session) Send(ctx context.Context, rec file.Record) (string, error) {
	p, err := file.Load(ctx, rec, s.maxFileSize)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sending[p.UID] = p
	s.mu.Unlock()

	if err := s.bus.Publish(topicFileLoad, p); err != nil {
		s.mu.Lock()
		delete(s.sending, p.UID)
		s.mu.Unlock()
		return "", err
	}

	return p.UID, nil
}

// handleFileLoad announces an encoded packet locally, then puts it on the
// wire.
func (s *Session) handleFileLoad(payload any) error {
	p := payload.(*file.Packet)

	if err := s.bus.Publish(TopicSendStart, p); err != nil {
		return err
	}

	if err := s.transport.Emit(transport.EventSendStart, p.Batch()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "handleFileLoad",
			"uid":       p.UID,
			"file_name": p.Name,
			"error":     err.Error(),
		}).Error("Failed to emit file offer")
		return fmt.Errorf("%w: %w", ErrEmit, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "handleFileLoad",
		"uid":       p.UID,
		"file_name": p.Name,
		"file_size": p.Size,
		"is_text":   p.IsText,
	}).Info("File offered to peer")

	return nil
}

// acknowledge confirms a decoded inbound packet to the sender.
func (s *Session) acknowledge(payload any) error {
	p := payload.(*file.Packet)
	if err := s.transport.Emit(transport.EventSendSuccess, p.UID); err != nil {
		return fmt.Errorf("acknowledge %s: %w", p.UID, err)
	}
	return nil
}

func (s *Session) handleConnecting(json.RawMessage) error {
	if err := s.transport.Emit(transport.EventConnect, nil); err != nil {
		return fmt.Errorf("confirm handshake: %w", err)
	}

	if !s.markConnected("handleConnecting") {
		return nil
	}
	return s.bus.Publish(TopicConnect, s)
}

func (s *Session) handleConnect(json.RawMessage) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != StateConnecting {
		logrus.WithFields(logrus.Fields{
			"function": "handleConnect",
			"state":    state,
		}).Debug("Ignoring handshake confirmation outside connecting state")
		return nil
	}

	if !s.markConnected("handleConnect") {
		return nil
	}
	return s.bus.Publish(TopicConnect, s)
}

// markConnected moves the session to StateConnected and reports whether
// this call made the transition.
func (s *Session) markConnected(functionName string) bool {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return false
	}
	s.state = StateConnected
	close(s.connected)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": functionName,
		"state":    StateConnected,
	}).Info("Handshake completed")

	return true
}

func (s *Session) handleSendStart(payload json.RawMessage) error {
	var batch file.Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return s.rejectTransfer(file.Batch{}, fmt.Errorf("%w: %v", file.ErrDecode, err))
	}

	s.mu.Lock()
	_, duplicate := s.receiving[batch.UID]
	s.mu.Unlock()
	if duplicate && batch.UID != "" {
		logrus.WithFields(logrus.Fields{
			"function": "handleSendStart",
			"uid":      batch.UID,
		}).Debug("Duplicate file offer, acknowledging again")
		return s.transport.Emit(transport.EventSendSuccess, batch.UID)
	}

	if err := s.bus.Publish(TopicReceiveStart, batch.UID); err != nil {
		return err
	}

	p, err := file.FromBatch(batch, s.maxFileSize)
	if err != nil {
		return s.rejectTransfer(batch, err)
	}

	s.mu.Lock()
	s.receiving[p.UID] = p
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "handleSendStart",
		"uid":       p.UID,
		"file_name": p.Name,
		"file_size": len(p.Raw),
		"mime_type": p.MimeType,
	}).Info("File received")

	err = s.bus.Publish(TopicReceiveSuccess, p)
	s.retain(p.UID)
	return err
}

// rejectTransfer reports an inbound file that will not be acknowledged.
func (s *Session) rejectTransfer(batch file.Batch, cause error) error {
	terr := &TransferError{UID: batch.UID, Name: batch.Name, Err: cause}

	logrus.WithFields(logrus.Fields{
		"function":  "rejectTransfer",
		"uid":       batch.UID,
		"file_name": batch.Name,
		"error":     cause.Error(),
	}).Warn("Inbound file rejected")

	return s.bus.Publish(TopicReceiveError, terr)
}

// retain applies the receive retention policy after uid completed.
func (s *Session) retain(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed = append(s.completed, uid)
	for len(s.completed) > s.retention {
		delete(s.receiving, s.completed[0])
		s.completed[0] = ""
		s.completed = s.completed[1:]
	}
}

func (s *Session) handleSendSuccess(payload json.RawMessage) error {
	var uid string
	if err := json.Unmarshal(payload, &uid); err != nil {
		return fmt.Errorf("decode acknowledgment: %w", err)
	}

	s.mu.Lock()
	_, pending := s.sending[uid]
	s.mu.Unlock()

	if !pending {
		logrus.WithFields(logrus.Fields{
			"function": "handleSendSuccess",
			"uid":      uid,
		}).Warn("Acknowledgment for unknown transfer, dropping")
		return nil
	}

	err := s.bus.Publish(TopicSendSuccess, uid)

	s.mu.Lock()
	delete(s.sending, uid)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "handleSendSuccess",
		"uid":      uid,
	}).Info("File delivery acknowledged")

	return err
}

// Pending returns the uids of sent files not yet acknowledged, sorted.
func (s *Session) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	uids := make([]string, 0, len(s.sending))
	for uid := range s.sending {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

// Received returns a retained inbound packet.
func (s *Session) Received(uid string) (*file.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.receiving[uid]
	return p, ok
}

// On subscribes handler to one of the public topics. Payload types are
// documented on the Topic constants; the typed On* helpers avoid the
// assertion.
func (s *Session) On(topic string, handler eventbus.Handler) error {
	if !publicTopics[topic] {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	s.bus.Subscribe(topic, handler)
	return nil
}

// OnConnect registers a handler for handshake completion.
func (s *Session) OnConnect(fn func(*Session) error) {
	s.bus.Subscribe(TopicConnect, func(payload any) error {
		return fn(payload.(*Session))
	})
}

// OnReceiveStart registers a handler for incoming file offers.
func (s *Session) OnReceiveStart(fn func(uid string) error) {
	s.bus.Subscribe(TopicReceiveStart, func(payload any) error {
		return fn(payload.(string))
	})
}

// OnReceiveSuccess registers a handler for decoded incoming files.
func (s *Session) OnReceiveSuccess(fn func(*file.Packet) error) {
	s.bus.Subscribe(TopicReceiveSuccess, func(payload any) error {
		return fn(payload.(*file.Packet))
	})
}

// OnReceiveError registers a handler for rejected incoming files.
func (s *Session) OnReceiveError(fn func(*TransferError) error) {
	s.bus.Subscribe(TopicReceiveError, func(payload any) error {
		return fn(payload.(*TransferError))
	})
}

// OnSendStart registers a handler for files handed to the transport.
func (s *Session) OnSendStart(fn func(*file.Packet) error) {
	s.bus.Subscribe(TopicSendStart, func(payload any) error {
		return fn(payload.(*file.Packet))
	})
}

// OnSendSuccess registers a handler for acknowledged files.
func (s *Session) OnSendSuccess(fn func(uid string) error) {
	s.bus.Subscribe(TopicSendSuccess, func(payload any) error {
		return fn(payload.(string))
	})
}
