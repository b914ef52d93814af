package delivery

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/opd-ai/delivery/file"
	"github.com/opd-ai/delivery/transport"
	"github.com/stretchr/testify/require"
)

// mockTransport implements transport.Transport for testing. Emits are
// recorded; inbound events are injected with simulateReceive and handled
// synchronously on the test goroutine.
type mockTransport struct {
	mu       sync.Mutex
	emitted  []emittedEvent
	handlers map[string][]transport.Handler
	emitErr  error
}

type emittedEvent struct {
	event   string
	payload json.RawMessage
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		handlers: make(map[string][]transport.Handler),
	}
}

func (m *mockTransport) Emit(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.emitErr != nil {
		return m.emitErr
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = data
	}
	m.emitted = append(m.emitted, emittedEvent{event: event, payload: raw})
	return nil
}

func (m *mockTransport) On(event string, handler transport.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

func (m *mockTransport) Close() error {
	return nil
}

func (m *mockTransport) simulateReceive(t *testing.T, event string, payload any) error {
	t.Helper()

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}
	return m.simulateRaw(event, raw)
}

func (m *mockTransport) simulateRaw(event string, raw json.RawMessage) error {
	m.mu.Lock()
	handlers := m.handlers[event]
	m.mu.Unlock()

	var errs []error
	for _, h := range handlers {
		if err := h(raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *mockTransport) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.emitted))
	for i, e := range m.emitted {
		names[i] = e.event
	}
	return names
}

func (m *mockTransport) lastEmitted(t *testing.T) emittedEvent {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.emitted, "nothing emitted")
	return m.emitted[len(m.emitted)-1]
}

func (m *mockTransport) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitted = nil
}

func (e emittedEvent) batch(t *testing.T) file.Batch {
	t.Helper()
	var b file.Batch
	require.NoError(t, json.Unmarshal(e.payload, &b))
	return b
}

func (e emittedEvent) uid(t *testing.T) string {
	t.Helper()
	var uid string
	require.NoError(t, json.Unmarshal(e.payload, &uid))
	return uid
}
