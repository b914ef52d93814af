package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope indicates a frame that is not a valid event envelope.
var ErrMalformedEnvelope = errors.New("malformed event envelope")

// Envelope is the frame format shared by every transport: a JSON object
// naming the event and carrying its payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload for event. A nil payload is omitted.
func NewEnvelope(event string, payload any) (*Envelope, error) {
	if event == "" {
		return nil, fmt.Errorf("%w: empty event name", ErrMalformedEnvelope)
	}

	env := &Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Payload = data
	}
	return env, nil
}

// Marshal serializes the envelope into a frame.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope deserializes a frame.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedEnvelope)
	}
	// "payload": null carries no payload
	if string(env.Payload) == "null" {
		env.Payload = nil
	}
	return &env, nil
}

// encodeFrame builds the frame bytes for an event.
func encodeFrame(event string, payload any) ([]byte, error) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return nil, err
	}
	return env.Marshal()
}
