package transport

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// registry holds the inbound handlers of one transport end.
type registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]Handler)}
}

// On implements Transport.On.
func (r *registry) On(event string, handler Handler) {
	if handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], handler)
}

// dispatch runs every handler of env.Event in order. Handler errors are
// logged and do not stop later handlers or the caller's read loop.
func (r *registry) dispatch(env *Envelope, source string) {
	r.mu.RLock()
	handlers := r.handlers[env.Event]
	r.mu.RUnlock()

	if len(handlers) == 0 {
		logrus.WithFields(logrus.Fields{
			"function":  "dispatch",
			"transport": source,
			"event":     env.Event,
		}).Debug("No handler registered for event, dropping")
		return
	}

	for _, handler := range handlers {
		if err := handler(env.Payload); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "dispatch",
				"transport": source,
				"event":     env.Event,
				"error":     err.Error(),
			}).Error("Event handler failed")
		}
	}
}

// dispatchFrame parses a raw frame and dispatches it.
func (r *registry) dispatchFrame(frame []byte, source string) {
	env, err := ParseEnvelope(frame)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "dispatchFrame",
			"transport":  source,
			"frame_size": len(frame),
			"error":      err.Error(),
		}).Warn("Dropping malformed frame")
		return
	}
	r.dispatch(env, source)
}
