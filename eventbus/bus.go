// Package eventbus provides an ordered, synchronous publish/subscribe
// dispatcher for a single delivery session.
//
// Handlers registered for a topic run in registration order on the
// publishing goroutine. A handler that returns an error aborts the rest of
// that publish and the error is returned to the publisher. The handler list
// is snapshotted before dispatch and no lock is held while handlers run, so
// handlers may publish or subscribe themselves; a subscription added during
// a publish is first invoked by the next publish of that topic.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler processes a published payload.
type Handler func(payload any) error

// Bus is a process-local topic dispatcher. The zero value is not usable;
// create buses with New.
type Bus struct {
	mu       sync.RWMutex
	channels map[string][]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{channels: make(map[string][]Handler)}
}

// Subscribe appends handler to the topic's handler list.
func (b *Bus) Subscribe(topic string, handler Handler) {
	if handler == nil {
		return
	}

	b.mu.Lock()
	b.channels[topic] = append(b.channels[topic], handler)
	count := len(b.channels[topic])
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Subscribe",
		"topic":    topic,
		"handlers": count,
	}).Debug("Handler subscribed")
}

// Publish invokes every handler of topic with payload, in registration
// order. It returns nil when the topic has no handlers. The first handler
// error stops the dispatch and is returned wrapped with the topic name.
func (b *Bus) Publish(topic string, payload any) error {
	b.mu.RLock()
	handlers := b.channels[topic]
	b.mu.RUnlock()

	// Subscribe only ever appends, so the slice header read above is a
	// stable snapshot even if handlers subscribe during dispatch.
	for i, handler := range handlers {
		if err := handler(payload); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Publish",
				"topic":    topic,
				"handler":  i,
				"skipped":  len(handlers) - i - 1,
				"error":    err.Error(),
			}).Warn("Handler failed, aborting publish")
			return fmt.Errorf("publish %q: %w", topic, err)
		}
	}

	return nil
}

// HandlerCount returns the number of handlers registered for topic.
func (b *Bus) HandlerCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[topic])
}

// Topics returns the topics that have at least one handler.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.channels))
	for topic, handlers := range b.channels {
		if len(handlers) > 0 {
			topics = append(topics, topic)
		}
	}
	return topics
}
