package transport

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// PipeEnd is one side of an in-memory transport pair. Frames emitted on one
// end are queued on the other and dispatched by that end's own goroutine,
// in order. Emit never blocks on the peer's handlers.
type PipeEnd struct {
	*registry

	name string
	peer *PipeEnd

	mu     sync.Mutex
	queue  [][]byte
	signal chan struct{}
	done   chan struct{}
	closed bool
}

// Pipe returns two connected transport ends. Both must be closed by the
// caller to stop their dispatch goroutines.
func Pipe() (*PipeEnd, *PipeEnd) {
	a := newPipeEnd("pipe-a")
	b := newPipeEnd("pipe-b")
	a.peer, b.peer = b, a

	a.start()
	b.start()

	logrus.WithFields(logrus.Fields{
		"function": "Pipe",
	}).Debug("In-memory transport pair created")

	return a, b
}

func newPipeEnd(name string) *PipeEnd {
	return &PipeEnd{
		registry: newRegistry(),
		name:     name,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Emit encodes the event and queues it on the peer.
func (p *PipeEnd) Emit(event string, payload any) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	return p.peer.enqueue(frame)
}

// Close stops this end's dispatch goroutine once the frame in flight is
// handled. It does not wait for that, so handlers may call it. Frames
// still queued are dropped and the peer's later emits fail.
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.queue = nil
	close(p.done)
	p.mu.Unlock()
	return nil
}

// Done is closed when the end is closed.
func (p *PipeEnd) Done() <-chan struct{} {
	return p.done
}

func (p *PipeEnd) enqueue(frame []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue = append(p.queue, frame)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
	return nil
}

func (p *PipeEnd) start() {
	go p.loop()
}

func (p *PipeEnd) loop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.signal:
		}

		for {
			frame, ok := p.next()
			if !ok {
				break
			}
			p.dispatchFrame(frame, p.name)
		}
	}
}

func (p *PipeEnd) next() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.queue) == 0 {
		return nil, false
	}
	frame := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return frame, true
}
