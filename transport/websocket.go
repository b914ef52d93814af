package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/delivery/limits"
	"github.com/sirupsen/logrus"
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 30 * time.Second

// DefaultHandshakeTimeout bounds the WebSocket opening handshake of Dial.
const DefaultHandshakeTimeout = 10 * time.Second

// ErrFrameTooLarge is returned by Emit for a frame the peer's read limit
// would reject. The connection stays usable.
var ErrFrameTooLarge = errors.New("frame exceeds transport limit")

// WebSocket carries event envelopes as text frames over a gorilla/websocket
// connection. Writes are serialized; reads happen on the goroutine running
// Serve, which dispatches events one at a time.
type WebSocket struct {
	*registry

	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	maxFrameSize int64

	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocket wraps an established connection. Register handlers with On,
// then call Serve to start reading.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	conn.SetReadLimit(limits.MaxFrameSize)

	return &WebSocket{
		registry:     newRegistry(),
		conn:         conn,
		writeTimeout: DefaultWriteTimeout,
		maxFrameSize: limits.MaxFrameSize,
		done:         make(chan struct{}),
	}
}

// Dial opens a client connection to a delivery WebSocket endpoint.
func Dial(ctx context.Context, url string) (*WebSocket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultHandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", url, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Dial",
		"url":         url,
		"remote_addr": conn.RemoteAddr().String(),
	}).Info("WebSocket connection established")

	return NewWebSocket(conn), nil
}

// NewHandler returns an http.Handler that upgrades each request, passes the
// new transport to accept so it can register handlers (typically by
// creating a session), and then serves it until the connection closes.
func NewHandler(accept func(*WebSocket)) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "NewHandler",
				"remote_addr": r.RemoteAddr,
				"error":       err.Error(),
			}).Error("Failed to upgrade WebSocket connection")
			return
		}

		ws := NewWebSocket(conn)
		defer ws.Close()

		logrus.WithFields(logrus.Fields{
			"function":    "NewHandler",
			"remote_addr": conn.RemoteAddr().String(),
		}).Info("WebSocket connection accepted")

		accept(ws)
		if err := ws.Serve(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "NewHandler",
				"remote_addr": conn.RemoteAddr().String(),
				"error":       err.Error(),
			}).Warn("WebSocket connection closed unexpectedly")
		}
	})
}

// SetWriteTimeout changes the per-frame write deadline. Zero disables it.
func (w *WebSocket) SetWriteTimeout(d time.Duration) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.writeTimeout = d
}

// SetMaxFrameSize changes the largest frame read from or written to the
// connection. Both peers must use the same value. Non-positive values are
// ignored.
func (w *WebSocket) SetMaxFrameSize(n int64) {
	if n <= 0 {
		return
	}
	w.conn.SetReadLimit(n)

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.maxFrameSize = n
}

// Emit writes one event frame. Frames over the frame size limit are
// rejected with ErrFrameTooLarge before anything is written, since the
// peer would drop the whole connection on them.
func (w *WebSocket) Emit(event string, payload any) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if int64(len(frame)) > w.maxFrameSize {
		logrus.WithFields(logrus.Fields{
			"function":       "Emit",
			"event":          event,
			"frame_size":     len(frame),
			"max_frame_size": w.maxFrameSize,
		}).Warn("Refusing to write oversized frame")
		return fmt.Errorf("%w: %s frame is %d bytes, limit %d", ErrFrameTooLarge, event, len(frame), w.maxFrameSize)
	}

	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Emit",
		"event":      event,
		"frame_size": len(frame),
	}).Debug("Event frame written")

	return nil
}

// Serve reads frames and dispatches them until the connection closes. It
// returns nil on a normal close and the read error otherwise.
func (w *WebSocket) Serve() error {
	defer w.markDone()

	for {
		messageType, frame, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || w.isDone() {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if messageType != websocket.TextMessage {
			logrus.WithFields(logrus.Fields{
				"function":     "Serve",
				"message_type": messageType,
			}).Debug("Ignoring non-text frame")
			continue
		}

		w.dispatchFrame(frame, "websocket")
	}
}

// Done is closed once the connection stops serving or is closed.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}

// Close sends a close frame and closes the connection. Safe to call more
// than once.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)

		w.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		writeErr := w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		w.writeMu.Unlock()

		closeErr := w.conn.Close()
		if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
			logrus.WithFields(logrus.Fields{
				"function": "Close",
				"error":    writeErr.Error(),
			}).Debug("Close frame not sent")
		}
		err = closeErr
	})
	return err
}

func (w *WebSocket) markDone() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.conn.Close()
	})
}

func (w *WebSocket) isDone() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}
