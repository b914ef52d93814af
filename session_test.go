package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opd-ai/delivery/file"
	"github.com/opd-ai/delivery/limits"
	"github.com/opd-ai/delivery/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNewSession(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	assert.Equal(t, StateDisconnected, s.State())
	assert.Empty(t, s.Pending())
	assert.Equal(t, limits.DefaultMaxFileSize, s.maxFileSize)

	for _, event := range []string{
		transport.EventConnecting,
		transport.EventConnect,
		transport.EventSendStart,
		transport.EventSendSuccess,
	} {
		assert.Len(t, trans.handlers[event], 1, "handler for %s", event)
	}
}

func TestSessionOptions(t *testing.T) {
	s := NewSession(newMockTransport(), WithMaxFileSize(1024), WithReceiveRetention(5))
	assert.Equal(t, int64(1024), s.maxFileSize)
	assert.Equal(t, 5, s.retention)

	s = NewSession(newMockTransport(), WithMaxFileSize(0), WithReceiveRetention(-3))
	assert.Equal(t, limits.DefaultMaxFileSize, s.maxFileSize)
	assert.Equal(t, 0, s.retention)
}

func TestConnectInitiator(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	var connects int
	s.OnConnect(func(got *Session) error {
		assert.Same(t, s, got)
		connects++
		return nil
	})

	require.NoError(t, s.Connect())
	assert.Equal(t, StateConnecting, s.State())
	assert.Equal(t, []string{transport.EventConnecting}, trans.events())
	assert.Equal(t, 0, connects, "initiator must wait for the peer's confirmation")

	err := s.Connect()
	assert.ErrorIs(t, err, ErrAlreadyConnecting)

	require.NoError(t, trans.simulateReceive(t, transport.EventConnect, nil))
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, 1, connects)

	select {
	case <-s.Connected():
	default:
		t.Fatal("Connected channel not closed")
	}
	require.NoError(t, s.WaitConnected(context.Background()))

	// A repeated confirmation does not publish again.
	require.NoError(t, trans.simulateReceive(t, transport.EventConnect, nil))
	assert.Equal(t, 1, connects)
}

func TestConnectEmitFailureResetsState(t *testing.T) {
	trans := newMockTransport()
	trans.emitErr = transport.ErrClosed
	s := NewSession(trans)

	err := s.Connect()
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestUnsolicitedConnectIsIgnored(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	var connects int
	s.OnConnect(func(*Session) error {
		connects++
		return nil
	})

	require.NoError(t, trans.simulateReceive(t, transport.EventConnect, nil))
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 0, connects)
	assert.Empty(t, trans.events())
}

func TestConnectResponder(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	var connects int
	s.OnConnect(func(*Session) error {
		// the reply is on the wire before the local publish
		assert.Equal(t, []string{transport.EventConnect}, trans.events())
		connects++
		return nil
	})

	assert.Empty(t, trans.events(), "responder emits nothing before delivery.connecting")

	require.NoError(t, trans.simulateReceive(t, transport.EventConnecting, nil))
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, 1, connects)

	// The peer may retry; it gets another reply but the host sees one connect.
	trans.clear()
	require.NoError(t, trans.simulateReceive(t, transport.EventConnecting, nil))
	assert.Equal(t, []string{transport.EventConnect}, trans.events())
	assert.Equal(t, 1, connects)
}

func TestWaitConnectedTimeout(t *testing.T) {
	s := NewSession(newMockTransport())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.WaitConnected(ctx), context.Canceled)
}

func TestSendTextScenario(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)
	path := writeFile(t, "a.txt", testTextContent)

	var order []string
	s.OnSendStart(func(p *file.Packet) error {
		order = append(order, "send.start:"+p.Name)
		assert.Empty(t, trans.events(), "send.start is published before the offer is emitted")
		return nil
	})

	uid, err := s.Send(context.Background(), file.Record{Name: "a.txt", Path: path, IsText: true})
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	assert.Equal(t, []string{"send.start:a.txt"}, order)
	assert.Equal(t, []string{uid}, s.Pending())

	offer := trans.lastEmitted(t)
	assert.Equal(t, transport.EventSendStart, offer.event)
	b := offer.batch(t)
	assert.Equal(t, uid, b.UID)
	assert.True(t, b.IsText)
	assert.Equal(t, "hi", b.Data)
	assert.Equal(t, "a.txt", b.Name)
	assert.Equal(t, int64(2), b.Size)
}

func TestSendBinaryScenario(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)
	path := writeFile(t, "pixel.png", testPNGBytes)

	uid, err := s.Send(context.Background(), file.Record{Path: path, Params: map[string]any{"album": "x"}})
	require.NoError(t, err)

	b := trans.lastEmitted(t).batch(t)
	assert.Equal(t, uid, b.UID)
	assert.Equal(t, "image/png", b.MimeType)
	assert.Equal(t, "data:image/png;base64,", b.Prefix)
	assert.False(t, b.IsText)
	assert.Equal(t, map[string]any{"album": "x"}, b.Params)

	raw, err := file.DecodeBase64(b.Data)
	require.NoError(t, err)
	assert.Equal(t, testPNGBytes, raw)
}

func TestSendUnreadableFile(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	var sendStarts int
	s.OnSendStart(func(*file.Packet) error {
		sendStarts++
		return nil
	})

	uid, err := s.Send(context.Background(), file.Record{Path: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, file.ErrUnreadable)
	assert.Empty(t, uid)
	assert.Empty(t, trans.events(), "no partial packet may be emitted")
	assert.Empty(t, s.Pending())
	assert.Equal(t, 0, sendStarts)
}

func TestSendEmitFailure(t *testing.T) {
	trans := newMockTransport()
	trans.emitErr = errors.New("socket gone")
	s := NewSession(trans)

	var announced []string
	s.OnSendStart(func(p *file.Packet) error {
		// still tracked while subscribers run
		assert.Contains(t, s.Pending(), p.UID)
		announced = append(announced, p.UID)
		return nil
	})

	uid, err := s.Send(context.Background(), file.Record{Name: "a.bin", Data: []byte{1}})
	assert.ErrorIs(t, err, ErrEmit)
	assert.Empty(t, uid)
	assert.Empty(t, s.Pending())
	assert.Len(t, announced, 1)
}

func TestSendOversizedFrame(t *testing.T) {
	trans := newMockTransport()
	trans.emitErr = transport.ErrFrameTooLarge
	s := NewSession(trans)

	uid, err := s.Send(context.Background(), file.Record{Name: "a.txt", Data: []byte("<<<"), IsText: true})
	assert.ErrorIs(t, err, ErrEmit)
	assert.ErrorIs(t, err, transport.ErrFrameTooLarge)
	assert.Empty(t, uid)
	assert.Empty(t, s.Pending())
}

func TestSendSubscriberFailureAbortsSend(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)
	hostErr := errors.New("host failure")
	s.OnSendStart(func(*file.Packet) error { return hostErr })

	uid, err := s.Send(context.Background(), file.Record{Name: "a.bin", Data: []byte{1}})
	assert.ErrorIs(t, err, hostErr)
	assert.Empty(t, uid)
	assert.Empty(t, s.Pending())
	assert.Empty(t, trans.events(), "a rejected send is never offered")
}

func TestSendTooLarge(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans, WithMaxFileSize(4))

	_, err := s.Send(context.Background(), file.Record{Name: "big", Data: make([]byte, 5)})
	assert.ErrorIs(t, err, limits.ErrFileTooLarge)
	assert.Empty(t, trans.events())
}

func TestAcknowledgmentClosesTransfer(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	uid, err := s.Send(context.Background(), file.Record{Name: "a.txt", Data: []byte("x"), IsText: true})
	require.NoError(t, err)

	var acked []string
	s.OnSendSuccess(func(got string) error {
		// still tracked while subscribers run
		assert.Contains(t, s.Pending(), got)
		acked = append(acked, got)
		return nil
	})

	require.NoError(t, trans.simulateReceive(t, transport.EventSendSuccess, uid))
	assert.Equal(t, []string{uid}, acked)
	assert.Empty(t, s.Pending())

	// Duplicate acknowledgment is dropped.
	require.NoError(t, trans.simulateReceive(t, transport.EventSendSuccess, uid))
	assert.Equal(t, []string{uid}, acked)
}

func TestAcknowledgmentMalformedPayload(t *testing.T) {
	trans := newMockTransport()
	NewSession(trans)

	err := trans.simulateRaw(transport.EventSendSuccess, json.RawMessage(`{"not":"a uid"}`))
	assert.Error(t, err)
}

func TestReceiveFile(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	var order []string
	s.OnReceiveStart(func(uid string) error {
		order = append(order, "start:"+uid)
		return nil
	})
	s.OnReceiveSuccess(func(p *file.Packet) error {
		order = append(order, "success:"+p.UID)
		assert.Equal(t, file.DirectionInbound, p.Direction)
		assert.Equal(t, testTextContent, p.Raw)

		// acknowledgment already emitted by the internal subscriber
		ack := trans.lastEmitted(t)
		assert.Equal(t, transport.EventSendSuccess, ack.event)
		assert.Equal(t, p.UID, ack.uid(t))

		_, ok := s.Received(p.UID)
		assert.True(t, ok, "packet is available during dispatch")
		return nil
	})

	batch := file.Batch{UID: "uid-1", Name: "a.txt", Size: 2, Data: "hi", IsText: true}
	require.NoError(t, trans.simulateReceive(t, transport.EventSendStart, batch))

	assert.Equal(t, []string{"start:uid-1", "success:uid-1"}, order)
	assert.Equal(t, []string{transport.EventSendSuccess}, trans.events())

	_, ok := s.Received("uid-1")
	assert.False(t, ok, "default retention prunes after dispatch")
}

func TestReceiveHostFailureDoesNotLoseAcknowledgment(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)
	s.OnReceiveSuccess(func(*file.Packet) error { return errors.New("disk full") })

	err := trans.simulateReceive(t, transport.EventSendStart, file.Batch{UID: "u", Name: "a", Data: "AQ=="})
	assert.Error(t, err)
	assert.Equal(t, []string{transport.EventSendSuccess}, trans.events())
}

func TestReceiveDecodeError(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	var rejected []*TransferError
	var successes int
	s.OnReceiveError(func(terr *TransferError) error {
		rejected = append(rejected, terr)
		return nil
	})
	s.OnReceiveSuccess(func(*file.Packet) error {
		successes++
		return nil
	})

	batch := file.Batch{UID: "bad-1", Name: "broken.bin", Data: "***"}
	require.NoError(t, trans.simulateReceive(t, transport.EventSendStart, batch))

	require.Len(t, rejected, 1)
	assert.Equal(t, "bad-1", rejected[0].UID)
	assert.Equal(t, "broken.bin", rejected[0].Name)
	assert.ErrorIs(t, rejected[0], file.ErrDecode)
	assert.Contains(t, rejected[0].Error(), "bad-1")
	assert.Equal(t, 0, successes)
	assert.Empty(t, trans.events(), "rejected files are not acknowledged")

	// The session keeps working after a rejected transfer.
	good := file.Batch{UID: "good-1", Name: "ok.txt", Data: "fine", IsText: true}
	require.NoError(t, trans.simulateReceive(t, transport.EventSendStart, good))
	assert.Equal(t, 1, successes)
}

func TestReceiveMalformedBatch(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	var rejected *TransferError
	s.OnReceiveError(func(terr *TransferError) error {
		rejected = terr
		return nil
	})

	require.NoError(t, trans.simulateRaw(transport.EventSendStart, json.RawMessage(`"just a string"`)))
	require.NotNil(t, rejected)
	assert.ErrorIs(t, rejected, file.ErrDecode)
}

func TestReceiveTooLarge(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans, WithMaxFileSize(3))

	var rejected *TransferError
	s.OnReceiveError(func(terr *TransferError) error {
		rejected = terr
		return nil
	})

	batch := file.Batch{UID: "u", Name: "a.bin", Data: file.EncodeBase64(make([]byte, 10))}
	require.NoError(t, trans.simulateReceive(t, transport.EventSendStart, batch))
	require.NotNil(t, rejected)
	assert.ErrorIs(t, rejected, limits.ErrFileTooLarge)
	assert.Empty(t, trans.events())
}

func TestReceiveRetention(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans, WithReceiveRetention(2))

	for _, uid := range []string{"u1", "u2", "u3"} {
		batch := file.Batch{UID: uid, Name: uid + ".txt", Data: uid, IsText: true}
		require.NoError(t, trans.simulateReceive(t, transport.EventSendStart, batch))
	}

	_, ok := s.Received("u1")
	assert.False(t, ok, "oldest packet evicted")

	p, ok := s.Received("u3")
	require.True(t, ok)
	assert.Equal(t, []byte("u3"), p.Raw)

	_, ok = s.Received("u2")
	assert.True(t, ok)
}

func TestDuplicateOfferIsReacknowledged(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans, WithReceiveRetention(1))

	var starts, successes int
	s.OnReceiveStart(func(string) error {
		starts++
		return nil
	})
	s.OnReceiveSuccess(func(*file.Packet) error {
		successes++
		return nil
	})

	batch := file.Batch{UID: "dup", Name: "a.txt", Data: "x", IsText: true}
	require.NoError(t, trans.simulateReceive(t, transport.EventSendStart, batch))
	require.NoError(t, trans.simulateReceive(t, transport.EventSendStart, batch))

	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, successes)
	assert.Equal(t, []string{transport.EventSendSuccess, transport.EventSendSuccess}, trans.events())
}

func TestOnRejectsUnknownTopics(t *testing.T) {
	s := NewSession(newMockTransport())

	err := s.On("file.load", func(any) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownTopic)

	err = s.On("made.up", func(any) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownTopic)

	assert.NoError(t, s.On(TopicSendSuccess, func(any) error { return nil }))
}

func TestOnDispatchOrder(t *testing.T) {
	trans := newMockTransport()
	s := NewSession(trans)

	var order []string
	require.NoError(t, s.On(TopicReceiveStart, func(payload any) error {
		order = append(order, "A:"+payload.(string))
		return nil
	}))
	require.NoError(t, s.On(TopicReceiveStart, func(payload any) error {
		order = append(order, "B:"+payload.(string))
		return nil
	}))

	for _, uid := range []string{"1", "2"} {
		batch := file.Batch{UID: uid, Name: "f", Data: "", IsText: true}
		require.NoError(t, trans.simulateReceive(t, transport.EventSendStart, batch))
	}

	assert.Equal(t, []string{"A:1", "B:1", "A:2", "B:2"}, order)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "state(7)", State(7).String())
}
