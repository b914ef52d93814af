package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/delivery"
	"github.com/opd-ai/delivery/config"
	"github.com/opd-ai/delivery/file"
	"github.com/opd-ai/delivery/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWait = 3 * time.Second

func startServer(t *testing.T, cfg *config.Config) string {
	t.Helper()
	srv := httptest.NewServer(transport.NewHandler(newReceiver(cfg)))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSplitTarget(t *testing.T) {
	url, files := splitTarget("ws://default", []string{"ws://host/d", "a.txt"})
	assert.Equal(t, "ws://host/d", url)
	assert.Equal(t, []string{"a.txt"}, files)

	url, files = splitTarget("ws://default", []string{"a.txt", "b.txt"})
	assert.Equal(t, "ws://default", url)
	assert.Equal(t, []string{"a.txt", "b.txt"}, files)

	_, files = splitTarget("ws://default", []string{"wss://secure"})
	assert.Empty(t, files)
}

func TestSendAndSave(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	url := startServer(t, cfg)

	src := t.TempDir()
	text := writeFile(t, src, "a.txt", []byte("hi"))
	image := writeFile(t, src, "pixel.png", []byte{0x89, 0x50, 0x4E})

	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()

	var out bytes.Buffer
	err := runSend(ctx, cfg, url, []string{text, image}, sendOptions{checksum: true}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "delivered a.txt")
	assert.Contains(t, out.String(), "delivered pixel.png")

	// Acknowledgment precedes the save handler, so poll for the files.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "pixel.png"))
		return err == nil && bytes.Equal(data, []byte{0x89, 0x50, 0x4E})
	}, testWait, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "a.txt"))
		return err == nil && string(data) == "hi"
	}, testWait, 10*time.Millisecond)
}

func TestSendTextMode(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	url := startServer(t, cfg)

	path := writeFile(t, t.TempDir(), "notes.md", []byte("# notes\n"))

	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, runSend(ctx, cfg, url, []string{path}, sendOptions{text: true}, &out))
	assert.Contains(t, out.String(), "delivered notes.md")
}

func TestSendMissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	url := startServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()

	err := runSend(ctx, cfg, url, []string{filepath.Join(t.TempDir(), "missing")}, sendOptions{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSendAcknowledgedBeforeServerCloses(t *testing.T) {
	// The server acknowledges, then hangs up from its receive handler.
	srv := httptest.NewServer(transport.NewHandler(func(ws *transport.WebSocket) {
		session := delivery.NewSession(ws)
		session.OnReceiveSuccess(func(*file.Packet) error {
			return ws.Close()
		})
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	path := writeFile(t, t.TempDir(), "a.txt", []byte("hi"))

	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, runSend(ctx, config.Default(), url, []string{path}, sendOptions{}, &out))
	assert.Contains(t, out.String(), "delivered a.txt")
}

func TestAwaitAcksDrainsAfterDone(t *testing.T) {
	names := map[string]string{"u1": "a.txt", "u2": "b.txt"}
	done := make(chan struct{})
	close(done)

	for i := 0; i < 20; i++ {
		var out bytes.Buffer
		ch := make(chan string, 2)
		ch <- "u1"
		ch <- "u2"
		require.NoError(t, awaitAcks(context.Background(), done, ch, names, &out))
		assert.Contains(t, out.String(), "delivered a.txt (u1)")
		assert.Contains(t, out.String(), "delivered b.txt (u2)")
	}

	var out bytes.Buffer
	partial := make(chan string, 2)
	partial <- "u1"
	err := awaitAcks(context.Background(), done, partial, names, &out)
	assert.ErrorIs(t, err, errConnectionLost)
	assert.Contains(t, out.String(), "delivered a.txt (u1)")
}

func TestSendHandshakeTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.HandshakeTimeout = 200 * time.Millisecond

	// A server that never answers the handshake.
	srv := httptest.NewServer(transport.NewHandler(func(*transport.WebSocket) {}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	path := writeFile(t, t.TempDir(), "a.txt", []byte("hi"))

	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()

	err := runSend(ctx, cfg, url, []string{path}, sendOptions{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRootCommandSend(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	url := startServer(t, cfg)

	path := writeFile(t, t.TempDir(), "a.txt", []byte("hi"))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--log-level", "error", "send", url, path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "delivered a.txt")
}

func TestRootCommandRejectsBadLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "shout", "send", "a.txt"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRootCommandSendWithoutFiles(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"send", "ws://localhost:1/delivery"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, errNoFiles)
}
