package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/opd-ai/delivery"
	"github.com/opd-ai/delivery/config"
	"github.com/opd-ai/delivery/file"
	"github.com/opd-ai/delivery/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	errNoFiles        = errors.New("no files to send")
	errAckTimeout     = errors.New("timed out waiting for acknowledgments")
	errConnectionLost = errors.New("connection closed before all files were acknowledged")
)

type sendOptions struct {
	text     bool
	checksum bool
}

func newSendCmd(a *app) *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send [url] <file>...",
		Short: "Send files to a delivery server and wait for acknowledgment",
		Long: `Send connects to a delivery server, sends every file and waits until
each one is acknowledged. The URL defaults to the configured server_url
when the first argument is not a ws:// or wss:// URL.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, paths := splitTarget(a.cfg.ServerURL, args)
			if len(paths) == 0 {
				return errNoFiles
			}
			return runSend(cmd.Context(), a.cfg, url, paths, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.text, "text", false, "send files as UTF-8 text instead of base64")
	cmd.Flags().BoolVar(&opts.checksum, "checksum", true, "attach a BLAKE2b digest the server verifies")

	return cmd
}

func splitTarget(defaultURL string, args []string) (string, []string) {
	if len(args) > 0 && (strings.HasPrefix(args[0], "ws://") || strings.HasPrefix(args[0], "wss://")) {
		return args[0], args[1:]
	}
	return defaultURL, args
}

func runSend(ctx context.Context, cfg *config.Config, url string, paths []string, opts sendOptions, out io.Writer) error {
	ws, err := transport.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer ws.Close()

	session := delivery.NewSession(ws, cfg.SessionOptions()...)

	// At most one publish per uid, so the buffer never fills.
	acks := make(chan string, len(paths))
	session.OnSendSuccess(func(uid string) error {
		acks <- uid
		return nil
	})

	go func() {
		if err := ws.Serve(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "runSend",
				"error":    err.Error(),
			}).Warn("Connection read loop ended")
		}
	}()

	if err := session.Connect(); err != nil {
		return err
	}
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	err = session.WaitConnected(handshakeCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("handshake with %s: %w", url, err)
	}

	names := make(map[string]string, len(paths))
	for _, path := range paths {
		uid, err := session.Send(ctx, file.Record{
			Path:     path,
			IsText:   opts.text,
			Checksum: opts.checksum,
		})
		if err != nil {
			return fmt.Errorf("send %s: %w", path, err)
		}
		names[uid] = filepath.Base(path)
	}

	ackCtx, cancel := context.WithTimeout(ctx, cfg.AckTimeout)
	defer cancel()

	if err := awaitAcks(ackCtx, ws.Done(), acks, names, out); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "runSend",
		"url":        url,
		"file_count": len(names),
	}).Info("All files delivered")

	return nil
}

// awaitAcks reports each acknowledged uid until every name is delivered.
// Acks already buffered when the connection ends still count.
func awaitAcks(ctx context.Context, done <-chan struct{}, acks <-chan string, names map[string]string, out io.Writer) error {
	remaining := len(names)
	report := func(uid string) {
		fmt.Fprintf(out, "delivered %s (%s)\n", names[uid], uid)
		remaining--
	}

	for remaining > 0 {
		select {
		case uid := <-acks:
			report(uid)
		case <-done:
			for remaining > 0 {
				select {
				case uid := <-acks:
					report(uid)
				default:
					return fmt.Errorf("%w: %d pending", errConnectionLost, remaining)
				}
			}
		case <-ctx.Done():
			return fmt.Errorf("%w: %d pending", errAckTimeout, remaining)
		}
	}
	return nil
}
