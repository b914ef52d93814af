package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/delivery"
	"github.com/opd-ai/delivery/config"
	"github.com/opd-ai/delivery/file"
	"github.com/opd-ai/delivery/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen, output string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and save received files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.ListenAddr = listen
			}
			if output != "" {
				a.cfg.OutputDir = output
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides the configuration")
	cmd.Flags().StringVar(&output, "output", "", "directory for received files, overrides the configuration")

	return cmd
}

// newReceiver returns the per-connection setup: one session that saves
// every received file into cfg.OutputDir.
func newReceiver(cfg *config.Config) func(*transport.WebSocket) {
	return func(ws *transport.WebSocket) {
		session := delivery.NewSession(ws, cfg.SessionOptions()...)

		session.OnConnect(func(*delivery.Session) error {
			logrus.WithFields(logrus.Fields{
				"function": "newReceiver",
			}).Info("Peer connected")
			return nil
		})

		session.OnReceiveSuccess(func(p *file.Packet) error {
			_, err := p.Save(cfg.OutputDir)
			return err
		})

		session.OnReceiveError(func(terr *delivery.TransferError) error {
			logrus.WithFields(logrus.Fields{
				"function":  "newReceiver",
				"uid":       terr.UID,
				"file_name": terr.Name,
				"error":     terr.Err.Error(),
			}).Warn("Discarded inbound file")
			return nil
		})
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, transport.NewHandler(newReceiver(cfg)))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logrus.WithFields(logrus.Fields{
		"function":   "runServe",
		"listen":     cfg.ListenAddr,
		"path":       cfg.Path,
		"output_dir": cfg.OutputDir,
	}).Info("Delivery server started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logrus.WithFields(logrus.Fields{
		"function": "runServe",
	}).Info("Shutting down delivery server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
