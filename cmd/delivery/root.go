package main

import (
	"fmt"

	"github.com/opd-ai/delivery/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "delivery",
		Short: "Send and receive files over the delivery protocol",
		Long: `delivery moves whole files between two peers over a WebSocket.

The server accepts connections and saves every received file into its
output directory. The client connects, sends files and waits until the
server has acknowledged each one.

Configuration comes from built-in defaults, an optional TOML file
(--config) and DELIVERY_* environment variables, in that order.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "TOML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level, overrides the configuration (debug|info|warn|error)")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newSendCmd(a))

	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}
	if err := cfg.ConfigureLogging(logrus.StandardLogger()); err != nil {
		return err
	}

	a.cfg = cfg
	return nil
}
