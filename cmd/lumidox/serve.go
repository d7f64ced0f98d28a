package main

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryancinsight/Apollo2-sub001/internal/config"
	"github.com/ryancinsight/Apollo2-sub001/internal/server"
	"github.com/ryancinsight/Apollo2-sub001/internal/tui"
)

func serveCmd(a *app) *cobra.Command {
	var attempts int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live status and remote control over HTTP and WebSocket",
		Long: `Connect to the controller and serve:

  /ws           status frames on an interval, control messages in
  /api/status   current status
  /api/info     device identity and valid transitions
  /api/control  POST {"action":"fire","stage":2} and friends
  /api/config   GET or POST (merged) configuration
  /metrics      Prometheus metrics

The controller is turned off when the server stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, err := a.connectWithRetry(cmd, attempts)
			if err != nil {
				return err
			}
			defer dev.Close()

			srv := server.New(a.cfg, dev,
				server.WithLogger(a.log),
				server.WithMetrics(a.metrics, a.reg))
			p := newPrinter(cmd)
			p.ok("Serving on %s", a.cfg.Server.ListenAddr)

			err = srv.Run(cmd.Context())
			if offErr := dev.TurnOff(); offErr != nil {
				a.log.Warn("turn off on exit failed", zap.Error(offErr))
			}
			return err
		},
	}
	cmd.Flags().String("listen", "", "Listen address, e.g. :8080 (default from config)")
	cmd.Flags().IntVar(&attempts, "connect-attempts", 0, "Give up after this many failed connects (0 retries forever)")
	a.bind(config.KeyListenAddr, cmd.Flags().Lookup("listen"))
	return cmd
}

func interactiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Drive the controller from a keyboard menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer dev.Close()

			err = tui.Run(dev, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
				// Interrupted before the menu could shut the device down.
				return dev.Shutdown()
			}
			return err
		},
	}
}
