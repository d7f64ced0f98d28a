package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ryancinsight/Apollo2-sub001/internal/config"
	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/discovery"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/journal"
	"github.com/ryancinsight/Apollo2-sub001/internal/logging"
	"github.com/ryancinsight/Apollo2-sub001/internal/metrics"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// app is the state shared by every command: configuration, logger and
// the observers wired into each session.
type app struct {
	cfgPath string
	ov      *config.Overrides
	bindErr error
	cancel  context.CancelFunc
	stopSig func()

	cfg     *config.Config
	log     *zap.Logger
	closers []io.Closer
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	journal *journal.Journal

	// replaced in tests
	discoveryOpts []discovery.Option
	retryDelay    time.Duration
	notify        bool
}

func newApp(cancel context.CancelFunc) *app {
	return &app{
		ov:         config.NewOverrides(),
		cancel:     cancel,
		log:        zap.NewNop(),
		retryDelay: time.Second,
		notify:     true,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lumidox",
		Short: "Control a Lumidox II LED controller over its serial port",
		Long: `Control a Lumidox II LED controller over its serial port.

Without --port the controller is found automatically: USB serial ports are
ranked, probed with the identification commands and the working baud rate
is detected. With --port the named port is used directly; add --auto to
detect first and fall back to the named port.

Examples:
  lumidox stage3
  lumidox --port /dev/ttyUSB0 current 250
  lumidox --auto --preset quick --verbose status
  lumidox serve --listen :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", config.DefaultPath, "Path to config file")
	pf.StringP("port", "p", "", "Serial port, e.g. /dev/ttyUSB0 (empty auto-detects)")
	pf.IntP("baud", "b", protocol.DefaultBaudRate, "Baud rate for --port")
	pf.Bool("auto", false, "Auto-detect even when a port is given, falling back to it")
	pf.String("preset", config.PresetDefault, "Detection preset: default, quick or thorough")
	pf.BoolP("verbose", "v", false, "Print the connection log")
	pf.Bool("no-optimize", false, "Always run the full Standby/Armed sequence before firing")
	pf.String("log-level", "", "Log level: debug, info, warn, error (default from config)")
	pf.Bool("journal", false, "Append every command to the CSV journal")

	for key, name := range map[string]string{
		config.KeyPort:        "port",
		config.KeyBaudRate:    "baud",
		config.KeyAutoConnect: "auto",
		config.KeyPreset:      "preset",
		config.KeyVerbose:     "verbose",
		config.KeyLogLevel:    "log-level",
		config.KeyJournal:     "journal",
	} {
		a.bind(key, pf.Lookup(name))
	}

	root.AddCommand(stageCmds(a)...)
	root.AddCommand(
		currentCmd(a),
		armCmd(a),
		offCmd(a),
		shutdownCmd(a),
		infoCmd(a),
		statusCmd(a),
		readStateCmd(a),
		readArmCurrentCmd(a),
		readFireCurrentCmd(a),
		stageInfoCmd(a),
		stageArmCmd(a),
		stageVoltagesCmd(a),
		setArmCurrentCmd(a),
		listPortsCmd(a),
		detectPortsCmd(a),
		testBaudCmd(a),
		portDiagnosticsCmd(a),
		serveCmd(a),
		interactiveCmd(a),
	)
	return root
}

// bind ties a config key to a flag. The first failure is reported by
// setup, before any command runs.
func (a *app) bind(key string, f *pflag.Flag) {
	if a.bindErr != nil {
		return
	}
	if err := a.ov.BindFlag(key, f); err != nil {
		a.bindErr = errs.Config("bind_flag", fmt.Errorf("%s: %w", key, err))
	}
}

// setup loads the configuration and builds the logger and observers.
func (a *app) setup(cmd *cobra.Command) error {
	if a.bindErr != nil {
		return a.bindErr
	}
	flags := cmd.Flags()
	if noOpt, _ := flags.GetBool("no-optimize"); noOpt {
		a.ov.Set(config.KeyOptimize, false)
	}
	// A named port is used as given unless --auto asks for detection.
	if flags.Changed("port") && !flags.Changed("auto") {
		a.ov.Set(config.KeyAutoConnect, false)
	}

	cfg, err := config.Load(a.cfgPath, a.ov, nil)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	log, closer := logging.New(cfg.Logging)
	a.log = log
	a.closers = append(a.closers, closer)

	a.reg = metrics.NewRegistry()
	a.metrics = metrics.New(a.reg)
	a.journal = journal.New(cfg.Journal, log)
	a.closers = append(a.closers, a.journal)

	if a.notify && a.cancel != nil {
		a.watchSignals()
	}
	return nil
}

// watchSignals cancels the command context on SIGINT or SIGTERM until
// teardown.
func (a *app) watchSignals() {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	a.stopSig = func() {
		signal.Stop(sigCh)
		close(done)
	}
	go func() {
		select {
		case sig := <-sigCh:
			a.log.Info("shutting down", zap.Stringer("signal", sig))
			a.cancel()
		case <-done:
		}
	}()
}

func (a *app) teardown() {
	if a.stopSig != nil {
		a.stopSig()
		a.stopSig = nil
	}
	a.log.Sync()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// connector wires the logger, metrics and journal into every handler and
// device discovery builds.
func (a *app) connector() *discovery.AutoConnector {
	opts := []discovery.Option{
		discovery.WithLogger(a.log),
		discovery.WithProbeRecorder(a.metrics),
		discovery.WithHandlerOptions(
			protocol.WithLogger(a.log),
			protocol.WithObserver(a.metrics),
			protocol.WithObserver(a.journal),
		),
		discovery.WithDeviceOptions(
			device.WithLogger(a.log),
			device.WithOptimize(a.cfg.Device.OptimizeTransitions),
			device.WithTransitionHook(a.metrics.ObserveTransition),
		),
	}
	return discovery.NewAutoConnector(append(opts, a.discoveryOpts...)...)
}

// connect opens a session the way the flags ask for: the named port
// directly, or auto-detection with the named port as fallback.
func (a *app) connect(cmd *cobra.Command) (*device.Device, error) {
	ac := a.connector()
	s := a.cfg.Serial

	var (
		dev *device.Device
		res *discovery.Result
		err error
	)
	if s.Port != "" && !s.AutoConnect {
		dev, res, err = ac.ConnectManual(s.Port, s.BaudRate)
	} else {
		dev, res, err = ac.AutoConnect(cmd.Context(), a.cfg.AutoConnect())
		if err != nil && s.Port != "" {
			a.printLog(cmd, res)
			dev, res, err = ac.ConnectFallback(s.Port, s.BaudRate)
		}
	}
	if s.Verbose || err != nil {
		a.printLog(cmd, res)
	}
	if err != nil {
		return nil, err
	}
	a.log.Info("connected",
		zap.String("port", res.Port),
		zap.Int("baud", res.BaudRate),
		zap.Stringer("method", res.Method),
		zap.Duration("elapsed", res.Elapsed))
	return dev, nil
}

// withDevice runs fn against a fresh session and closes it afterwards.
// The controller is left in whatever mode fn put it in.
func (a *app) withDevice(cmd *cobra.Command, fn func(p printer, d *device.Device) error) error {
	dev, err := a.connect(cmd)
	if err != nil {
		return err
	}
	defer dev.Close()
	return fn(newPrinter(cmd), dev)
}

func (a *app) printLog(cmd *cobra.Command, res *discovery.Result) {
	if res == nil {
		return
	}
	p := newPrinter(cmd)
	for _, line := range res.Log {
		p.muted(line)
	}
}

// connectWithRetry keeps trying to reach the controller, backing off from
// retryDelay up to a minute. maxAttempts 0 retries until ctx is done.
func (a *app) connectWithRetry(cmd *cobra.Command, maxAttempts int) (*device.Device, error) {
	ctx := cmd.Context()
	delay := a.retryDelay
	maxDelay := 60 * time.Second

	for attempt := 1; ; attempt++ {
		dev, err := a.connect(cmd)
		if err == nil {
			a.log.Info("controller connected", zap.Int("attempt", attempt))
			return dev, nil
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, err
		}
		a.log.Warn("connect attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
			zap.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
