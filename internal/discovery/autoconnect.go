package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// AutoConfig bundles everything auto-connect needs.
type AutoConfig struct {
	Ports            PortConfig
	Baud             BaudConfig
	Verbose          bool
	EnableCaching    bool
	MaxDetectionTime time.Duration
}

// DefaultAutoConfig scans thoroughly within 30 seconds.
func DefaultAutoConfig() AutoConfig {
	return AutoConfig{
		Ports:            DefaultPortConfig(),
		Baud:             DefaultBaudConfig(),
		EnableCaching:    true,
		MaxDetectionTime: 30 * time.Second,
	}
}

// QuickAutoConfig favors speed: three rates, one attempt, 10 seconds.
func QuickAutoConfig() AutoConfig {
	c := DefaultAutoConfig()
	c.Baud = QuickBaudConfig()
	c.MaxDetectionTime = 10 * time.Second
	return c
}

// ThoroughAutoConfig tries everything for up to a minute and narrates it.
func ThoroughAutoConfig() AutoConfig {
	c := DefaultAutoConfig()
	c.Baud = ThoroughBaudConfig()
	c.Verbose = true
	c.MaxDetectionTime = 60 * time.Second
	return c
}

// ConnectionMethod records how a session was established.
type ConnectionMethod int

const (
	MethodAutoDetected ConnectionMethod = iota
	MethodCached
	MethodManual
	MethodFallback
)

func (m ConnectionMethod) String() string {
	switch m {
	case MethodAutoDetected:
		return "auto-detected"
	case MethodCached:
		return "cached"
	case MethodManual:
		return "manual"
	case MethodFallback:
		return "fallback"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

func (m ConnectionMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Result describes one connection attempt for display. Log is the step by
// step narrative and is filled in on failure too.
type Result struct {
	Success  bool             `json:"success"`
	Port     string           `json:"port,omitempty"`
	BaudRate int              `json:"baudRate,omitempty"`
	Method   ConnectionMethod `json:"method"`
	Elapsed  time.Duration    `json:"elapsed"`
	Info     *device.Info     `json:"info,omitempty"`
	Log      []string         `json:"log"`
}

// AutoConnector combines port and baud detection into a live session.
type AutoConnector struct {
	deps
	ports *PortDetector
	baud  *BaudDetector
	log   *zap.Logger
}

// NewAutoConnector builds a connector; the options are shared with the
// detectors it drives.
func NewAutoConnector(opts ...Option) *AutoConnector {
	d := newDeps(opts)
	return &AutoConnector{
		deps:  d,
		ports: &PortDetector{deps: d, log: d.log.Named("discovery.ports")},
		baud:  &BaudDetector{deps: d, log: d.log.Named("discovery.baud")},
		log:   d.log.Named("discovery.auto"),
	}
}

// Ports returns the port detector this connector uses.
func (a *AutoConnector) Ports() *PortDetector { return a.ports }

// Baud returns the baud detector this connector uses.
func (a *AutoConnector) Baud() *BaudDetector { return a.baud }

type narrator struct {
	res     *Result
	log     *zap.Logger
	verbose bool
}

func (n narrator) say(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n.res.Log = append(n.res.Log, msg)
	if n.verbose {
		n.log.Info(msg)
	} else {
		n.log.Debug(msg)
	}
}

// AutoConnect finds a controller and returns an initialized device for it.
// The budget is checked between candidates only; a probe in flight always
// runs to completion. Cancelling ctx has the same effect as an exhausted
// budget.
func (a *AutoConnector) AutoConnect(ctx context.Context, cfg AutoConfig) (*device.Device, *Result, error) {
	start := time.Now()
	res := &Result{Method: MethodAutoDetected}
	n := narrator{res: res, log: a.log, verbose: cfg.Verbose}
	done := func(dev *device.Device, err error) (*device.Device, *Result, error) {
		res.Elapsed = time.Since(start)
		return dev, res, err
	}

	n.say("Starting auto-connection process")

	if cfg.EnableCaching {
		if entry, ok := a.cache.Lookup(); ok {
			n.say("Trying cached connection: %s at %d baud", entry.Port, entry.BaudRate)
			dev, err := a.tryConnect(entry.Port, entry.BaudRate, res)
			if err == nil {
				res.Method = MethodCached
				n.say("Connected successfully: %s at %d baud", entry.Port, entry.BaudRate)
				return done(dev, nil)
			}
			n.say("Cached connection failed: %v", err)
		}
	}

	n.say("Scanning for compatible ports")
	candidates, err := a.ports.DetectPorts(cfg.Ports)
	if err != nil {
		n.say("Port scan failed: %v", err)
		return done(nil, err)
	}
	n.say("Found %d port candidates", len(candidates))
	if len(candidates) == 0 {
		n.say("No compatible ports found")
		return done(nil, errs.Device("auto_connect", "no compatible serial ports found"))
	}

	for i, c := range candidates {
		if ctx.Err() != nil || time.Since(start) > cfg.MaxDetectionTime {
			n.say("Detection timeout reached")
			break
		}
		name := c.Port.Name
		n.say("Testing port %s: %s", name, c.Reason)
		a.log.Debug("candidate", zap.Int("rank", i+1), zap.String("port", name), zap.Int("score", c.Score))

		if c.Identified {
			baud := RecommendedBaudRate()
			dev, err := a.tryConnect(name, baud, res)
			if err == nil {
				n.say("Connected successfully: %s at %d baud", name, baud)
				a.remember(name, baud, dev)
				return done(dev, nil)
			}
			n.say("Direct connection at %d baud failed: %v", baud, err)
		}

		n.say("Testing baud rates for %s", name)
		baud, ok, err := a.baud.DetectBaudRate(name, cfg.Baud)
		if err != nil {
			return done(nil, err)
		}
		if !ok {
			n.say("No working baud rate found for %s", name)
			continue
		}
		dev, err := a.tryConnect(name, baud, res)
		if err != nil {
			n.say("Connection at %d baud failed for %s: %v", baud, name, err)
			continue
		}
		n.say("Connected successfully: %s at %d baud", name, baud)
		a.remember(name, baud, dev)
		return done(dev, nil)
	}

	n.say("Auto-detection failed for all candidates")
	return done(nil, errs.Device("auto_connect", "no Lumidox II controller found on %d candidate ports", len(candidates)))
}

// ConnectManual opens a session on an explicitly named port.
func (a *AutoConnector) ConnectManual(port string, baud int) (*device.Device, *Result, error) {
	return a.connectDirect(port, baud, MethodManual)
}

// ConnectFallback is ConnectManual recorded as a fallback after a failed
// auto-connect.
func (a *AutoConnector) ConnectFallback(port string, baud int) (*device.Device, *Result, error) {
	return a.connectDirect(port, baud, MethodFallback)
}

func (a *AutoConnector) connectDirect(port string, baud int, m ConnectionMethod) (*device.Device, *Result, error) {
	start := time.Now()
	res := &Result{Method: m}
	n := narrator{res: res, log: a.log}
	n.say("Connecting to %s at %d baud (%s)", port, baud, m)
	dev, err := a.tryConnect(port, baud, res)
	res.Elapsed = time.Since(start)
	if err != nil {
		n.say("Connection failed: %v", err)
		return nil, res, err
	}
	n.say("Connected successfully: %s at %d baud", port, baud)
	return dev, res, nil
}

// tryConnect opens the long-lived session. On success the result is
// filled in; on failure every handle is released.
func (a *AutoConnector) tryConnect(port string, baud int, res *Result) (*device.Device, error) {
	p, err := a.open(port, baud)
	if err != nil {
		a.record("connect", port, baud, false)
		return nil, err
	}
	h, err := protocol.NewHandler(p, protocol.DefaultTimeout, a.handlerOpts...)
	if err != nil {
		p.Close()
		a.record("connect", port, baud, false)
		return nil, err
	}
	dev := device.New(h, a.deviceOpts...)
	if err := dev.Initialize(); err != nil {
		dev.Close()
		a.record("connect", port, baud, false)
		return nil, err
	}
	a.record("connect", port, baud, true)

	res.Success = true
	res.Port = port
	res.BaudRate = baud
	res.Info = dev.Info()
	return dev, nil
}

func (a *AutoConnector) remember(port string, baud int, dev *device.Device) {
	e := CacheEntry{Port: port, BaudRate: baud, LastUsed: time.Now()}
	if info := dev.Info(); info != nil {
		e.DeviceSerial = info.SerialNumber
	}
	a.cache.Store(e)
}

// PortDiagnostics lists every candidate with its reasoning, then every
// visible port in detail.
func (a *AutoConnector) PortDiagnostics() ([]string, error) {
	candidates, err := a.ports.DetectPorts(DefaultPortConfig())
	if err != nil {
		return nil, err
	}
	out := []string{
		"=== Port Diagnostics ===",
		fmt.Sprintf("Found %d port candidates:", len(candidates)),
	}
	for i, c := range candidates {
		out = append(out, fmt.Sprintf("%d. %s - %s", i+1, c.Port.Name, c.Reason))
		if c.Identity != nil {
			if c.Identity.FirmwareVersion != "" {
				out = append(out, "   Firmware: "+c.Identity.FirmwareVersion)
			}
			if c.Identity.ModelNumber != "" {
				out = append(out, "   Model: "+c.Identity.ModelNumber)
			}
		}
	}

	details, err := a.ports.DetailedPortInfo()
	if err != nil {
		return nil, err
	}
	out = append(out, "", "=== Detailed Port Information ===")
	out = append(out, details...)
	return out, nil
}
