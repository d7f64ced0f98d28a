// Package discovery finds the serial port and baud rate a Lumidox II
// controller answers on and turns that into a live device session.
//
// Every probe opens its own port handle and closes it before the next one.
// Only the final session handle outlives a detection call.
package discovery

import (
	"time"

	"go.uber.org/zap"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
	"github.com/ryancinsight/Apollo2-sub001/internal/serialport"
)

// Opener opens a raw port at baud.
type Opener func(name string, baud int) (protocol.Port, error)

// Enumerator lists the ports visible to the OS.
type Enumerator func() ([]serialport.PortInfo, error)

// ProbeRecorder is told about every identification attempt.
type ProbeRecorder interface {
	ObserveProbe(stage, port string, baud int, ok bool)
}

type deps struct {
	enumerate   Enumerator
	open        Opener
	log         *zap.Logger
	handlerOpts []protocol.Option
	deviceOpts  []device.Option
	recorder    ProbeRecorder
	cache       ConnectionCache
}

// Option configures the detectors and the auto-connector.
type Option func(*deps)

// WithEnumerator replaces the OS port enumeration.
func WithEnumerator(e Enumerator) Option { return func(d *deps) { d.enumerate = e } }

// WithOpener replaces how ports are opened.
func WithOpener(o Opener) Option { return func(d *deps) { d.open = o } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *deps) {
		if l != nil {
			d.log = l
		}
	}
}

// WithHandlerOptions are applied to every protocol handler built, probes
// included.
func WithHandlerOptions(opts ...protocol.Option) Option {
	return func(d *deps) { d.handlerOpts = append(d.handlerOpts, opts...) }
}

// WithDeviceOptions are applied to the device built for a live session.
func WithDeviceOptions(opts ...device.Option) Option {
	return func(d *deps) { d.deviceOpts = append(d.deviceOpts, opts...) }
}

// WithProbeRecorder registers r for probe outcomes.
func WithProbeRecorder(r ProbeRecorder) Option { return func(d *deps) { d.recorder = r } }

// WithCache replaces the connection cache. The default never hits.
func WithCache(c ConnectionCache) Option {
	return func(d *deps) {
		if c != nil {
			d.cache = c
		}
	}
}

func newDeps(opts []Option) deps {
	d := deps{
		enumerate: serialport.List,
		open:      serialport.Opener,
		log:       zap.NewNop(),
		cache:     noCache{},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d *deps) record(stage, port string, baud int, ok bool) {
	if d.recorder != nil {
		d.recorder.ObserveProbe(stage, port, baud, ok)
	}
}

// probe opens port at baud, runs fn on a short-lived handler and releases
// everything before returning.
func (d *deps) probe(port string, baud int, timeout time.Duration, fn func(*protocol.Handler) error) error {
	p, err := d.open(port, baud)
	if err != nil {
		return err
	}
	h, err := protocol.NewHandler(p, timeout, d.handlerOpts...)
	if err != nil {
		p.Close()
		return err
	}
	defer h.Close()
	return fn(h)
}
