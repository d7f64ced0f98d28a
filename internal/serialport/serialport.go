// Package serialport opens and enumerates real serial ports through
// go.bug.st/serial.
package serialport

import (
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// Port is an open serial port that remembers how it was configured, so a
// protocol.Handler can report line settings and confirm its timeout.
type Port struct {
	serial.Port

	mu       sync.Mutex
	settings protocol.LineSettings
	timeout  time.Duration
}

// Open opens name at baud, 8N1 without flow control.
func Open(name string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(name, mode)
	if err != nil {
		return nil, errs.Serial("open "+name, err)
	}
	return &Port{
		Port: sp,
		settings: protocol.LineSettings{
			Name:        name,
			BaudRate:    baud,
			DataBits:    mode.DataBits,
			StopBits:    "1",
			Parity:      "none",
			FlowControl: "none",
		},
	}, nil
}

// Opener adapts Open to the signature discovery uses.
func Opener(name string, baud int) (protocol.Port, error) {
	p, err := Open(name, baud)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetReadTimeout applies t and records it on success.
func (p *Port) SetReadTimeout(t time.Duration) error {
	if err := p.Port.SetReadTimeout(t); err != nil {
		return err
	}
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

// ReadTimeout returns the last timeout applied successfully.
func (p *Port) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

// LineSettings reports the mode the port was opened with.
func (p *Port) LineSettings() protocol.LineSettings {
	return p.settings
}
