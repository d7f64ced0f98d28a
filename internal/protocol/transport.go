package protocol

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
)

// Port is the byte stream a Transport drives. go.bug.st/serial ports satisfy
// it directly; a Read that times out returns (0, nil).
type Port interface {
	io.ReadWriter
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// LineSettings describes how a port was opened.
type LineSettings struct {
	Name        string `json:"name"`
	BaudRate    int    `json:"baudRate"`
	DataBits    int    `json:"dataBits"`
	StopBits    string `json:"stopBits"`
	Parity      string `json:"parity"`
	FlowControl string `json:"flowControl"`
}

// Ports that know their own settings implement these.
type (
	settingsReporter interface{ LineSettings() LineSettings }
	timeoutReporter  interface{ ReadTimeout() time.Duration }
)

// Transport moves raw frames over a Port. It knows where frames end and
// nothing else about the protocol.
type Transport struct {
	port    Port
	timeout time.Duration
	closed  bool
}

// NewTransport applies timeout to p. Zero and anything above MaxTimeout are
// rejected. When the port can report its timeout back, the two must agree.
func NewTransport(p Port, timeout time.Duration) (*Transport, error) {
	if timeout <= 0 {
		return nil, errs.Invalid("transport", "timeout must be positive, got %v", timeout)
	}
	if timeout > MaxTimeout {
		return nil, errs.Invalid("transport", "timeout %v exceeds maximum %v", timeout, MaxTimeout)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		return nil, errs.Serial("set timeout", err)
	}
	if tr, ok := p.(timeoutReporter); ok {
		if got := tr.ReadTimeout(); got != timeout {
			return nil, errs.Serial("set timeout", fmt.Errorf("port reports %v after setting %v", got, timeout))
		}
	}
	return &Transport{port: p, timeout: timeout}, nil
}

// Timeout returns the configured read timeout.
func (t *Transport) Timeout() time.Duration { return t.timeout }

// Write sends frame in full.
func (t *Transport) Write(frame []byte) error {
	n, err := t.port.Write(frame)
	if err != nil {
		return errs.IO("write", err)
	}
	if n != len(frame) {
		return errs.IO("write", fmt.Errorf("short write: %d of %d bytes", n, len(frame)))
	}
	return nil
}

// ReadFrame reads one byte at a time until the END marker arrives or a read
// returns nothing. The END byte is kept in the returned frame.
func (t *Transport) ReadFrame() ([]byte, error) {
	var (
		buf  = make([]byte, 1)
		resp = make([]byte, 0, 8)
	)
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return resp, errs.IO("read", err)
		}
		if n == 0 {
			break
		}
		resp = append(resp, buf[0])
		if buf[0] == EndMarker {
			break
		}
		if len(resp) >= maxResponseLen {
			return resp, errs.Protocol("read", "no end marker within %d bytes", maxResponseLen)
		}
	}
	return resp, nil
}

// Flush discards pending input and output.
func (t *Transport) Flush() error {
	if err := t.port.ResetInputBuffer(); err != nil {
		return errs.IO("clear input", err)
	}
	if err := t.port.ResetOutputBuffer(); err != nil {
		return errs.IO("clear output", err)
	}
	return nil
}

// Settings returns what the port reports about itself, falling back to the
// protocol defaults for ports that do not.
func (t *Transport) Settings() LineSettings {
	if sr, ok := t.port.(settingsReporter); ok {
		return sr.LineSettings()
	}
	return LineSettings{
		BaudRate:    DefaultBaudRate,
		DataBits:    8,
		StopBits:    "1",
		Parity:      "none",
		FlowControl: "none",
	}
}

// Ready reports whether the transport still owns an open port.
func (t *Transport) Ready() bool { return !t.closed }

// Close releases the port. Further calls are no-ops.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.port.Close()
}
