// Package prototest provides a scripted stand-in for a Lumidox II controller
// on the other end of a serial line.
package prototest

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// Command is one decoded frame the fake received.
type Command struct {
	Code  string
	Value uint16
}

// Device implements protocol.Port. Each complete frame written to it is
// decoded, logged and answered from Values; codes without a value get no
// reply, which a Transport sees as a timeout.
type Device struct {
	mu sync.Mutex

	Values map[string]int16  // reply value per command code
	Raw    map[string][]byte // raw reply bytes, checked before Values
	Silent bool              // never answer anything

	WriteErr error
	ReadErr  error

	commands []Command
	rx       []byte
	pending  []byte
	timeout  time.Duration
	clears   int
	closed   bool
}

// New returns a Device with no scripted replies.
func New() *Device {
	return &Device{
		Values: make(map[string]int16),
		Raw:    make(map[string][]byte),
	}
}

// NewController returns a Device that behaves like a healthy controller:
// identity strings, stage parameters, and setters that update what the
// matching readers return.
func NewController() *Device {
	d := New()
	d.Set(protocol.CmdFirmwareVersion, 15)
	d.SetString(protocol.ModelCommands, "LDII-365")
	d.SetString(protocol.SerialCommands, "SN2024000042")
	d.SetString(protocol.WavelengthCommands, "365nm")
	d.Set(protocol.CmdReadRemoteMode, 0)
	d.Set(protocol.CmdReadArmCurrent, 50)
	d.Set(protocol.CmdReadFireCurrent, 0)
	for i := 0; i < 5; i++ {
		d.Set(protocol.StageFireCurrentCommands[i], int16(100*(i+1)))
		d.Set(protocol.StageArmCurrentCommands[i], int16(10*(i+1)))
		base := protocol.StagePowerBase[i]
		d.Set(hexCode(base), int16(125*(i+1)))
		d.Set(hexCode(base+1), int16(5*(i+1)))
		d.Set(hexCode(base+2), 1)
		d.Set(hexCode(base+3), 1)
	}
	// Volt limit/start codes partly overlap the wavelength and power
	// codes; only the non-shared ones get their own values.
	d.Set("91", 155)
	d.Set("99", 160)
	d.Set("92", 120)
	d.Set("9a", 125)
	d.Set("79", 140)
	d.Set("7a", 110)
	return d
}

func hexCode(b byte) string { return fmt.Sprintf("%02x", b) }

// Set scripts the reply for code.
func (d *Device) Set(code string, v int16) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Values[code] = v
	return d
}

// SetString scripts one character per command, padding with NULs.
func (d *Device) SetString(codes []string, s string) *Device {
	for i, code := range codes {
		var v int16
		if i < len(s) {
			v = int16(s[i])
		}
		d.Set(code, v)
	}
	return d
}

// Forget removes any scripted reply for code.
func (d *Device) Forget(code string) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Values, code)
	delete(d.Raw, code)
	return d
}

// Frame builds a well-formed response carrying v.
func Frame(v int16) []byte {
	return []byte(fmt.Sprintf("*%04x%c", uint16(v), protocol.EndMarker))
}

func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, fmt.Errorf("prototest: write on closed port")
	}
	if d.WriteErr != nil {
		return 0, d.WriteErr
	}
	d.rx = append(d.rx, p...)
	for {
		i := bytes.IndexByte(d.rx, protocol.Terminator)
		if i < 0 {
			break
		}
		frame := d.rx[:i+1]
		d.rx = d.rx[i+1:]
		d.handle(frame)
	}
	return len(p), nil
}

func (d *Device) handle(frame []byte) {
	if len(frame) < 10 || frame[0] != protocol.StartMarker {
		return
	}
	code := string(frame[1:3])
	n, err := strconv.ParseUint(string(frame[3:7]), 16, 16)
	if err != nil {
		return
	}
	value := uint16(n)
	d.commands = append(d.commands, Command{Code: code, Value: value})

	switch code {
	case protocol.CmdSetMode:
		d.Values[protocol.CmdReadRemoteMode] = int16(value)
	case protocol.CmdSetArmCurrent:
		d.Values[protocol.CmdReadArmCurrent] = int16(value)
	case protocol.CmdSetCurrent:
		d.Values[protocol.CmdReadFireCurrent] = int16(value)
	}

	if d.Silent {
		return
	}
	if raw, ok := d.Raw[code]; ok {
		d.pending = append(d.pending, raw...)
		return
	}
	switch code {
	case protocol.CmdSetMode, protocol.CmdSetArmCurrent, protocol.CmdSetCurrent:
		d.pending = append(d.pending, Frame(int16(value))...)
		return
	}
	if v, ok := d.Values[code]; ok {
		d.pending = append(d.pending, Frame(v)...)
	}
}

// Read hands out queued reply bytes; with nothing queued it behaves like a
// serial read that timed out.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ReadErr != nil {
		return 0, d.ReadErr
	}
	if len(d.pending) == 0 {
		return 0, nil
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = t
	return nil
}

// ReadTimeout returns the last timeout set.
func (d *Device) ReadTimeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeout
}

func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	d.clears++
	return nil
}

func (d *Device) ResetOutputBuffer() error { return nil }

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Clears returns how often the input buffer was reset.
func (d *Device) Clears() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clears
}

// Commands returns a copy of every frame received so far.
func (d *Device) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.commands...)
}

// Count returns how many frames carried code.
func (d *Device) Count(code string) int {
	n := 0
	for _, c := range d.Commands() {
		if c.Code == code {
			n++
		}
	}
	return n
}

// ModeWrites returns the values of every set-mode command in order.
func (d *Device) ModeWrites() []uint16 {
	var out []uint16
	for _, c := range d.Commands() {
		if c.Code == protocol.CmdSetMode {
			out = append(out, c.Value)
		}
	}
	return out
}

// Reset clears the command log.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = nil
}
