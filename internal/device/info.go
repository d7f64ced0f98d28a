package device

import (
	"fmt"
	"strings"

	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// Commander performs a single command round trip. *protocol.Handler is the
// production implementation.
type Commander interface {
	SendCommand(code string, value uint16) (int16, error)
}

// Info identifies a connected controller.
type Info struct {
	FirmwareVersion string `json:"firmwareVersion"`
	ModelNumber     string `json:"modelNumber"`
	SerialNumber    string `json:"serialNumber"`
	Wavelength      string `json:"wavelength"`
	MaxCurrentMA    uint16 `json:"maxCurrentMa"`
}

// ReadInfo reads the full identity block. Any failing read fails the whole.
func ReadInfo(c Commander) (*Info, error) {
	fw, err := ReadFirmwareVersion(c)
	if err != nil {
		return nil, fmt.Errorf("read firmware version: %w", err)
	}
	model, err := readString(c, protocol.ModelCommands)
	if err != nil {
		return nil, fmt.Errorf("read model number: %w", err)
	}
	serial, err := readString(c, protocol.SerialCommands)
	if err != nil {
		return nil, fmt.Errorf("read serial number: %w", err)
	}
	wl, err := readString(c, protocol.WavelengthCommands)
	if err != nil {
		return nil, fmt.Errorf("read wavelength: %w", err)
	}
	maxMA, err := ReadMaxCurrent(c)
	if err != nil {
		return nil, fmt.Errorf("read max current: %w", err)
	}
	return &Info{
		FirmwareVersion: fw,
		ModelNumber:     model,
		SerialNumber:    serial,
		Wavelength:      wl,
		MaxCurrentMA:    maxMA,
	}, nil
}

// ReadFirmwareVersion returns the firmware as "1.<minor>".
func ReadFirmwareVersion(c Commander) (string, error) {
	v, err := c.SendCommand(protocol.CmdFirmwareVersion, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("1.%d", v), nil
}

// ReadMaxCurrent returns the highest current the controller will accept.
func ReadMaxCurrent(c Commander) (uint16, error) {
	v, err := c.SendCommand(protocol.CmdMaxCurrent, 0)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// readString issues one command per character. Values outside 1-255,
// NUL padding included, are skipped.
func readString(c Commander, codes []string) (string, error) {
	var sb strings.Builder
	for _, code := range codes {
		v, err := c.SendCommand(code, 0)
		if err != nil {
			return "", err
		}
		if v > 0 && v < 256 {
			sb.WriteByte(byte(v))
		}
	}
	return sb.String(), nil
}

// Identity is what a short probe learned about whatever answered on a port.
// Empty fields were not retrieved.
type Identity struct {
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
	ModelNumber     string `json:"modelNumber,omitempty"`
	SerialNumber    string `json:"serialNumber,omitempty"`
}

// Compatible reports whether the peer speaks the protocol at all.
func (id Identity) Compatible() bool { return id.FirmwareVersion != "" }

// Identify reads firmware, model and serial independently so a partial
// answer still tells the caller something. The error is the firmware read
// failure; without firmware nothing else is attempted.
func Identify(c Commander) (Identity, error) {
	var id Identity
	fw, err := ReadFirmwareVersion(c)
	if err != nil {
		return id, err
	}
	id.FirmwareVersion = fw
	if model, err := readString(c, protocol.ModelCommands); err == nil {
		id.ModelNumber = model
	}
	if serial, err := readString(c, protocol.SerialCommands); err == nil {
		id.SerialNumber = serial
	}
	return id, nil
}
