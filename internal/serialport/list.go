package serialport

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
)

// PortInfo describes one OS-visible serial port.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"isUsb"`
	VID          uint16 `json:"vid,omitempty"`
	PID          uint16 `json:"pid,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Product      string `json:"product,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// sysfsRoot is where USB descriptors are looked up on Linux.
var sysfsRoot = "/sys"

// List enumerates serial ports with their USB descriptors. If the detailed
// enumerator is unavailable it falls back to bare port names.
func List() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		names, nerr := serial.GetPortsList()
		if nerr != nil {
			return nil, errs.Serial("enumerate", err)
		}
		ports := make([]PortInfo, 0, len(names))
		for _, n := range names {
			ports = append(ports, PortInfo{Name: n})
		}
		return ports, nil
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		}
		if d.IsUSB {
			info.VID = parseID(d.VID)
			info.PID = parseID(d.PID)
			info.Manufacturer = usbManufacturer(d.Name)
		}
		ports = append(ports, info)
	}
	return ports, nil
}

func parseID(s string) uint16 {
	n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}

// usbManufacturer walks up from /sys/class/tty/<name>/device to the USB
// device directory and reads its manufacturer string. Empty when absent.
func usbManufacturer(portName string) string {
	link := filepath.Join(sysfsRoot, "class", "tty", filepath.Base(portName), "device")
	dir, err := filepath.EvalSymlinks(link)
	if err != nil {
		return ""
	}
	// ttyUSB: device -> .../<iface>/ttyUSB0, ttyACM: device -> .../<iface>
	for i := 0; i < 3; i++ {
		if s := readSysfsFile(filepath.Join(dir, "manufacturer")); s != "" {
			return s
		}
		dir = filepath.Dir(dir)
	}
	return ""
}

func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
