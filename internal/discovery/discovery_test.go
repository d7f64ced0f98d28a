package discovery_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/discovery"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol/prototest"
	"github.com/ryancinsight/Apollo2-sub001/internal/serialport"
)

type opening struct {
	port string
	baud int
}

// bus is a fake set of serial ports. Each port answers like a controller
// at exactly one baud rate and stays silent at every other rate.
type bus struct {
	mu      sync.Mutex
	ports   []serialport.PortInfo
	rates   map[string]int
	script  map[string]func() *prototest.Device
	opens   []opening
	devices []*prototest.Device
	listErr error
}

func newBus() *bus {
	return &bus{rates: map[string]int{}, script: map[string]func() *prototest.Device{}}
}

func (b *bus) add(p serialport.PortInfo, baud int) *bus {
	b.ports = append(b.ports, p)
	b.rates[p.Name] = baud
	return b
}

func (b *bus) enumerate() ([]serialport.PortInfo, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]serialport.PortInfo(nil), b.ports...), nil
}

func (b *bus) open(name string, baud int) (protocol.Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens = append(b.opens, opening{name, baud})
	rate, ok := b.rates[name]
	if !ok {
		return nil, errs.Serial("open", fmt.Errorf("%s: no such file or directory", name))
	}
	var d *prototest.Device
	switch {
	case b.script[name] != nil:
		d = b.script[name]()
	case rate == baud:
		d = prototest.NewController()
	default:
		d = prototest.New()
		d.Silent = true
	}
	b.devices = append(b.devices, d)
	return d, nil
}

func (b *bus) opened() []opening {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]opening(nil), b.opens...)
}

// openDevices counts fakes nobody closed.
func (b *bus) openDevices() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, d := range b.devices {
		if !d.Closed() {
			n++
		}
	}
	return n
}

func (b *bus) options() []discovery.Option {
	return []discovery.Option{
		discovery.WithEnumerator(b.enumerate),
		discovery.WithOpener(b.open),
		discovery.WithDeviceOptions(device.WithSleep(func(time.Duration) {})),
	}
}

func ftdi(name string) serialport.PortInfo {
	return serialport.PortInfo{
		Name:         name,
		IsUSB:        true,
		VID:          0x0403,
		PID:          0x6001,
		Product:      "FT232R USB UART",
		Manufacturer: "FTDI",
	}
}

func onboard(name string) serialport.PortInfo {
	return serialport.PortInfo{Name: name}
}

type probeLog struct {
	mu    sync.Mutex
	calls []string
}

func (p *probeLog) ObserveProbe(stage, port string, baud int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf("%s %s %d %v", stage, port, baud, ok))
}
