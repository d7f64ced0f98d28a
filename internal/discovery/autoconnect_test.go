package discovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/discovery"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/serialport"
)

func quick() discovery.AutoConfig {
	cfg := discovery.QuickAutoConfig()
	cfg.Baud.TestTimeout = 100 * time.Millisecond
	cfg.Ports.IdentificationTimeout = 100 * time.Millisecond
	return cfg
}

func TestAutoConnectNoCandidates(t *testing.T) {
	b := newBus().add(onboard("/dev/ttyS0"), 19200)
	ac := discovery.NewAutoConnector(b.options()...)

	dev, res, err := ac.AutoConnect(context.Background(), quick())
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, errs.ErrDevice)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, []string{
		"Starting auto-connection process",
		"Scanning for compatible ports",
		"Found 0 port candidates",
		"No compatible ports found",
	}, res.Log)
	assert.Empty(t, b.opened(), "nothing is probed without candidates")
}

func TestAutoConnectFastPath(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 19200)
	ac := discovery.NewAutoConnector(b.options()...)

	dev, res, err := ac.AutoConnect(context.Background(), quick())
	require.NoError(t, err)
	require.NotNil(t, dev)
	defer dev.Close()

	assert.True(t, res.Success)
	assert.Equal(t, "/dev/ttyUSB0", res.Port)
	assert.Equal(t, 19200, res.BaudRate)
	assert.Equal(t, discovery.MethodAutoDetected, res.Method)
	require.NotNil(t, res.Info)
	assert.Equal(t, "SN2024000042", res.Info.SerialNumber)
	assert.Equal(t, device.ModeStandby, dev.CurrentMode())

	assert.Contains(t, res.Log, "Testing port /dev/ttyUSB0: Score 80: USB Serial Port, FTDI device, Device responds to Lumidox II protocol")
	assert.Equal(t, "Connected successfully: /dev/ttyUSB0 at 19200 baud", res.Log[len(res.Log)-1])
	assert.NotContains(t, res.Log, "Testing baud rates for /dev/ttyUSB0")

	// One identification probe plus the session.
	assert.Equal(t, []opening{{"/dev/ttyUSB0", 19200}, {"/dev/ttyUSB0", 19200}}, b.opened())
	assert.Equal(t, 1, b.openDevices(), "only the session stays open")
}

func TestAutoConnectFallsBackToBaudDetection(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 9600)
	ac := discovery.NewAutoConnector(b.options()...)

	dev, res, err := ac.AutoConnect(context.Background(), quick())
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, 9600, res.BaudRate)
	assert.Contains(t, res.Log, "Testing baud rates for /dev/ttyUSB0")
	assert.Equal(t, "Connected successfully: /dev/ttyUSB0 at 9600 baud", res.Log[len(res.Log)-1])
	assert.Equal(t, 1, b.openDevices())
}

func TestAutoConnectSkipsDeadCandidate(t *testing.T) {
	b := newBus().
		add(ftdi("/dev/ttyUSB0"), 0).
		add(serialport.PortInfo{Name: "/dev/ttyACM0", IsUSB: true}, 38400)
	ac := discovery.NewAutoConnector(b.options()...)

	dev, res, err := ac.AutoConnect(context.Background(), quick())
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, "/dev/ttyACM0", res.Port)
	assert.Equal(t, 38400, res.BaudRate)
	assert.Contains(t, res.Log, "No working baud rate found for /dev/ttyUSB0")
}

func TestAutoConnectExhausted(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 0).add(ftdi("/dev/ttyUSB1"), 0)
	ac := discovery.NewAutoConnector(b.options()...)

	dev, res, err := ac.AutoConnect(context.Background(), quick())
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, errs.ErrDevice)
	assert.False(t, res.Success)
	assert.Contains(t, res.Log, "Found 2 port candidates")
	assert.Contains(t, res.Log, "No working baud rate found for /dev/ttyUSB1")
	assert.Equal(t, "Auto-detection failed for all candidates", res.Log[len(res.Log)-1])
	assert.Zero(t, b.openDevices())
}

func TestAutoConnectStopsWhenCancelled(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 19200)
	ac := discovery.NewAutoConnector(b.options()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dev, res, err := ac.AutoConnect(ctx, quick())
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, errs.ErrDevice)
	assert.Contains(t, res.Log, "Detection timeout reached")
	assert.NotContains(t, res.Log, "Testing baud rates for /dev/ttyUSB0")
}

func TestAutoConnectStopsWhenBudgetSpent(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 0).add(ftdi("/dev/ttyUSB1"), 19200)
	cfg := quick()
	cfg.MaxDetectionTime = time.Nanosecond
	cfg.Ports.Identify = false

	_, res, err := discovery.NewAutoConnector(b.options()...).AutoConnect(context.Background(), cfg)
	assert.ErrorIs(t, err, errs.ErrDevice)
	assert.Contains(t, res.Log, "Detection timeout reached")
	assert.Empty(t, b.opened())
}

type memCache struct {
	entry  discovery.CacheEntry
	hit    bool
	stored []discovery.CacheEntry
}

func (m *memCache) Lookup() (discovery.CacheEntry, bool) { return m.entry, m.hit }
func (m *memCache) Store(e discovery.CacheEntry)         { m.stored = append(m.stored, e) }

func TestAutoConnectDefaultCacheNeverHits(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 19200)
	dev, res, err := discovery.NewAutoConnector(b.options()...).AutoConnect(context.Background(), quick())
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, discovery.MethodAutoDetected, res.Method)
	for _, line := range res.Log {
		assert.NotContains(t, line, "cached")
	}
}

func TestAutoConnectUsesInstalledCache(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB4"), 19200)
	c := &memCache{hit: true, entry: discovery.CacheEntry{Port: "/dev/ttyUSB4", BaudRate: 19200}}
	opts := append(b.options(), discovery.WithCache(c))

	dev, res, err := discovery.NewAutoConnector(opts...).AutoConnect(context.Background(), quick())
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, discovery.MethodCached, res.Method)
	assert.Len(t, b.opened(), 1, "no scan after a cache hit")
}

func TestAutoConnectStoresSuccessInCache(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 19200)
	c := &memCache{}
	opts := append(b.options(), discovery.WithCache(c))

	dev, _, err := discovery.NewAutoConnector(opts...).AutoConnect(context.Background(), quick())
	require.NoError(t, err)
	defer dev.Close()
	require.Len(t, c.stored, 1)
	assert.Equal(t, "/dev/ttyUSB0", c.stored[0].Port)
	assert.Equal(t, "SN2024000042", c.stored[0].DeviceSerial)
}

func TestConnectManualAndFallback(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 9600)
	ac := discovery.NewAutoConnector(b.options()...)

	dev, res, err := ac.ConnectManual("/dev/ttyUSB0", 9600)
	require.NoError(t, err)
	dev.Close()
	assert.Equal(t, discovery.MethodManual, res.Method)
	assert.True(t, res.Success)

	_, res, err = ac.ConnectFallback("/dev/ttyUSB0", 19200)
	assert.ErrorIs(t, err, errs.ErrProtocol)
	assert.Equal(t, discovery.MethodFallback, res.Method)
	assert.False(t, res.Success)
	assert.Equal(t, 0, b.openDevices())

	_, _, err = ac.ConnectManual("/dev/ttyUSB7", 19200)
	assert.ErrorIs(t, err, errs.ErrSerial)
}

func TestConnectFailuresAreRecorded(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 9600)
	rec := &probeLog{}
	ac := discovery.NewAutoConnector(append(b.options(), discovery.WithProbeRecorder(rec))...)

	_, _, err := ac.ConnectManual("/dev/ttyUSB7", 19200)
	require.Error(t, err)
	_, _, err = ac.ConnectManual("/dev/ttyUSB0", 19200)
	require.Error(t, err)
	dev, _, err := ac.ConnectManual("/dev/ttyUSB0", 9600)
	require.NoError(t, err)
	dev.Close()

	assert.Equal(t, []string{
		"connect /dev/ttyUSB7 19200 false",
		"connect /dev/ttyUSB0 19200 false",
		"connect /dev/ttyUSB0 9600 true",
	}, rec.calls)
}

func TestPortDiagnostics(t *testing.T) {
	b := newBus().add(ftdi("/dev/ttyUSB0"), 19200).add(onboard("/dev/ttyS0"), 0)
	lines, err := discovery.NewAutoConnector(b.options()...).PortDiagnostics()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"=== Port Diagnostics ===",
		"Found 1 port candidates:",
		"1. /dev/ttyUSB0 - Score 80: USB Serial Port, FTDI device, Device responds to Lumidox II protocol",
		"   Firmware: 1.15",
		"   Model: LDII-365",
		"",
		"=== Detailed Port Information ===",
		"/dev/ttyUSB0: USB Serial Port (VID: 0x0403, PID: 0x6001) - FT232R USB UART by FTDI",
		"/dev/ttyS0: Serial Port",
	}, lines)
}

func TestConnectionMethodText(t *testing.T) {
	b, err := discovery.MethodFallback.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "fallback", string(b))
	assert.Equal(t, "auto-detected", discovery.MethodAutoDetected.String())
}
