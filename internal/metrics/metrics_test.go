package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol/prototest"
)

func TestObserveExchange(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveExchange(protocol.Exchange{Code: "02", Result: 15, Duration: 12 * time.Millisecond})
	m.ObserveExchange(protocol.Exchange{Code: "02", Err: errs.Protocol("send_command", "no response")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("02", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("02", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandErrors.WithLabelValues("protocol error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CommandDuration))
}

func TestHandlerFeedsMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	h, err := protocol.NewHandler(prototest.NewController(), time.Second, protocol.WithObserver(m))
	require.NoError(t, err)
	defer h.Close()

	_, err = h.SendCommand(protocol.CmdFirmwareVersion, 0)
	require.NoError(t, err)
	_, err = h.SendCommand("ee", 0)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("02", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("ee", "error")))
}

func TestTransitionsAndMode(t *testing.T) {
	m := New(prometheus.NewRegistry())
	assert.Equal(t, -1.0, testutil.ToFloat64(m.Mode))

	m.ObserveTransition(device.ModeUnknown, device.ModeStandby)
	m.ObserveTransition(device.ModeStandby, device.ModeArmed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Mode))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("Unknown", "Standby")))
}

func TestObserveProbe(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveProbe("baud", "/dev/ttyUSB0", 9600, true)
	m.ObserveProbe("baud", "/dev/ttyUSB0", 19200, false)
	m.ObserveProbe("baud", "/dev/ttyUSB1", 19200, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Probes.WithLabelValues("baud", "9600", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Probes.WithLabelValues("baud", "19200", "error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.ObserveTransition(device.ModeStandby, device.ModeArmed)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(body, `lumidox_mode_transitions_total{from="Standby",to="Armed"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
