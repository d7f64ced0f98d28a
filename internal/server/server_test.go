package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryancinsight/Apollo2-sub001/internal/config"
	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/metrics"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol/prototest"
)

type rig struct {
	srv  *Server
	fake *prototest.Device
	dev  *device.Device
	m    *metrics.Metrics
	cfg  *config.Config
	http *httptest.Server
}

func newRig(t *testing.T, tweak func(c *config.Config)) *rig {
	t.Helper()
	fake := prototest.NewController()
	h, err := protocol.NewHandler(fake, time.Second)
	require.NoError(t, err)
	dev := device.New(h, device.WithSleep(func(time.Duration) {}))
	require.NoError(t, dev.Initialize())

	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"), nil, nil)
	require.NoError(t, err)
	cfg.Server.ControlIntervalMS = 0
	if tweak != nil {
		tweak(cfg)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := New(cfg, dev, WithMetrics(m, reg))
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &rig{srv: srv, fake: fake, dev: dev, m: m, cfg: cfg, http: hs}
}

func (r *rig) post(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(r.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (r *rig) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(r.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestStatusEndpoint(t *testing.T) {
	r := newRig(t, nil)
	resp, body := r.get(t, "/api/status")
	require.Equal(t, 200, resp.StatusCode)

	var st map[string]any
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "Standby", st["mode"])
	assert.Equal(t, "Remote Standby (on, output off)", st["description"])
	assert.Equal(t, 50.0, st["armCurrentMa"])
	assert.Equal(t, "good", st["health"].(map[string]any)["status"])
}

func TestInfoEndpoint(t *testing.T) {
	r := newRig(t, nil)
	resp, body := r.get(t, "/api/info")
	require.Equal(t, 200, resp.StatusCode)

	var info struct {
		Device struct {
			ModelNumber  string `json:"modelNumber"`
			MaxCurrentMA int    `json:"maxCurrentMa"`
		} `json:"device"`
		Mode             string   `json:"mode"`
		ValidTransitions []string `json:"validTransitions"`
	}
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "LDII-365", info.Device.ModelNumber)
	assert.Equal(t, 500, info.Device.MaxCurrentMA)
	assert.Equal(t, "Standby", info.Mode)
	assert.Contains(t, info.ValidTransitions, "Armed")
}

func TestControlFireStage(t *testing.T) {
	r := newRig(t, nil)
	resp, body := r.post(t, "/api/control", `{"action":"fire","stage":2}`)
	require.Equal(t, 200, resp.StatusCode, string(body))

	var reply Reply
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.True(t, reply.OK)
	assert.Equal(t, device.ModeRemote, r.dev.CurrentMode())
	assert.Equal(t, 1, r.fake.Count(protocol.CmdSetCurrent))
}

func TestControlErrors(t *testing.T) {
	r := newRig(t, nil)

	resp, body := r.post(t, "/api/control", `{"action":"dance"}`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, string(body), "unknown action")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.m.ControlRejected.WithLabelValues("unknown_action")))

	resp, body = r.post(t, "/api/control", `{"action":"current","current":0}`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, string(body), "non-zero")

	resp, _ = r.post(t, "/api/control", `{"action":"fire","stage":9}`)
	assert.Equal(t, 400, resp.StatusCode)

	resp, _ = r.post(t, "/api/control", `not json`)
	assert.Equal(t, 400, resp.StatusCode)

	r.fake.Silent = true
	resp, body = r.post(t, "/api/control", `{"action":"off"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "protocol error")
}

func TestControlArmAndOff(t *testing.T) {
	r := newRig(t, nil)

	resp, _ := r.post(t, "/api/control", `{"action":"arm"}`)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, device.ModeArmed, r.dev.CurrentMode())

	resp, _ = r.post(t, "/api/control", `{"action":"off"}`)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, device.ModeStandby, r.dev.CurrentMode())
}

func TestControlRateLimited(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Server.ControlIntervalMS = 60_000 })

	resp, _ := r.post(t, "/api/control", `{"action":"standby"}`)
	require.Equal(t, 200, resp.StatusCode)
	resp, body := r.post(t, "/api/control", `{"action":"arm"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), "rate limited")
	assert.Equal(t, device.ModeStandby, r.dev.CurrentMode(), "a refused command never reaches the device")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.m.ControlRejected.WithLabelValues("rate_limited")))
}

func TestConfigEndpoint(t *testing.T) {
	r := newRig(t, nil)

	resp, body := r.get(t, "/api/config")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `"listenAddr":":8080"`)

	resp, _ = r.post(t, "/api/config", `{"journal":{"maxRows":500}}`)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 500, r.cfg.Journal.MaxRows)

	reloaded, err := config.Load(r.cfg.Path(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 500, reloaded.Journal.MaxRows)

	resp, _ = r.post(t, "/api/config", `{"serial":{"timeoutMs":-5}}`)
	assert.Equal(t, 400, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, r.http.URL+"/api/config", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, 405, del.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRig(t, nil)
	r.post(t, "/api/control", `{"action":"dance"}`)

	resp, body := r.get(t, "/metrics")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `lumidox_control_rejected_total{reason="unknown_action"} 1`)
}

func readFrame(t *testing.T, c *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		var f Frame
		require.NoError(t, json.NewDecoder(bytes.NewReader(data)).Decode(&f))
		if match(f) {
			return f
		}
	}
}

func TestWebSocketStatusAndControl(t *testing.T) {
	r := newRig(t, nil)
	url := "ws" + strings.TrimPrefix(r.http.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	first := readFrame(t, c, func(f Frame) bool { return f.Status != nil })
	assert.Equal(t, device.ModeStandby, first.Status.Mode)

	require.NoError(t, c.WriteJSON(ControlMessage{Action: "fire", Stage: 1}))
	reply := readFrame(t, c, func(f Frame) bool { return f.Reply != nil })
	assert.True(t, reply.Reply.OK, reply.Reply.Error)
	assert.Equal(t, "fire", reply.Reply.Action)

	after := readFrame(t, c, func(f Frame) bool { return f.Status != nil })
	assert.Equal(t, device.ModeRemote, after.Status.Mode)
	require.NotNil(t, after.Status.FireCurrentMA)
	assert.Equal(t, uint16(100), *after.Status.FireCurrentMA)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{")))
	bad := readFrame(t, c, func(f Frame) bool { return f.Reply != nil })
	assert.False(t, bad.Reply.OK)
	assert.Equal(t, "invalid input", bad.Reply.Kind)
}

func TestBroadcastSkipsDeviceWithoutClients(t *testing.T) {
	r := newRig(t, nil)
	before := len(r.fake.Commands())
	r.srv.broadcastStatus()
	assert.Equal(t, before, len(r.fake.Commands()))
}
