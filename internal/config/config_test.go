package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryancinsight/Apollo2-sub001/internal/discovery"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 19200, cfg.Serial.BaudRate)
	assert.Equal(t, time.Second, cfg.SerialTimeout())
	assert.True(t, cfg.Serial.AutoConnect)
	assert.True(t, cfg.Device.OptimizeTransitions)
	assert.Equal(t, 100_000, cfg.Journal.MaxRows)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", `
serial:
  port: /dev/ttyUSB3
  baud_rate: 9600
  timeout_ms: 2500
  preset: thorough
device:
  optimize_transitions: false
detection:
  preferred_vids: [1027, 6790]
  usb_only: false
journal:
  enabled: true
  max_rows: 10
`)
	cfg, err := Load(p, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, 2500*time.Millisecond, cfg.SerialTimeout())
	assert.False(t, cfg.Device.OptimizeTransitions)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, 10, cfg.Journal.MaxRows)
	// untouched sections keep defaults
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)

	pc := cfg.PortDetection()
	assert.Equal(t, []uint16{0x0403, 0x1a86}, pc.PreferredVIDs)
	assert.False(t, pc.USBOnly)
	assert.True(t, pc.Identify)
	assert.Equal(t, discovery.ThoroughBaudConfig(), cfg.BaudDetection())
}

func TestLoadMalformedYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", "serial: [unclosed")
	_, err := Load(p, nil, nil)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LUMIDOX_SERIAL_PORT", "/dev/ttyUSB7")
	t.Setenv("LUMIDOX_SERIAL_BAUD_RATE", "38400")
	t.Setenv("LUMIDOX_DEVICE_OPTIMIZE_TRANSITIONS", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"), NewOverrides(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB7", cfg.Serial.Port)
	assert.Equal(t, 38400, cfg.Serial.BaudRate)
	assert.False(t, cfg.Device.OptimizeTransitions)
}

func TestDotEnvNextToConfig(t *testing.T) {
	t.Setenv("LUMIDOX_SERIAL_PRESET", "")
	t.Setenv("LUMIDOX_LOGGING_LEVEL", "warn")

	dir := t.TempDir()
	writeFile(t, dir, ".env", "LUMIDOX_SERIAL_PRESET=quick\nLUMIDOX_LOGGING_LEVEL=\"debug\"\n")

	cfg, err := Load(filepath.Join(dir, "config.yaml"), NewOverrides(), nil)
	require.NoError(t, err)
	assert.Equal(t, PresetQuick, cfg.Serial.Preset)
	assert.Equal(t, "warn", cfg.Logging.Level, "real environment wins over .env")
	assert.Equal(t, discovery.QuickAutoConfig().MaxDetectionTime, cfg.AutoConnect().MaxDetectionTime)
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("LUMIDOX_SERIAL_PORT", "/dev/from-env")
	t.Setenv("LUMIDOX_SERIAL_BAUD_RATE", "4800")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("port", "", "")
	fs.Int("baud", 19200, "")
	require.NoError(t, fs.Parse([]string{"--port=/dev/from-flag"}))

	o := NewOverrides()
	require.NoError(t, o.BindFlag(KeyPort, fs.Lookup("port")))
	require.NoError(t, o.BindFlag(KeyBaudRate, fs.Lookup("baud")))

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"), o, nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/from-flag", cfg.Serial.Port)
	assert.Equal(t, 4800, cfg.Serial.BaudRate, "an unset flag does not mask the environment")
}

func TestUnsetFlagKeepsFileValue(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", "serial:\n  port: /dev/from-file\n")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("port", "", "")
	require.NoError(t, fs.Parse(nil))

	o := NewOverrides()
	require.NoError(t, o.BindFlag(KeyPort, fs.Lookup("port")))
	cfg, err := Load(p, o, nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/from-file", cfg.Serial.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"minimum timeout", func(c *Config) { c.Serial.TimeoutMS = 1 }, true},
		{"maximum timeout", func(c *Config) { c.Serial.TimeoutMS = 30_000 }, true},
		{"zero timeout", func(c *Config) { c.Serial.TimeoutMS = 0 }, false},
		{"timeout above max", func(c *Config) { c.Serial.TimeoutMS = 30_001 }, false},
		{"zero baud", func(c *Config) { c.Serial.BaudRate = 0 }, false},
		{"unknown preset", func(c *Config) { c.Serial.Preset = "fast" }, false},
		{"bad probe rate", func(c *Config) { c.Detection.BaudRates = []int{9600, -1} }, false},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"negative journal rows", func(c *Config) { c.Journal.MaxRows = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errs.ErrConfig)
			}
		})
	}
}

func TestAutoConnectPresets(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, discovery.DefaultAutoConfig(), c.AutoConnect())

	c.Serial.Preset = PresetQuick
	assert.Equal(t, discovery.QuickAutoConfig(), c.AutoConnect())

	c.Serial.Preset = PresetThorough
	assert.Equal(t, discovery.ThoroughAutoConfig(), c.AutoConnect())
}

func TestDetectionRefinesPreset(t *testing.T) {
	no := false
	c := DefaultConfig()
	c.Serial.Preset = PresetQuick
	c.Serial.Verbose = true
	c.Detection = DetectionConfig{
		PreferredPIDs:           []uint16{0x6001},
		Identify:                &no,
		IdentificationTimeoutMS: 500,
		BaudRates:               []int{115200},
		AttemptsPerRate:         4,
		TestTimeoutMS:           300,
		Comprehensive:           &no,
		MaxDetectionTimeMS:      5000,
	}

	ac := c.AutoConnect()
	assert.True(t, ac.Verbose)
	assert.Equal(t, 5*time.Second, ac.MaxDetectionTime)
	assert.Equal(t, []uint16{0x0403}, ac.Ports.PreferredVIDs)
	assert.Equal(t, []uint16{0x6001}, ac.Ports.PreferredPIDs)
	assert.False(t, ac.Ports.Identify)
	assert.True(t, ac.Ports.USBOnly)
	assert.Equal(t, 500*time.Millisecond, ac.Ports.IdentificationTimeout)
	assert.Equal(t, []int{115200}, ac.Baud.Rates)
	assert.Equal(t, 4, ac.Baud.AttemptsPerRate)
	assert.Equal(t, 300*time.Millisecond, ac.Baud.TestTimeout)
	assert.False(t, ac.Baud.Comprehensive)
}

func TestSaveAndReload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(p, nil, nil)
	require.NoError(t, err)
	cfg.Serial.Port = "/dev/ttyUSB2"
	cfg.Journal.Enabled = true
	require.NoError(t, cfg.Save())
	assert.Equal(t, p, cfg.Path())

	again, err := Load(p, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB2", again.Serial.Port)
	assert.True(t, again.Journal.Enabled)
	assert.Equal(t, cfg.Server, again.Server)
}

func TestUpdateFromJSONMerges(t *testing.T) {
	c := DefaultConfig()
	c.Serial.Port = "/dev/ttyUSB0"

	require.NoError(t, c.UpdateFromJSON([]byte(`{"serial":{"baudRate":9600},"server":{"listenAddr":":9090"}}`)))
	assert.Equal(t, 9600, c.Serial.BaudRate)
	assert.Equal(t, "/dev/ttyUSB0", c.Serial.Port, "fields absent from the patch survive")
	assert.Equal(t, ":9090", c.Server.ListenAddr)
	assert.Equal(t, 500, c.Server.StatusIntervalMS)

	var out map[string]any
	b, err := c.ToJSON()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Contains(t, out, "detection")
}

func TestUpdateFromJSONRejectsInvalid(t *testing.T) {
	c := DefaultConfig()
	err := c.UpdateFromJSON([]byte(`{"serial":{"timeoutMs":0}}`))
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Equal(t, 1000, c.Serial.TimeoutMS, "a rejected update changes nothing")

	assert.ErrorIs(t, c.UpdateFromJSON([]byte(`not json`)), errs.ErrConfig)
}
