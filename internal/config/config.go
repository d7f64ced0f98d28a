package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// DefaultPath is where the CLI looks for its config file.
const DefaultPath = "/etc/lumidox/config.yaml"

// Presets accepted by serial.preset.
const (
	PresetDefault  = "default"
	PresetQuick    = "quick"
	PresetThorough = "thorough"
)

// Config holds all controller configuration.
type Config struct {
	mu sync.RWMutex

	Serial    SerialConfig    `yaml:"serial" json:"serial"`
	Device    DeviceConfig    `yaml:"device" json:"device"`
	Detection DetectionConfig `yaml:"detection" json:"detection"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Journal   JournalConfig   `yaml:"journal" json:"journal"`
	Server    ServerConfig    `yaml:"server" json:"server"`

	path string // file path for save/load
}

type SerialConfig struct {
	Port        string `yaml:"port" json:"port"` // empty means auto-detect
	BaudRate    int    `yaml:"baud_rate" json:"baudRate"`
	TimeoutMS   int    `yaml:"timeout_ms" json:"timeoutMs"`
	AutoConnect bool   `yaml:"auto_connect" json:"autoConnect"`
	Preset      string `yaml:"preset" json:"preset"` // "default", "quick" or "thorough"
	Verbose     bool   `yaml:"verbose" json:"verbose"`
}

type DeviceConfig struct {
	OptimizeTransitions bool `yaml:"optimize_transitions" json:"optimizeTransitions"`
}

// DetectionConfig refines the selected preset. Zero values and nil
// pointers leave the preset's value alone.
type DetectionConfig struct {
	PreferredVIDs           []uint16 `yaml:"preferred_vids" json:"preferredVids"`
	PreferredPIDs           []uint16 `yaml:"preferred_pids" json:"preferredPids"`
	USBOnly                 *bool    `yaml:"usb_only,omitempty" json:"usbOnly,omitempty"`
	Identify                *bool    `yaml:"identify,omitempty" json:"identify,omitempty"`
	IdentificationTimeoutMS int      `yaml:"identification_timeout_ms,omitempty" json:"identificationTimeoutMs,omitempty"`
	BaudRates               []int    `yaml:"baud_rates,omitempty" json:"baudRates,omitempty"`
	AttemptsPerRate         int      `yaml:"attempts_per_rate,omitempty" json:"attemptsPerRate,omitempty"`
	TestTimeoutMS           int      `yaml:"test_timeout_ms,omitempty" json:"testTimeoutMs,omitempty"`
	Comprehensive           *bool    `yaml:"comprehensive,omitempty" json:"comprehensive,omitempty"`
	MaxDetectionTimeMS      int      `yaml:"max_detection_time_ms,omitempty" json:"maxDetectionTimeMs,omitempty"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format     string `yaml:"format" json:"format"` // console or json
	File       string `yaml:"file" json:"file"`     // empty disables the file sink
	MaxSizeMB  int    `yaml:"max_size_mb" json:"maxSizeMb"`
	MaxBackups int    `yaml:"max_backups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"maxAgeDays"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	MaxRows int    `yaml:"max_rows" json:"maxRows"`
}

type ServerConfig struct {
	ListenAddr        string `yaml:"listen_addr" json:"listenAddr"`
	StatusIntervalMS  int    `yaml:"status_interval_ms" json:"statusIntervalMs"`
	ControlIntervalMS int    `yaml:"control_interval_ms" json:"controlIntervalMs"` // min gap between control commands
	MetricsPath       string `yaml:"metrics_path" json:"metricsPath"`
}

// DefaultConfig returns a config with the controller's factory settings.
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			BaudRate:    protocol.DefaultBaudRate,
			TimeoutMS:   int(protocol.DefaultTimeout / time.Millisecond),
			AutoConnect: true,
			Preset:      PresetDefault,
		},
		Device: DeviceConfig{
			OptimizeTransitions: true,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "/var/log/lumidox",
			MaxRows: 100_000,
		},
		Server: ServerConfig{
			ListenAddr:        ":8080",
			StatusIntervalMS:  500,
			ControlIntervalMS: 250,
			MetricsPath:       "/metrics",
		},
	}
}

// Load reads config from a YAML file, then merges .env files and applies
// environment and flag overrides from v. A missing file means defaults; a
// malformed one is an error.
func Load(path string, v *Overrides, log *zap.Logger) (*Config, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config")

	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info("no config file, using defaults", zap.String("path", path))
	case err != nil:
		return nil, errs.Config("load", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.Config("load", fmt.Errorf("parse %s: %w", path, err))
		}
		log.Info("loaded", zap.String("path", path))
	}

	// .env next to the config, then in the working directory
	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		if n, err := loadEnvFile(ep); err != nil {
			log.Warn("ignoring .env", zap.String("path", ep), zap.Error(err))
		} else if n > 0 {
			log.Info("loaded .env", zap.String("path", ep), zap.Int("vars", n))
		}
	}

	if v == nil {
		v = NewOverrides()
	}
	v.apply(cfg)
	return cfg, nil
}

// Path returns the file Save writes to.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Validate rejects settings the controller cannot work with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var problems []string
	if c.Serial.BaudRate <= 0 {
		problems = append(problems, fmt.Sprintf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate))
	}
	if t := c.serialTimeout(); t < time.Millisecond || t > protocol.MaxTimeout {
		problems = append(problems, fmt.Sprintf("serial.timeout_ms must be within 1..%d, got %d",
			protocol.MaxTimeout/time.Millisecond, c.Serial.TimeoutMS))
	}
	switch c.Serial.Preset {
	case "", PresetDefault, PresetQuick, PresetThorough:
	default:
		problems = append(problems, fmt.Sprintf("serial.preset %q is not one of default, quick, thorough", c.Serial.Preset))
	}
	for _, b := range c.Detection.BaudRates {
		if b <= 0 {
			problems = append(problems, fmt.Sprintf("detection.baud_rates contains %d", b))
		}
	}
	if c.Detection.AttemptsPerRate < 0 {
		problems = append(problems, "detection.attempts_per_rate must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is unknown", c.Logging.Level))
	}
	if c.Journal.MaxRows < 0 {
		problems = append(problems, "journal.max_rows must not be negative")
	}
	if c.Server.StatusIntervalMS <= 0 {
		problems = append(problems, "server.status_interval_ms must be positive")
	}
	if len(problems) > 0 {
		return errs.Config("validate", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// SerialTimeout is the per-operation serial timeout.
func (c *Config) SerialTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serialTimeout()
}

func (c *Config) serialTimeout() time.Duration {
	return time.Duration(c.Serial.TimeoutMS) * time.Millisecond
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.path
	if path == "" {
		path = DefaultPath
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errs.Config("save", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errs.Config("save", err)
	}
	return nil
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON deep-merges a partial JSON document into the config.
// Fields absent from data keep their values. The merged result must pass
// Validate or nothing changes.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return errs.Config("update", fmt.Errorf("unmarshal patch: %w", err))
	}
	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	next := &Config{path: c.path}
	if err := json.Unmarshal(merged, next); err != nil {
		return errs.Config("update", err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	c.Serial, c.Device, c.Detection = next.Serial, next.Device, next.Detection
	c.Logging, c.Journal, c.Server = next.Logging, next.Journal, next.Server
	return nil
}

// deepMerge recursively merges src into dst. Nested maps merge; anything
// else in src replaces dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
