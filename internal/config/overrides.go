package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys that may be overridden. The environment form is LUMIDOX_ plus the
// key upper-cased with dots turned into underscores, e.g.
// LUMIDOX_SERIAL_PORT.
const (
	KeyPort        = "serial.port"
	KeyBaudRate    = "serial.baud_rate"
	KeyTimeoutMS   = "serial.timeout_ms"
	KeyAutoConnect = "serial.auto_connect"
	KeyPreset      = "serial.preset"
	KeyVerbose     = "serial.verbose"
	KeyOptimize    = "device.optimize_transitions"
	KeyLogLevel    = "logging.level"
	KeyLogFormat   = "logging.format"
	KeyLogFile     = "logging.file"
	KeyJournal     = "journal.enabled"
	KeyJournalPath = "journal.path"
	KeyListenAddr  = "server.listen_addr"
	KeyMaxDetectMS = "detection.max_detection_time_ms"
)

// Overrides layers LUMIDOX_* environment variables and bound command-line
// flags over file values. A flag the user actually set beats the
// environment.
type Overrides struct {
	v *viper.Viper
}

// NewOverrides reads from the process environment.
func NewOverrides() *Overrides {
	v := viper.New()
	v.SetEnvPrefix("LUMIDOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Overrides{v: v}
}

// BindFlag ties key to f.
func (o *Overrides) BindFlag(key string, f *pflag.Flag) error {
	return o.v.BindPFlag(key, f)
}

// Set forces key to val, above flags and environment.
func (o *Overrides) Set(key string, val any) { o.v.Set(key, val) }

func (o *Overrides) apply(c *Config) {
	v := o.v
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	flag := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	str(KeyPort, &c.Serial.Port)
	num(KeyBaudRate, &c.Serial.BaudRate)
	num(KeyTimeoutMS, &c.Serial.TimeoutMS)
	flag(KeyAutoConnect, &c.Serial.AutoConnect)
	str(KeyPreset, &c.Serial.Preset)
	flag(KeyVerbose, &c.Serial.Verbose)
	flag(KeyOptimize, &c.Device.OptimizeTransitions)
	str(KeyLogLevel, &c.Logging.Level)
	str(KeyLogFormat, &c.Logging.Format)
	str(KeyLogFile, &c.Logging.File)
	flag(KeyJournal, &c.Journal.Enabled)
	str(KeyJournalPath, &c.Journal.Path)
	str(KeyListenAddr, &c.Server.ListenAddr)
	num(KeyMaxDetectMS, &c.Detection.MaxDetectionTimeMS)
}

// loadEnvFile exports KEY=VALUE pairs from a dotenv file. Variables already
// present in the environment win. A missing file is not an error.
func loadEnvFile(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return 0, err
	}

	n := 0
	for _, key := range ev.AllKeys() {
		name := strings.ToUpper(key)
		if os.Getenv(name) != "" {
			continue
		}
		if err := os.Setenv(name, ev.GetString(key)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
