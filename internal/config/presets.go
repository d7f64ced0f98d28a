package config

import (
	"time"

	"github.com/ryancinsight/Apollo2-sub001/internal/discovery"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// AutoConnect returns the selected preset refined by the detection section.
func (c *Config) AutoConnect() discovery.AutoConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ac discovery.AutoConfig
	switch c.Serial.Preset {
	case PresetQuick:
		ac = discovery.QuickAutoConfig()
	case PresetThorough:
		ac = discovery.ThoroughAutoConfig()
	default:
		ac = discovery.DefaultAutoConfig()
	}
	ac.Ports = c.portDetection(ac.Ports)
	ac.Baud = c.baudDetection(ac.Baud)
	if c.Serial.Verbose {
		ac.Verbose = true
	}
	if d := c.Detection.MaxDetectionTimeMS; d > 0 {
		ac.MaxDetectionTime = ms(d)
	}
	return ac
}

// PortDetection returns the port scan settings.
func (c *Config) PortDetection() discovery.PortConfig {
	return c.AutoConnect().Ports
}

// BaudDetection returns the baud probe settings.
func (c *Config) BaudDetection() discovery.BaudConfig {
	return c.AutoConnect().Baud
}

func (c *Config) portDetection(pc discovery.PortConfig) discovery.PortConfig {
	d := c.Detection
	if len(d.PreferredVIDs) > 0 {
		pc.PreferredVIDs = append([]uint16(nil), d.PreferredVIDs...)
	}
	if len(d.PreferredPIDs) > 0 {
		pc.PreferredPIDs = append([]uint16(nil), d.PreferredPIDs...)
	}
	if d.USBOnly != nil {
		pc.USBOnly = *d.USBOnly
	}
	if d.Identify != nil {
		pc.Identify = *d.Identify
	}
	if d.IdentificationTimeoutMS > 0 {
		pc.IdentificationTimeout = ms(d.IdentificationTimeoutMS)
	}
	return pc
}

func (c *Config) baudDetection(bc discovery.BaudConfig) discovery.BaudConfig {
	d := c.Detection
	if len(d.BaudRates) > 0 {
		bc.Rates = append([]int(nil), d.BaudRates...)
	}
	if d.AttemptsPerRate > 0 {
		bc.AttemptsPerRate = d.AttemptsPerRate
	}
	if d.TestTimeoutMS > 0 {
		bc.TestTimeout = ms(d.TestTimeoutMS)
	}
	if d.Comprehensive != nil {
		bc.Comprehensive = *d.Comprehensive
	}
	return bc
}
