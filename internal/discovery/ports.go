package discovery

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
	"github.com/ryancinsight/Apollo2-sub001/internal/serialport"
)

// FTDIVendorID is the USB vendor of the controller's serial bridge.
const FTDIVendorID uint16 = 0x0403

// PortConfig controls port scanning.
type PortConfig struct {
	IdentificationTimeout time.Duration
	USBOnly               bool
	Identify              bool
	PreferredVIDs         []uint16
	PreferredPIDs         []uint16
}

// DefaultPortConfig scans USB ports only, identifies each, and prefers FTDI.
func DefaultPortConfig() PortConfig {
	return PortConfig{
		IdentificationTimeout: 2000 * time.Millisecond,
		USBOnly:               true,
		Identify:              true,
		PreferredVIDs:         []uint16{FTDIVendorID},
	}
}

// PortCandidate is one scored port from a detection pass.
type PortCandidate struct {
	Port       serialport.PortInfo `json:"port"`
	Score      int                 `json:"score"`
	Identified bool                `json:"identified"`
	Identity   *device.Identity    `json:"identity,omitempty"`
	Reason     string              `json:"reason"`
}

// PortDetector scores serial ports for likely controller compatibility.
type PortDetector struct {
	deps
	log *zap.Logger
}

// NewPortDetector builds a detector using the OS enumerator unless
// overridden.
func NewPortDetector(opts ...Option) *PortDetector {
	d := newDeps(opts)
	return &PortDetector{deps: d, log: d.log.Named("discovery.ports")}
}

// DetectPorts enumerates, filters, scores and optionally identifies ports,
// best first. Equal scores keep enumeration order. Identification failures
// only mark the candidate unidentified.
func (pd *PortDetector) DetectPorts(cfg PortConfig) ([]PortCandidate, error) {
	ports, err := pd.enumerate()
	if err != nil {
		return nil, err
	}

	candidates := make([]PortCandidate, 0, len(ports))
	for _, p := range ports {
		if cfg.USBOnly && !p.IsUSB {
			continue
		}
		c := PortCandidate{Port: p, Score: ScorePort(p, cfg)}
		if cfg.Identify {
			c.Identity = pd.identify(p.Name, cfg.IdentificationTimeout)
			c.Identified = c.Identity != nil
		}
		c.Reason = ScoreReason(p, c.Score, c.Identified)
		pd.log.Debug("scored port", zap.String("port", p.Name), zap.Int("score", c.Score), zap.Bool("identified", c.Identified))
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

// BestPort returns the top candidate, or nil when there is none.
func (pd *PortDetector) BestPort(cfg PortConfig) (*PortCandidate, error) {
	candidates, err := pd.DetectPorts(cfg)
	if err != nil || len(candidates) == 0 {
		return nil, err
	}
	return &candidates[0], nil
}

func (pd *PortDetector) identify(port string, timeout time.Duration) *device.Identity {
	var id device.Identity
	err := pd.probe(port, protocol.DefaultBaudRate, timeout, func(h *protocol.Handler) error {
		var err error
		id, err = device.Identify(h)
		return err
	})
	ok := err == nil && id.Compatible()
	pd.record("identify", port, protocol.DefaultBaudRate, ok)
	if !ok {
		pd.log.Debug("identification failed", zap.String("port", port), zap.Error(err))
		return nil
	}
	return &id
}

// ScorePort rates p from 0 to 100. USB ports start at 40 and collect
// bonuses for preferred IDs and telling descriptor strings; anything else
// gets a flat 10.
func ScorePort(p serialport.PortInfo, cfg PortConfig) int {
	if !p.IsUSB {
		return 10
	}
	score := 40
	if containsID(cfg.PreferredVIDs, p.VID) {
		score += 30
	}
	if len(cfg.PreferredPIDs) > 0 && containsID(cfg.PreferredPIDs, p.PID) {
		score += 20
	}
	product := strings.ToLower(p.Product)
	if strings.Contains(product, "serial") {
		score += 10
	}
	if strings.Contains(product, "ftdi") {
		score += 10
	}
	if strings.Contains(strings.ToLower(p.Manufacturer), "ftdi") {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

func containsID(ids []uint16, id uint16) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ScoreReason explains a score for diagnostics.
func ScoreReason(p serialport.PortInfo, score int, identified bool) string {
	var reasons []string
	if p.IsUSB {
		reasons = append(reasons, "USB Serial Port")
		if p.VID == FTDIVendorID {
			reasons = append(reasons, "FTDI device")
		}
		if strings.Contains(strings.ToLower(p.Product), "serial") {
			reasons = append(reasons, "Serial device")
		}
	} else {
		reasons = append(reasons, "Non-USB port")
	}
	if identified {
		reasons = append(reasons, "Device responds to Lumidox II protocol")
	}
	return fmt.Sprintf("Score %d: %s", score, strings.Join(reasons, ", "))
}

// List returns every port the OS reports, unfiltered.
func (pd *PortDetector) List() ([]serialport.PortInfo, error) {
	return pd.enumerate()
}

// DetailedPortInfo describes every visible port on one line each.
func (pd *PortDetector) DetailedPortInfo() ([]string, error) {
	ports, err := pd.List()
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(ports))
	for _, p := range ports {
		if !p.IsUSB {
			lines = append(lines, fmt.Sprintf("%s: Serial Port", p.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: USB Serial Port (VID: 0x%04x, PID: 0x%04x) - %s by %s",
			p.Name, p.VID, p.PID, orUnknown(p.Product), orUnknown(p.Manufacturer)))
	}
	return lines, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
