package discovery

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// DefaultBaudRates is the probe order: the factory rate first, then the
// rates most often configured in the field.
var DefaultBaudRates = []int{19200, 9600, 38400, 57600, 115200, 4800, 2400}

// goodEnough ends a non-comprehensive scan early.
const goodEnough = 80

// BaudConfig controls baud rate probing.
type BaudConfig struct {
	TestTimeout     time.Duration
	Rates           []int
	AttemptsPerRate int
	Comprehensive   bool
}

// DefaultBaudConfig tests every common rate twice.
func DefaultBaudConfig() BaudConfig {
	return BaudConfig{
		TestTimeout:     1500 * time.Millisecond,
		Rates:           append([]int(nil), DefaultBaudRates...),
		AttemptsPerRate: 2,
		Comprehensive:   true,
	}
}

// QuickBaudConfig tries the three likeliest rates once each and stops at
// the first convincing answer.
func QuickBaudConfig() BaudConfig {
	return BaudConfig{
		TestTimeout:     1000 * time.Millisecond,
		Rates:           []int{19200, 9600, 38400},
		AttemptsPerRate: 1,
	}
}

// ThoroughBaudConfig adds 1200 baud and a third attempt per rate.
func ThoroughBaudConfig() BaudConfig {
	return BaudConfig{
		TestTimeout:     2000 * time.Millisecond,
		Rates:           append(append([]int(nil), DefaultBaudRates...), 1200),
		AttemptsPerRate: 3,
		Comprehensive:   true,
	}
}

func (c BaudConfig) validate() error {
	if len(c.Rates) == 0 {
		return errs.Invalid("baud_detect", "no baud rates to test")
	}
	if c.AttemptsPerRate < 1 {
		return errs.Invalid("baud_detect", "attempts per rate must be at least 1, got %d", c.AttemptsPerRate)
	}
	if c.TestTimeout <= 0 {
		return errs.Invalid("baud_detect", "test timeout must be positive")
	}
	return nil
}

// BaudIdentity is what the controller told us at a given rate.
type BaudIdentity struct {
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
	ModelNumber     string `json:"modelNumber,omitempty"`
	// Consistent is set when firmware and model came back in one attempt.
	Consistent bool `json:"consistent"`
}

// BaudTestResult is the outcome of probing one rate.
type BaudTestResult struct {
	BaudRate  int           `json:"baudRate"`
	Success   bool          `json:"success"`
	Quality   int           `json:"quality"`
	Successes int           `json:"successes"`
	Attempts  int           `json:"attempts"`
	Identity  *BaudIdentity `json:"identity,omitempty"`
	Details   string        `json:"details"`
}

// QualityScore rates a probe from 0 to 100. Reliability is worth up to 60;
// a firmware answer, a model answer and both in a single attempt add 15, 15
// and 10.
func QualityScore(successes, attempts int, id *BaudIdentity) int {
	if successes == 0 || attempts == 0 {
		return 0
	}
	score := 60 * successes / attempts
	if id != nil {
		if id.FirmwareVersion != "" {
			score += 15
		}
		if id.ModelNumber != "" {
			score += 15
		}
		if id.Consistent {
			score += 10
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// RecommendedBaudRate is the controller's factory rate.
func RecommendedBaudRate() int { return protocol.DefaultBaudRate }

// BaudDetector finds the rate a controller answers on.
type BaudDetector struct {
	deps
	log *zap.Logger
}

// NewBaudDetector builds a detector opening real serial ports unless
// overridden.
func NewBaudDetector(opts ...Option) *BaudDetector {
	d := newDeps(opts)
	return &BaudDetector{deps: d, log: d.log.Named("discovery.baud")}
}

// TestAllBaudRates probes each configured rate in order. A
// non-comprehensive scan stops after the first successful rate scoring at
// least 80.
func (bd *BaudDetector) TestAllBaudRates(port string, cfg BaudConfig) ([]BaudTestResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	results := make([]BaudTestResult, 0, len(cfg.Rates))
	for _, baud := range cfg.Rates {
		r := bd.TestBaudRate(port, baud, cfg)
		results = append(results, r)
		if !cfg.Comprehensive && r.Success && r.Quality >= goodEnough {
			bd.log.Debug("stopping scan early", zap.String("port", port), zap.Int("baud", baud), zap.Int("quality", r.Quality))
			break
		}
	}
	return results, nil
}

// TestBaudRate makes AttemptsPerRate identification attempts at baud. An
// attempt counts only if the firmware version came back.
func (bd *BaudDetector) TestBaudRate(port string, baud int, cfg BaudConfig) BaudTestResult {
	r := BaudTestResult{BaudRate: baud, Attempts: cfg.AttemptsPerRate}
	details := make([]string, 0, cfg.AttemptsPerRate)

	for i := 1; i <= cfg.AttemptsPerRate; i++ {
		var id device.Identity
		err := bd.probe(port, baud, cfg.TestTimeout, func(h *protocol.Handler) error {
			var err error
			id, err = device.Identify(h)
			return err
		})
		ok := err == nil && id.Compatible()
		bd.record("baud", port, baud, ok)
		if !ok {
			if err == nil {
				err = errs.Protocol("identify", "no firmware version")
			}
			details = append(details, fmt.Sprintf("Attempt %d: Failed (%v)", i, err))
			continue
		}
		r.Successes++
		r.Identity = &BaudIdentity{
			FirmwareVersion: id.FirmwareVersion,
			ModelNumber:     id.ModelNumber,
			Consistent:      id.ModelNumber != "",
		}
		details = append(details, fmt.Sprintf("Attempt %d: Success", i))
	}

	r.Success = r.Successes > 0
	r.Quality = QualityScore(r.Successes, r.Attempts, r.Identity)
	r.Details = strings.Join(details, "; ")
	bd.log.Debug("baud rate tested",
		zap.String("port", port),
		zap.Int("baud", baud),
		zap.Int("successes", r.Successes),
		zap.Int("quality", r.Quality))
	return r
}

// DetectBaudRate returns the best working rate on port, or ok=false when
// nothing answered. Ties go to the rate tested first.
func (bd *BaudDetector) DetectBaudRate(port string, cfg BaudConfig) (baud int, ok bool, err error) {
	results, err := bd.TestAllBaudRates(port, cfg)
	if err != nil {
		return 0, false, err
	}
	best := BestBaudResult(results)
	if best == nil {
		return 0, false, nil
	}
	return best.BaudRate, true, nil
}

// BestBaudResult picks the highest-quality success, or nil.
func BestBaudResult(results []BaudTestResult) *BaudTestResult {
	var best *BaudTestResult
	for i := range results {
		r := &results[i]
		if !r.Success {
			continue
		}
		if best == nil || r.Quality > best.Quality {
			best = r
		}
	}
	return best
}
