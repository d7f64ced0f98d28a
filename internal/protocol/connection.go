package protocol

import (
	"time"
)

// ConnectionInfo is a snapshot of the link configuration.
type ConnectionInfo struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baudRate"`
	Timeout     time.Duration `json:"timeout"`
	DataBits    int           `json:"dataBits"`
	StopBits    string        `json:"stopBits"`
	Parity      string        `json:"parity"`
	FlowControl string        `json:"flowControl"`
	Ready       bool          `json:"ready"`
}

// HealthStatus is a coarse link classification.
type HealthStatus int

const (
	HealthGood HealthStatus = iota
	HealthWarning
	HealthError
)

func (s HealthStatus) String() string {
	switch s {
	case HealthGood:
		return "good"
	case HealthWarning:
		return "warning"
	default:
		return "error"
	}
}

func (s HealthStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *HealthStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "good":
		*s = HealthGood
	case "warning":
		*s = HealthWarning
	default:
		*s = HealthError
	}
	return nil
}

// Health is the result of Handler.Health.
type Health struct {
	Status             HealthStatus  `json:"status"`
	Timeout            time.Duration `json:"timeout"`
	TimeoutConfigured  bool          `json:"timeoutConfigured"`
	TimeoutAppropriate bool          `json:"timeoutAppropriate"`
	Ready              bool          `json:"ready"`
}

// ConnectionTest is the result of Handler.TestConnection.
type ConnectionTest struct {
	Elapsed time.Duration `json:"elapsed"`
	Stable  bool          `json:"stable"`
}

// Info reports the port's line settings and the handler's timeout.
func (h *Handler) Info() ConnectionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.t.Settings()
	return ConnectionInfo{
		Port:        s.Name,
		BaudRate:    s.BaudRate,
		Timeout:     h.t.Timeout(),
		DataBits:    s.DataBits,
		StopBits:    s.StopBits,
		Parity:      s.Parity,
		FlowControl: s.FlowControl,
		Ready:       h.t.Ready(),
	}
}

// Health classifies the link: Good when the timeout is set and the port is
// open, Warning when only the timeout is set, Error otherwise.
func (h *Handler) Health() Health {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeout := h.t.Timeout()
	hl := Health{
		Timeout:            timeout,
		TimeoutConfigured:  timeout > 0,
		TimeoutAppropriate: timeout >= minHealthyTimeout && timeout <= maxHealthyTimeout,
		Ready:              h.t.Ready(),
	}
	switch {
	case hl.TimeoutConfigured && hl.Ready:
		hl.Status = HealthGood
	case hl.TimeoutConfigured:
		hl.Status = HealthWarning
	default:
		hl.Status = HealthError
	}
	return hl
}

// ClearBuffers drops pending input and output on the port.
func (h *Handler) ClearBuffers() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.t.Flush()
}

// TestConnection clears the buffers and times how long that took.
func (h *Handler) TestConnection() (ConnectionTest, error) {
	start := time.Now()
	if err := h.ClearBuffers(); err != nil {
		return ConnectionTest{Elapsed: time.Since(start)}, err
	}
	elapsed := time.Since(start)
	return ConnectionTest{Elapsed: elapsed, Stable: elapsed < stableRoundTrip}, nil
}
