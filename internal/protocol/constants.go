package protocol

import "time"

// Frame markers. Encoder and decoder share these; they are not configurable.
const (
	StartMarker byte = '*'  // first byte of every command frame
	Terminator  byte = '\r' // last byte of every command frame
	EndMarker   byte = '^'  // last byte of every response frame
)

const (
	// DefaultBaudRate is the controller's factory line speed.
	DefaultBaudRate = 19200

	// DefaultTimeout is the read timeout used for live sessions.
	DefaultTimeout = 1000 * time.Millisecond

	// MaxTimeout is the largest read timeout a Transport accepts.
	MaxTimeout = 30 * time.Second

	// MinCommandFrame is START + value(4) + checksum(2) + TERMINATOR with the
	// shortest possible code.
	MinCommandFrame = 8

	// MinResponseFrame covers the prefix byte and four hex digits.
	MinResponseFrame = 5

	// maxResponseLen bounds a response that never produces an END marker.
	maxResponseLen = 64
)

// Health thresholds for the configured timeout.
const (
	minHealthyTimeout = 100 * time.Millisecond
	maxHealthyTimeout = 10 * time.Second

	// stableRoundTrip is the buffer-clear time under which a link counts as stable.
	stableRoundTrip = 100 * time.Millisecond
)
