package device

import "fmt"

// Mode is the controller's operating mode. The protocol values are 0-3;
// ModeUnknown only exists client-side before the first confirmed mode set.
type Mode int

const (
	ModeUnknown Mode = -1
	ModeLocal   Mode = 0
	ModeStandby Mode = 1
	ModeArmed   Mode = 2
	ModeRemote  Mode = 3
)

// Modes lists the protocol modes in value order.
var Modes = []Mode{ModeLocal, ModeStandby, ModeArmed, ModeRemote}

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "Local"
	case ModeStandby:
		return "Standby"
	case ModeArmed:
		return "Armed"
	case ModeRemote:
		return "Remote"
	case ModeUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Description is the operator-facing explanation of the mode.
func (m Mode) Description() string {
	switch m {
	case ModeLocal:
		return "Local Control (device controlled locally)"
	case ModeStandby:
		return "Remote Standby (on, output off)"
	case ModeArmed:
		return "Remote Armed (on, ready for firing)"
	case ModeRemote:
		return "Remote Firing (on, output active)"
	default:
		return "Unknown (not yet initialized)"
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	for _, c := range append([]Mode{ModeUnknown}, Modes...) {
		if c.String() == string(b) {
			*m = c
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", b)
}

// ModeFromValue maps a readback value to a Mode. Anything outside 0-3 is
// reported as Local, which is what the controller falls back to.
func ModeFromValue(v int16) Mode {
	switch v {
	case 1:
		return ModeStandby
	case 2:
		return ModeArmed
	case 3:
		return ModeRemote
	default:
		return ModeLocal
	}
}
