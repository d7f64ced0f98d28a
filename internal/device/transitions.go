package device

import (
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
)

// ValidateTransition checks from -> to against the transition table:
//
//	unknown  -> Standby
//	any      -> Standby, Local
//	Standby  -> Armed
//	Armed    -> Remote
//
// It runs before any byte is sent.
func ValidateTransition(from, to Mode) error {
	if !isProtocolMode(to) {
		return errs.Invalid("set_mode", "%s is not a settable mode", to)
	}
	if from == ModeUnknown {
		if to == ModeStandby {
			return nil
		}
		if to == ModeArmed {
			return errs.Invalid("set_mode", "cannot arm uninitialized device")
		}
		return errs.Invalid("set_mode", "cannot enter %s mode from Unknown, device must be initialized to Standby first", to)
	}
	switch to {
	case ModeStandby, ModeLocal:
		return nil
	case ModeArmed:
		if from == ModeStandby {
			return nil
		}
		return errs.Invalid("set_mode", "cannot arm from %s mode, must be in Standby first", from)
	case ModeRemote:
		if from == ModeArmed {
			return nil
		}
		return errs.Invalid("set_mode", "cannot enter Remote mode from %s, must be Armed first", from)
	}
	return errs.Invalid("set_mode", "transition %s -> %s not allowed", from, to)
}

// ValidTransitions lists every mode reachable from from in one step.
func ValidTransitions(from Mode) []Mode {
	var out []Mode
	for _, to := range Modes {
		if ValidateTransition(from, to) == nil {
			out = append(out, to)
		}
	}
	return out
}

// RecommendedNext suggests the next step towards firing, or back to safety
// once firing.
func RecommendedNext(from Mode) Mode {
	switch from {
	case ModeStandby:
		return ModeArmed
	case ModeArmed:
		return ModeRemote
	default:
		return ModeStandby
	}
}

// IsSafe reports whether the output is guaranteed off in m.
func IsSafe(m Mode) bool {
	return m == ModeUnknown || m == ModeLocal || m == ModeStandby
}

func isProtocolMode(m Mode) bool {
	return m >= ModeLocal && m <= ModeRemote
}
