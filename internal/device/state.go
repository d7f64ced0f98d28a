package device

import (
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
)

// StateProvider is the slice of a device that arming logic needs. *Device
// implements it; tests substitute their own.
type StateProvider interface {
	CurrentMode() Mode
	Arm() error
}

// EnsureArmed arms p from Standby and accepts Armed or Remote as they are.
// Any other mode needs an explicit Standby first.
func EnsureArmed(p StateProvider) error {
	switch m := p.CurrentMode(); m {
	case ModeArmed, ModeRemote:
		return nil
	case ModeStandby:
		return p.Arm()
	default:
		return errs.Invalid("arm", "device is in %s mode, switch to Standby before arming", m)
	}
}
