package device

import (
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// TransitionInfo summarizes where the device can go from here.
type TransitionInfo struct {
	Current        Mode   `json:"current"`
	Valid          []Mode `json:"valid"`
	Recommended    Mode   `json:"recommended"`
	ReadyForFiring bool   `json:"readyForFiring"`
	SafeState      bool   `json:"safeState"`
}

// Status is a best-effort snapshot. Readings that failed are nil.
type Status struct {
	Mode               Mode            `json:"mode"`
	Description        string          `json:"description"`
	RemoteMode         *Mode           `json:"remoteMode,omitempty"`
	ArmCurrentMA       *uint16         `json:"armCurrentMa,omitempty"`
	FireCurrentMA      *uint16         `json:"fireCurrentMa,omitempty"`
	Health             protocol.Health `json:"health"`
	ConnectionHealthy  bool            `json:"connectionHealthy"`
	ReadyForOperations bool            `json:"readyForOperations"`
	Info               *Info           `json:"info,omitempty"`
}

// ReadyForFiring reports whether the device is armed or firing and has been
// initialized.
func (d *Device) ReadyForFiring() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyForFiring()
}

func (d *Device) readyForFiring() bool {
	return d.info != nil && (d.mode == ModeArmed || d.mode == ModeRemote)
}

// InSafeState reports whether the output is known to be off.
func (d *Device) InSafeState() bool {
	return IsSafe(d.CurrentMode())
}

// RecommendedNextMode suggests the next step from the tracked mode.
func (d *Device) RecommendedNextMode() Mode {
	return RecommendedNext(d.CurrentMode())
}

// TransitionInfo reports the tracked mode and its legal successors.
func (d *Device) TransitionInfo() TransitionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return TransitionInfo{
		Current:        d.mode,
		Valid:          ValidTransitions(d.mode),
		Recommended:    RecommendedNext(d.mode),
		ReadyForFiring: d.readyForFiring(),
		SafeState:      IsSafe(d.mode),
	}
}

// Status reads the mode and currents back from the controller. Individual
// read failures leave their field nil instead of failing the snapshot.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := Status{
		Mode:        d.mode,
		Description: d.mode.Description(),
		Health:      d.s.Health(),
		Info:        d.info,
	}
	if v, err := d.s.SendCommand(protocol.CmdReadRemoteMode, 0); err == nil {
		m := ModeFromValue(v)
		st.RemoteMode = &m
	}
	if v, err := d.s.SendCommand(protocol.CmdReadArmCurrent, 0); err == nil {
		c := uint16(v)
		st.ArmCurrentMA = &c
	}
	if v, err := d.s.SendCommand(protocol.CmdReadFireCurrent, 0); err == nil {
		c := uint16(v)
		st.FireCurrentMA = &c
	}
	st.ConnectionHealthy = st.Health.Status == protocol.HealthGood
	st.ReadyForOperations = st.ConnectionHealthy && d.mode != ModeUnknown
	return st
}
