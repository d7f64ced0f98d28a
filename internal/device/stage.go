package device

import (
	"fmt"

	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// StageCount is the number of preset stages on the controller.
const StageCount = 5

// StageParameters are the preset values for one stage.
type StageParameters struct {
	Stage         int     `json:"stage"`
	FireCurrentMA uint16  `json:"fireCurrentMa"`
	ArmCurrentMA  uint16  `json:"armCurrentMa"`
	VoltLimit     float64 `json:"voltLimit"`
	VoltStart     float64 `json:"voltStart"`
}

// PowerInfo is the stage's calibrated output as stored on the controller.
type PowerInfo struct {
	Stage      int     `json:"stage"`
	TotalPower float64 `json:"totalPower"`
	TotalUnits string  `json:"totalUnits"`
	PerPower   float64 `json:"perPower"`
	PerUnits   string  `json:"perUnits"`
}

func (p PowerInfo) String() string {
	return fmt.Sprintf("%.1f %s, %.1f %s", p.TotalPower, p.TotalUnits, p.PerPower, p.PerUnits)
}

// ValidateStage rejects stage numbers outside 1-5.
func ValidateStage(stage int) error {
	if stage < 1 || stage > StageCount {
		return errs.Invalid("stage", "stage must be 1-%d, got %d", StageCount, stage)
	}
	return nil
}

func readStageValue(c Commander, codes [StageCount]string, stage int) (int16, error) {
	if err := ValidateStage(stage); err != nil {
		return 0, err
	}
	return c.SendCommand(codes[stage-1], 0)
}

// ReadStageCurrent returns the preset fire current for stage.
func ReadStageCurrent(c Commander, stage int) (uint16, error) {
	v, err := readStageValue(c, protocol.StageFireCurrentCommands, stage)
	return uint16(v), err
}

// ReadStageArmCurrent returns the preset arm current for stage.
func ReadStageArmCurrent(c Commander, stage int) (uint16, error) {
	v, err := readStageValue(c, protocol.StageArmCurrentCommands, stage)
	return uint16(v), err
}

// ReadStageVoltages returns the voltage limit and start voltage for stage.
// Both are stored in tenths of a volt.
func ReadStageVoltages(c Commander, stage int) (limit, start float64, err error) {
	l, err := readStageValue(c, protocol.StageVoltLimitCommands, stage)
	if err != nil {
		return 0, 0, fmt.Errorf("volt limit: %w", err)
	}
	s, err := readStageValue(c, protocol.StageVoltStartCommands, stage)
	if err != nil {
		return 0, 0, fmt.Errorf("volt start: %w", err)
	}
	return float64(l) / 10, float64(s) / 10, nil
}

// ReadStageParameters reads every preset for stage.
func ReadStageParameters(c Commander, stage int) (StageParameters, error) {
	p := StageParameters{Stage: stage}
	var err error
	if p.FireCurrentMA, err = ReadStageCurrent(c, stage); err != nil {
		return p, fmt.Errorf("fire current: %w", err)
	}
	if p.ArmCurrentMA, err = ReadStageArmCurrent(c, stage); err != nil {
		return p, fmt.Errorf("arm current: %w", err)
	}
	if p.VoltLimit, p.VoltStart, err = ReadStageVoltages(c, stage); err != nil {
		return p, err
	}
	return p, nil
}

// ReadPowerInfo reads the four power commands starting at the stage's base.
func ReadPowerInfo(c Commander, stage int) (PowerInfo, error) {
	if err := ValidateStage(stage); err != nil {
		return PowerInfo{}, err
	}
	base := protocol.StagePowerBase[stage-1]

	var vals [4]int16
	for i := range vals {
		v, err := c.SendCommand(fmt.Sprintf("%02x", base+byte(i)), 0)
		if err != nil {
			return PowerInfo{}, fmt.Errorf("power info stage %d: %w", stage, err)
		}
		vals[i] = v
	}
	return PowerInfo{
		Stage:      stage,
		TotalPower: float64(vals[0]) / 10,
		PerPower:   float64(vals[1]) / 10,
		TotalUnits: TotalUnits(vals[2]),
		PerUnits:   PerUnits(vals[3]),
	}, nil
}

// TotalUnits names the unit index reported for a stage's total power.
func TotalUnits(idx int16) string {
	switch idx {
	case 0:
		return "W TOTAL RADIANT POWER"
	case 1:
		return "mW TOTAL RADIANT POWER"
	case 2:
		return "W/cm² TOTAL IRRADIANCE"
	case 3:
		return "mW/cm² TOTAL IRRADIANCE"
	case 4:
		return ""
	case 5:
		return "A TOTAL CURRENT"
	case 6:
		return "mA TOTAL CURRENT"
	default:
		return "UNKNOWN UNITS"
	}
}

// PerUnits names the unit index reported for a stage's per-well power.
func PerUnits(idx int16) string {
	switch idx {
	case 0:
		return "W PER WELL"
	case 1:
		return "mW PER WELL"
	case 2:
		return "W TOTAL RADIANT POWER"
	case 3:
		return "mW TOTAL RADIANT POWER"
	case 4:
		return "mW/cm² PER WELL"
	case 5:
		return "mW/cm²"
	case 6:
		return "J/s"
	case 7:
		return ""
	case 8:
		return "A PER WELL"
	case 9:
		return "mA PER WELL"
	default:
		return "UNKNOWN UNITS"
	}
}
