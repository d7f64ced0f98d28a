package protocol

// Command codes understood by the Lumidox II controller. Each code is two
// lowercase ASCII hex characters.
const (
	CmdFirmwareVersion = "02"
	CmdReadRemoteMode  = "13"
	CmdSetMode         = "15"
	CmdReadArmCurrent  = "20"
	CmdReadFireCurrent = "21"
	CmdSetArmCurrent   = "40"
	CmdSetCurrent      = "41"
)

// Character-per-command identity strings.
var (
	ModelCommands = []string{"6c", "6d", "6e", "6f", "70", "71", "72", "73"}

	SerialCommands = []string{"60", "61", "62", "63", "64", "65", "66", "67", "68", "69", "6a", "6b"}

	WavelengthCommands = []string{"76", "81", "82", "89", "8a"}
)

// Per-stage parameter commands, indexed by stage-1.
var (
	StageFireCurrentCommands = [5]string{"78", "80", "88", "90", "98"}
	StageArmCurrentCommands  = [5]string{"77", "7f", "87", "8f", "97"}
	StageVoltLimitCommands   = [5]string{"79", "81", "89", "91", "99"}
	StageVoltStartCommands   = [5]string{"7a", "82", "8a", "92", "9a"}

	// StagePowerBase is the first of four consecutive power commands per
	// stage: total power, per-well power, total units, per-well units.
	StagePowerBase = [5]byte{0x7b, 0x83, 0x8b, 0x93, 0x9b}
)

// CmdMaxCurrent reads the stage 5 fire current, which the controller treats
// as its ceiling.
var CmdMaxCurrent = StageFireCurrentCommands[4]
