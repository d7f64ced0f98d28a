package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
)

func stageCmds(a *app) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, device.StageCount)
	for i := 1; i <= device.StageCount; i++ {
		stage := i
		cmds = append(cmds, &cobra.Command{
			Use:   fmt.Sprintf("stage%d", stage),
			Short: fmt.Sprintf("Fire stage %d at its preset current", stage),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withDevice(cmd, func(p printer, d *device.Device) error {
					if err := d.FireStage(stage); err != nil {
						return err
					}
					fire, err := d.ReadFireCurrent()
					if err != nil {
						p.ok("Stage %d firing", stage)
						return nil
					}
					p.ok("Stage %d firing at %s", stage, ma(fire))
					return nil
				})
			},
		})
	}
	return cmds
}

func currentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "current <mA>",
		Short: "Fire with a specific current",
		Long: `Fire with a specific current in milliamps. The value must be non-zero and
no larger than the controller's maximum current.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := parseCurrent(args[0])
			if err != nil {
				return err
			}
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				if err := d.FireWithCurrent(current); err != nil {
					return err
				}
				p.ok("Firing at %s", ma(current))
				return nil
			})
		},
	}
}

func armCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "arm",
		Short: "Arm the controller so it is ready to fire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				if err := device.EnsureArmed(d); err != nil {
					return err
				}
				p.ok("Device armed")
				return nil
			})
		},
	}
}

func offCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Turn the output off (Standby)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				if err := d.TurnOff(); err != nil {
					return err
				}
				p.ok("Device turned off")
				return nil
			})
		},
	}
}

func shutdownCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Turn the output off and return the controller to local control",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				if err := d.Shutdown(); err != nil {
					return err
				}
				p.ok("Device shut down, returned to local control")
				return nil
			})
		},
	}
}

func infoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show controller identity and connection settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				p.title("Device Information")
				p.info(d.Info())

				c := d.Connection()
				p.line("")
				p.header("Connection")
				p.field("Port", c.Port)
				p.field("Baud rate", fmt.Sprint(c.BaudRate))
				p.field("Timeout", c.Timeout.String())
				p.field("Line", fmt.Sprintf("%d data bits, %s parity, %s stop bits", c.DataBits, c.Parity, c.StopBits))
				p.field("Flow control", c.FlowControl)
				return nil
			})
		},
	}
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show mode, currents and connection health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				st := d.Status()
				ti := d.TransitionInfo()

				p.title("Device Status")
				p.mode("Mode", st.Mode)
				if st.RemoteMode != nil {
					p.mode("Reported mode", *st.RemoteMode)
				} else {
					p.field("Reported mode", "n/a")
				}
				p.field("Arm current", maOrNA(st.ArmCurrentMA))
				p.field("Fire current", maOrNA(st.FireCurrentMA))
				p.field("Connection", st.Health.Status.String())
				p.field("Ready to fire", yesNo(ti.ReadyForFiring))
				p.field("Safe state", yesNo(ti.SafeState))

				next := make([]string, len(ti.Valid))
				for i, m := range ti.Valid {
					next[i] = m.String()
				}
				p.field("Valid next", strings.Join(next, ", "))
				p.field("Recommended", ti.Recommended.String())
				return nil
			})
		},
	}
}

func readStateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read-state",
		Short: "Read the mode the controller reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				m, err := d.ReadRemoteMode()
				if err != nil {
					return err
				}
				p.mode("Remote mode", m)
				return nil
			})
		},
	}
}

func readArmCurrentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read-arm-current",
		Short: "Read the current used while armed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				v, err := d.ReadArmCurrent()
				if err != nil {
					return err
				}
				p.field("Arm current", ma(v))
				return nil
			})
		},
	}
}

func readFireCurrentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read-fire-current",
		Short: "Read the current used while firing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				v, err := d.ReadFireCurrent()
				if err != nil {
					return err
				}
				p.field("Fire current", ma(v))
				return nil
			})
		},
	}
}

func stageInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stage-info <stage>",
		Short: "Show the presets and power calibration of a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := parseStage(args[0])
			if err != nil {
				return err
			}
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				sp, err := d.StageParameters(stage)
				if err != nil {
					return err
				}
				p.title(fmt.Sprintf("Stage %d", stage))
				p.field("Fire current", ma(sp.FireCurrentMA))
				p.field("Arm current", ma(sp.ArmCurrentMA))
				p.field("Voltage limit", fmt.Sprintf("%.1f V", sp.VoltLimit))
				p.field("Start voltage", fmt.Sprintf("%.1f V", sp.VoltStart))

				pi, err := d.PowerInfo(stage)
				if err != nil {
					p.warn("power calibration unavailable: %v", err)
					return nil
				}
				p.field("Total power", fmt.Sprintf("%.1f %s", pi.TotalPower, pi.TotalUnits))
				p.field("Per well", fmt.Sprintf("%.1f %s", pi.PerPower, pi.PerUnits))
				return nil
			})
		},
	}
}

func stageArmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stage-arm <stage>",
		Short: "Read the preset arm current of a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := parseStage(args[0])
			if err != nil {
				return err
			}
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				v, err := d.StageArmCurrent(stage)
				if err != nil {
					return err
				}
				p.field(fmt.Sprintf("Stage %d arm", stage), ma(v))
				return nil
			})
		},
	}
}

func stageVoltagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stage-voltages <stage>",
		Short: "Read the voltage limit and start voltage of a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := parseStage(args[0])
			if err != nil {
				return err
			}
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				limit, start, err := d.StageVoltages(stage)
				if err != nil {
					return err
				}
				p.field("Voltage limit", fmt.Sprintf("%.1f V", limit))
				p.field("Start voltage", fmt.Sprintf("%.1f V", start))
				return nil
			})
		},
	}
}

func setArmCurrentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-arm-current <mA>",
		Short: "Set the current used while armed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := parseCurrent(args[0])
			if err != nil {
				return err
			}
			return a.withDevice(cmd, func(p printer, d *device.Device) error {
				if err := d.SetArmCurrent(current); err != nil {
					return err
				}
				p.ok("Arm current set to %s", ma(current))
				return nil
			})
		},
	}
}
