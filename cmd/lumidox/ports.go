package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryancinsight/Apollo2-sub001/internal/discovery"
)

func listPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-ports",
		Short: "List every serial port the system reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := a.connector().Ports().List()
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if len(ports) == 0 {
				p.warn("No serial ports found")
				return nil
			}
			rows := make([][]string, 0, len(ports))
			for _, pi := range ports {
				if !pi.IsUSB {
					rows = append(rows, []string{pi.Name, "serial", "", "", "", ""})
					continue
				}
				rows = append(rows, []string{
					pi.Name, "usb",
					fmt.Sprintf("0x%04x", pi.VID), fmt.Sprintf("0x%04x", pi.PID),
					pi.Product, pi.Manufacturer,
				})
			}
			p.table([]string{"PORT", "TYPE", "VID", "PID", "PRODUCT", "MANUFACTURER"}, rows)
			return nil
		},
	}
}

func detectPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect-ports",
		Short: "Rank serial ports by how likely they are a Lumidox II",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			candidates, err := a.connector().Ports().DetectPorts(a.cfg.PortDetection())
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if len(candidates) == 0 {
				p.warn("No compatible ports found")
				return nil
			}
			rows := make([][]string, 0, len(candidates))
			for _, c := range candidates {
				fw, model := "", ""
				if c.Identity != nil {
					fw, model = c.Identity.FirmwareVersion, c.Identity.ModelNumber
				}
				rows = append(rows, []string{
					c.Port.Name, fmt.Sprint(c.Score), yesNo(c.Identified), fw, model,
				})
			}
			p.table([]string{"PORT", "SCORE", "IDENTIFIED", "FIRMWARE", "MODEL"}, rows)
			for _, c := range candidates {
				p.muted(fmt.Sprintf("%s: %s", c.Port.Name, c.Reason))
			}
			return nil
		},
	}
}

func testBaudCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test-baud <port>",
		Short: "Probe a port at each candidate baud rate",
		Long: `Probe a port at each candidate baud rate of the selected preset and report
the quality of every rate. Unless the preset is comprehensive, probing stops
at the first rate that is clearly good.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port := args[0]
			results, err := a.connector().Baud().TestAllBaudRates(port, a.cfg.BaudDetection())
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{
					fmt.Sprint(r.BaudRate),
					yesNo(r.Success),
					fmt.Sprint(r.Quality),
					fmt.Sprintf("%d/%d", r.Successes, r.Attempts),
				})
			}
			p.table([]string{"BAUD", "OK", "QUALITY", "ANSWERED"}, rows)
			if a.cfg.Serial.Verbose {
				for _, r := range results {
					p.muted(fmt.Sprintf("%d: %s", r.BaudRate, r.Details))
				}
			}

			best := discovery.BestBaudResult(results)
			if best == nil {
				p.warn("No working baud rate found for %s (the controller normally runs at %d)",
					port, discovery.RecommendedBaudRate())
				return nil
			}
			p.ok("Best baud rate for %s: %d (quality %d)", port, best.BaudRate, best.Quality)
			return nil
		},
	}
}

func portDiagnosticsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "port-diagnostics",
		Short: "Explain how every port was scored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lines, err := a.connector().PortDiagnostics()
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			for _, l := range lines {
				p.line(l)
			}
			return nil
		},
	}
}
