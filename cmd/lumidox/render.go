package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/tui"
)

type printer struct{ w io.Writer }

func newPrinter(cmd *cobra.Command) printer { return printer{w: cmd.OutOrStdout()} }

func (p printer) title(s string) { fmt.Fprintln(p.w, tui.TitleStyle.Render(s)) }

func (p printer) header(s string) { fmt.Fprintln(p.w, tui.HeaderStyle.Render(s)) }

func (p printer) field(label, value string) { fmt.Fprintln(p.w, tui.Field(label, value)) }

func (p printer) line(s string) { fmt.Fprintln(p.w, s) }

func (p printer) muted(s string) { fmt.Fprintln(p.w, tui.MutedStyle.Render(s)) }

func (p printer) ok(format string, args ...any) {
	fmt.Fprintln(p.w, tui.OKStyle.Render("✓")+" "+fmt.Sprintf(format, args...))
}

func (p printer) warn(format string, args ...any) {
	fmt.Fprintln(p.w, tui.WarnStyle.Render("!")+" "+fmt.Sprintf(format, args...))
}

func (p printer) table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tui.MutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tui.HeaderStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(p.w, t.Render())
}

func (p printer) mode(label string, m device.Mode) {
	p.field(label, tui.ModeStyle(m.String()).Render(m.String())+"  "+tui.MutedStyle.Render(m.Description()))
}

func (p printer) info(info *device.Info) {
	if info == nil {
		p.warn("device information not available")
		return
	}
	p.field("Firmware", info.FirmwareVersion)
	p.field("Model", info.ModelNumber)
	p.field("Serial", info.SerialNumber)
	p.field("Wavelength", info.Wavelength)
	p.field("Max current", ma(info.MaxCurrentMA))
}

func ma(v uint16) string { return fmt.Sprintf("%d mA", v) }

func maOrNA(v *uint16) string {
	if v == nil {
		return "n/a"
	}
	return ma(*v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseCurrent(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, errs.Invalid("parse", "current must be a whole number of mA, got %q", s)
	}
	return uint16(n), nil
}

func parseStage(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errs.Invalid("parse", "stage must be a number 1-%d, got %q", device.StageCount, s)
	}
	return n, device.ValidateStage(n)
}
