// Package tui is the interactive control menu.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
)

const maxLines = 12

// Controller is what the menu drives. *device.Device implements it.
type Controller interface {
	device.StateProvider
	Status() device.Status
	Info() *device.Info
	FireStage(stage int) error
	FireWithCurrent(currentMA uint16) error
	TurnOff() error
	Shutdown() error
	ReadArmCurrent() (uint16, error)
	ReadFireCurrent() (uint16, error)
	SetArmCurrent(currentMA uint16) error
	StageParameters(stage int) (device.StageParameters, error)
}

var _ Controller = (*device.Device)(nil)

type prompt int

const (
	promptNone prompt = iota
	promptCurrent
	promptArmCurrent
	promptStage
)

func (p prompt) label() string {
	switch p {
	case promptCurrent:
		return "Fire current (mA)"
	case promptArmCurrent:
		return "Arm current (mA)"
	case promptStage:
		return "Stage (1-5)"
	}
	return ""
}

type resultMsg struct {
	action string
	text   string
	err    error
	quit   bool
}

type statusMsg device.Status

// Model is the bubbletea model of the menu.
type Model struct {
	dev  Controller
	keys KeyMap
	help help.Model

	status *device.Status
	lines  []string

	prompt prompt
	input  string
	busy   bool
	err    error
	width  int
}

// New creates the menu for dev.
func New(dev Controller) *Model {
	return &Model{
		dev:  dev,
		keys: DefaultKeyMap(),
		help: help.New(),
	}
}

// Run shows the menu until the user quits. The device is shut down on
// the way out.
func Run(dev Controller, opts ...tea.ProgramOption) error {
	m := New(dev)
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil {
		return err
	}
	return m.err
}

func (m *Model) Init() tea.Cmd {
	return m.refresh
}

func (m *Model) refresh() tea.Msg {
	return statusMsg(m.dev.Status())
}

// run executes fn off the event loop. Keys are ignored until it reports
// back.
func (m *Model) run(action string, fn func() (string, error)) tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		text, err := fn()
		return resultMsg{action: action, text: text, err: err}
	}
}

func (m *Model) shutdown() tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		err := m.dev.Shutdown()
		return resultMsg{action: "shutdown", text: "device shut down", err: err, quit: true}
	}
}

func (m *Model) log(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case statusMsg:
		st := device.Status(msg)
		m.status = &st

	case resultMsg:
		m.busy = false
		if msg.err != nil {
			m.log(ErrorStyle.Render(msg.action+": ") + msg.err.Error())
		} else {
			m.log(OKStyle.Render(msg.action+": ") + msg.text)
		}
		if msg.quit {
			m.err = msg.err
			return m, tea.Quit
		}
		return m, m.refresh

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		if m.prompt != promptNone {
			return m, m.updatePrompt(msg)
		}
		return m, m.updateMenu(msg)
	}
	return m, nil
}

func (m *Model) updateMenu(msg tea.KeyMsg) tea.Cmd {
	for i, b := range m.keys.Stage {
		if key.Matches(msg, b) {
			stage := i + 1
			return m.run(fmt.Sprintf("fire stage %d", stage), func() (string, error) {
				return "output on", m.dev.FireStage(stage)
			})
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.shutdown()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Custom):
		m.startPrompt(promptCurrent)
	case key.Matches(msg, m.keys.SetArm):
		m.startPrompt(promptArmCurrent)
	case key.Matches(msg, m.keys.Params):
		m.startPrompt(promptStage)
	case key.Matches(msg, m.keys.Arm):
		return m.run("arm", func() (string, error) {
			return "ready for firing", device.EnsureArmed(m.dev)
		})
	case key.Matches(msg, m.keys.Off):
		return m.run("turn off", func() (string, error) {
			return "output off", m.dev.TurnOff()
		})
	case key.Matches(msg, m.keys.Status):
		return m.run("status", func() (string, error) {
			st := m.dev.Status()
			return fmt.Sprintf("%s, %s", st.Mode, st.Description), nil
		})
	case key.Matches(msg, m.keys.Currents):
		return m.run("currents", func() (string, error) {
			arm, err := m.dev.ReadArmCurrent()
			if err != nil {
				return "", err
			}
			fire, err := m.dev.ReadFireCurrent()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("arm %d mA, fire %d mA", arm, fire), nil
		})
	}
	return nil
}

func (m *Model) startPrompt(p prompt) {
	m.prompt = p
	m.input = ""
}

func (m *Model) updatePrompt(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.prompt = promptNone
		return nil
	case key.Matches(msg, m.keys.Backspace):
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return nil
	case key.Matches(msg, m.keys.Submit):
		p, input := m.prompt, m.input
		m.prompt = promptNone
		return m.submit(p, input)
	}

	if msg.Type == tea.KeyRunes && len(m.input)+len(msg.Runes) <= 5 {
		for _, r := range msg.Runes {
			if r < '0' || r > '9' {
				return nil
			}
		}
		m.input += string(msg.Runes)
	}
	return nil
}

func (m *Model) submit(p prompt, input string) tea.Cmd {
	n, err := strconv.ParseUint(input, 10, 16)
	if err != nil {
		m.log(ErrorStyle.Render("input: ") + errs.Invalid("input", "%q is not a number", input).Error())
		return nil
	}
	v := uint16(n)

	switch p {
	case promptCurrent:
		return m.run(fmt.Sprintf("fire at %d mA", v), func() (string, error) {
			return "output on", m.dev.FireWithCurrent(v)
		})
	case promptArmCurrent:
		return m.run(fmt.Sprintf("set arm current %d mA", v), func() (string, error) {
			return "stored", m.dev.SetArmCurrent(v)
		})
	case promptStage:
		return m.run(fmt.Sprintf("stage %d", v), func() (string, error) {
			sp, err := m.dev.StageParameters(int(v))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("fire %d mA, arm %d mA, limit %.1f V, start %.1f V",
				sp.FireCurrentMA, sp.ArmCurrentMA, sp.VoltLimit, sp.VoltStart), nil
		})
	}
	return nil
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Lumidox II Controller"))
	b.WriteString("\n\n")
	b.WriteString(PanelStyle.Render(m.statusView()))
	b.WriteString("\n\n")

	for _, l := range m.lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	if len(m.lines) > 0 {
		b.WriteString("\n")
	}

	switch {
	case m.busy:
		b.WriteString(MutedStyle.Render("working..."))
		b.WriteString("\n\n")
	case m.prompt != promptNone:
		b.WriteString(PromptStyle.Render(m.prompt.label()+": ") + m.input + "█")
		b.WriteString("\n\n")
		b.WriteString(m.help.View(promptHelp{m.keys}))
		return b.String()
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) statusView() string {
	if m.status == nil {
		return MutedStyle.Render("reading device status...")
	}
	st := m.status
	mode := st.Mode.String()
	rows := []string{
		Field("Mode", ModeStyle(mode).Render(mode)),
		Field("", MutedStyle.Render(st.Description)),
		Field("Arm current", formatCurrent(st.ArmCurrentMA)),
		Field("Fire current", formatCurrent(st.FireCurrentMA)),
		Field("Connection", st.Health.Status.String()),
	}
	if info := m.dev.Info(); info != nil {
		rows = append(rows,
			Field("Model", info.ModelNumber),
			Field("Firmware", info.FirmwareVersion),
			Field("Max current", fmt.Sprintf("%d mA", info.MaxCurrentMA)),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func formatCurrent(c *uint16) string {
	if c == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d mA", *c)
}
