package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha accents.
var (
	colorText     = lipgloss.Color("#cdd6f4")
	colorSubtext  = lipgloss.Color("#a6adc8")
	colorSurface0 = lipgloss.Color("#313244")
	colorSurface1 = lipgloss.Color("#45475a")
	colorGreen    = lipgloss.Color("#a6e3a1")
	colorYellow   = lipgloss.Color("#f9e2af")
	colorPeach    = lipgloss.Color("#fab387")
	colorRed      = lipgloss.Color("#f38ba8")
	colorMauve    = lipgloss.Color("#cba6f7")
	colorBlue     = lipgloss.Color("#89b4fa")
)

// Shared styles, also used by the CLI for non-interactive output.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMauve).
			Background(colorSurface0).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	LabelStyle = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Width(16)

	ValueStyle = lipgloss.NewStyle().
			Foreground(colorText)

	OKStyle = lipgloss.NewStyle().
		Foreground(colorGreen).
		Bold(true)

	WarnStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(colorSubtext)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Padding(0, 1)

	PromptStyle = lipgloss.NewStyle().
			Foreground(colorPeach).
			Bold(true)
)

// ModeStyle colors a mode name by how dangerous the output state is.
func ModeStyle(mode string) lipgloss.Style {
	switch mode {
	case "Remote":
		return ErrorStyle
	case "Armed":
		return WarnStyle
	case "Standby", "Local":
		return OKStyle
	default:
		return MutedStyle
	}
}

// Field renders one "label value" row.
func Field(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}
