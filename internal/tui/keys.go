package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the menu bindings.
type KeyMap struct {
	Stage     [5]key.Binding
	Custom    key.Binding
	Arm       key.Binding
	Off       key.Binding
	Status    key.Binding
	Currents  key.Binding
	Params    key.Binding
	SetArm    key.Binding
	Help      key.Binding
	Quit      key.Binding
	Submit    key.Binding
	Cancel    key.Binding
	Backspace key.Binding
}

// DefaultKeyMap mirrors the numbered menu of the console tool with single
// letter shortcuts for the rest.
func DefaultKeyMap() KeyMap {
	km := KeyMap{
		Custom: key.NewBinding(
			key.WithKeys("c", "6"),
			key.WithHelp("c", "fire at current"),
		),
		Arm: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "arm"),
		),
		Off: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "turn off"),
		),
		Status: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "status"),
		),
		Currents: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "read currents"),
		),
		Params: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "stage parameters"),
		),
		SetArm: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "set arm current"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "shut down and quit"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Backspace: key.NewBinding(
			key.WithKeys("backspace"),
		),
	}
	for i := range km.Stage {
		n := string(rune('1' + i))
		km.Stage[i] = key.NewBinding(
			key.WithKeys(n),
			key.WithHelp(n, "fire stage "+n),
		)
	}
	return km
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Stage[0], k.Custom, k.Arm, k.Off, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Stage[0], k.Stage[1], k.Stage[2], k.Stage[3], k.Stage[4], k.Custom},
		{k.Arm, k.Off, k.SetArm},
		{k.Status, k.Currents, k.Params},
		{k.Help, k.Quit},
	}
}

// promptHelp is shown while a number is being entered.
type promptHelp struct{ k KeyMap }

func (p promptHelp) ShortHelp() []key.Binding { return []key.Binding{p.k.Submit, p.k.Cancel} }

func (p promptHelp) FullHelp() [][]key.Binding { return [][]key.Binding{p.ShortHelp()} }
