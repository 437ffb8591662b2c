package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the key bindings for the insight viewer.
type KeyMap struct {
	// Tabs
	Overview key.Binding
	Pipeline key.Binding
	Projects key.Binding
	NextTab  key.Binding
	PrevTab  key.Binding

	// Document
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Actions
	Generate key.Binding
	Cancel   key.Binding
	Recent   key.Binding
	Logout   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Overview: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "portfolio overview"),
		),
		Pipeline: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "pipeline analysis"),
		),
		Projects: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "project health"),
		),
		NextTab: key.NewBinding(
			key.WithKeys("tab", "right", "l"),
			key.WithHelp("tab/→", "next tab"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("shift+tab", "left", "h"),
			key.WithHelp("shift+tab/←", "previous tab"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Top: key.NewBinding(
			key.WithKeys("home"),
			key.WithHelp("home", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("end/G", "bottom"),
		),
		Generate: key.NewBinding(
			key.WithKeys("g", "enter"),
			key.WithHelp("g", "generate insights"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "cancel generation"),
		),
		Recent: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "recent analyses"),
		),
		Logout: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "sign out"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns key bindings to be shown in the mini help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Generate, k.NextTab, k.Help, k.Quit}
}

// FullHelp returns key bindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Overview, k.Pipeline, k.Projects, k.NextTab, k.PrevTab},
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.Generate, k.Cancel, k.Recent, k.Logout, k.Help, k.Quit},
	}
}

// HelpView renders the full key reference, one column per group: tabs,
// document scrolling and actions.
func (k KeyMap) HelpView(width int) string {
	// Border and horizontal padding.
	inner := width - 6
	body := TitleStyle.Render("Keys") + "\n" + renderHelp(k, inner, true) + "\n\n" +
		dimStyle.Render("Analyses stream in as they are generated; finished ones stay cached per tab until sign out.")
	return keyReferenceStyle.Width(max(inner, 20)).Render(body)
}

// renderHelp lays out km as a single line or, with full set, in columns.
func renderHelp(km help.KeyMap, width int, full bool) string {
	h := help.New()
	h.ShowAll = full
	h.Width = width
	return h.View(km)
}

// LoginKeyMap defines the key bindings for the login screen.
type LoginKeyMap struct {
	Manual   key.Binding
	NextItem key.Binding
	PrevItem key.Binding
	Submit   key.Binding
}

// DefaultLoginKeyMap returns the default login bindings.
func DefaultLoginKeyMap() LoginKeyMap {
	return LoginKeyMap{
		Manual: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "sign in manually instead"),
		),
		NextItem: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		PrevItem: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "previous field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "sign in"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k LoginKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextItem, k.Submit}
}

// FullHelp implements help.KeyMap.
func (k LoginKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Manual, k.NextItem, k.PrevItem, k.Submit}}
}
