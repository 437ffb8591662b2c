package tui

import "github.com/charmbracelet/lipgloss"

var (
	// TitleStyle is used for screen titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")). // Purple
			MarginBottom(1)

	// SelectedItemStyle is used for the active tab and focused input.
	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("170")). // Light purple
				Bold(true)

	// NormalItemStyle is used for inactive tabs.
	NormalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Light gray

	// ErrorStyle is used for error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// PromptStyle is used for prompt text.
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")). // Light blue
			MarginBottom(1)

	// HelpStyle is used for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // Dark gray
			MarginTop(1)

	// ToastStyle frames notifications such as single sign-on failures.
	ToastStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")). // Orange
			Foreground(lipgloss.Color("214")).
			Padding(0, 1).
			MarginBottom(1)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Padding(0, 1)

	documentStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	// keyReferenceStyle frames the full key list in the insight viewer.
	keyReferenceStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 2)
)

// Markdown styles
var (
	markdownTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	markdownHeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	markdownBoldStyle    = lipgloss.NewStyle().Bold(true)
	markdownItalicStyle  = lipgloss.NewStyle().Italic(true)
	markdownCodeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("180"))
	markdownQuoteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	markdownRuleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)
