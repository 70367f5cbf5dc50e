package debugtui

import "github.com/charmbracelet/lipgloss"

var (
	AccentColor = lipgloss.Color("#4682B4")
	MutedColor  = lipgloss.Color("#888888")
	BorderColor = lipgloss.Color("#666666")
	HaltColor   = lipgloss.Color("#CC3333")
)

var (
	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(AccentColor).
			Bold(true)

	CurrentLineStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(AccentColor).
				Bold(true)

	MutedStyle = lipgloss.NewStyle().Foreground(MutedColor)
	HaltStyle  = lipgloss.NewStyle().Foreground(HaltColor).Bold(true)
)
