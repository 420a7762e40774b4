package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorPrimary = "#3B82F6"
	colorAccent  = "#8B5CF6"
	colorSuccess = "#22C55E"
	colorError   = "#EF4444"
	colorInfo    = "#9CA3AF"
	colorBorder  = "#374151"
	colorText    = "#FAFAFA"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary)).
			MarginBottom(1)

	HeadingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorText))

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorInfo))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorSuccess))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError))

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorBorder)).
			Padding(0, 1).
			Width(64)

	FocusedBoxStyle = BoxStyle.
			BorderForeground(lipgloss.Color(colorPrimary))

	ButtonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorText)).
			Background(lipgloss.Color(colorAccent)).
			Padding(0, 2)

	DisabledButtonStyle = ButtonStyle.
				Background(lipgloss.Color(colorBorder))
)
