package tui

import "github.com/charmbracelet/lipgloss"

// Color palette - dark theme inspired by Catppuccin Mocha
var (
	ColorSurface0 = lipgloss.Color("#313244")
	ColorSurface2 = lipgloss.Color("#585b70")
	ColorOverlay0 = lipgloss.Color("#6c7086")
	ColorText     = lipgloss.Color("#cdd6f4")
	ColorSubtext0 = lipgloss.Color("#a6adc8")

	ColorRed      = lipgloss.Color("#f38ba8")
	ColorGreen    = lipgloss.Color("#a6e3a1")
	ColorYellow   = lipgloss.Color("#f9e2af")
	ColorBlue     = lipgloss.Color("#89b4fa")
	ColorMauve    = lipgloss.Color("#cba6f7")
	ColorTeal     = lipgloss.Color("#94e2d5")
	ColorPeach    = lipgloss.Color("#fab387")
	ColorLavender = lipgloss.Color("#b4befe")
)

var (
	userStyle     = lipgloss.NewStyle().Bold(true).Foreground(ColorBlue)
	agentStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorTeal)
	bodyStyle     = lipgloss.NewStyle().Foreground(ColorText)
	dimStyle      = lipgloss.NewStyle().Foreground(ColorOverlay0)
	toolStyle     = lipgloss.NewStyle().Foreground(ColorYellow)
	errStyle      = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
	noticeStyle   = lipgloss.NewStyle().Foreground(ColorPeach)
	researchStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorMauve)
	paperStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorGreen)
	interruptLine = lipgloss.NewStyle().Bold(true).Foreground(ColorPeach)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext0).
			Background(ColorSurface0).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSurface2).
			Padding(0, 1)
)
