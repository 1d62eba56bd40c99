package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPurple = lipgloss.Color("#7D56F4")
	colorGreen  = lipgloss.Color("#04B575")
	colorRed    = lipgloss.Color("#FF4141")
	colorGray   = lipgloss.Color("#626262")
	colorYellow = lipgloss.Color("#FFB454")

	styleTitle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true).
			MarginBottom(1)

	styleTable = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Padding(0, 1)

	styleHelp = lipgloss.NewStyle().
			Foreground(colorGray).
			MarginTop(1)

	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleFailed  = lipgloss.NewStyle().Foreground(colorRed)
	styleRunning = lipgloss.NewStyle().Foreground(colorYellow)
)
