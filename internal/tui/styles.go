package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorRed    = lipgloss.Color("196")
	ColorPink   = lipgloss.Color("201")
	ColorOrange = lipgloss.Color("208")
	ColorBlue   = lipgloss.Color("39")
	ColorGreen  = lipgloss.Color("42")
	ColorGray   = lipgloss.Color("244")
	ColorWhite  = lipgloss.Color("252")
)

var (
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)

	activeSectionStyle = sectionStyle.
				BorderForeground(ColorBlue)

	chartTitleStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	barStyle = lipgloss.NewStyle().
			Foreground(ColorOrange).
			Background(ColorOrange)
)

// levelColor returns the display color for an error level.
func levelColor(level string) lipgloss.Color {
	switch level {
	case "FATAL", "OutOfMemoryError":
		return ColorPink
	case "ERROR":
		return ColorRed
	case "Exception", "SQLException", "TimeoutException":
		return ColorOrange
	default:
		return ColorWhite
	}
}

// deltaColor is red when errors grew and green when they shrank.
func deltaColor(diff int64) lipgloss.Color {
	switch {
	case diff > 0:
		return ColorRed
	case diff < 0:
		return ColorGreen
	default:
		return ColorGray
	}
}
