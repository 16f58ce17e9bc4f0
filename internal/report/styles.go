package report

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#5FAFAF") // Teal accent
	secondaryColor = lipgloss.Color("#666666") // Gray for secondary text
	successColor   = lipgloss.Color("#87AF87") // Muted sage for success
	errorColor     = lipgloss.Color("#AF5F5F") // Muted terracotta for errors
	warnColor      = lipgloss.Color("#D7AF5F") // Amber for skipped work
)

// styles are bound to the renderer of one output, so colour is only emitted
// when that output is a terminal.
type styles struct {
	title    lipgloss.Style
	subtle   lipgloss.Style
	critical lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
	skipped  lipgloss.Style
	border   lipgloss.Style
	cell     lipgloss.Style
	header   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title: r.NewStyle().
			Bold(true).
			Foreground(primaryColor),
		subtle: r.NewStyle().
			Foreground(secondaryColor),
		critical: r.NewStyle().
			Bold(true).
			Foreground(primaryColor),
		success: r.NewStyle().
			Foreground(successColor),
		failure: r.NewStyle().
			Foreground(errorColor),
		skipped: r.NewStyle().
			Foreground(warnColor),
		border: r.NewStyle().
			Foreground(secondaryColor),
		cell: r.NewStyle().
			Padding(0, 1),
		header: r.NewStyle().
			Bold(true).
			Padding(0, 1),
	}
}
