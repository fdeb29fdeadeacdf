// Package ui holds the terminal styling for CLI output.
package ui

import "github.com/charmbracelet/lipgloss"

// Color palette, severity colors per OWASP/Nuclei conventions.
var (
	Primary   = lipgloss.Color("#7D56F4")
	Secondary = lipgloss.Color("#00D4AA")

	Critical = lipgloss.Color("#FF0000")
	High     = lipgloss.Color("#FF6B6B")
	Medium   = lipgloss.Color("#FFD93D")
	Low      = lipgloss.Color("#6BCB77")
	Info     = lipgloss.Color("#4D96FF")

	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(Primary).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarnStyle    = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 1)
)

// SeverityStyle returns the style for a severity string.
func SeverityStyle(severity string) lipgloss.Style {
	switch severity {
	case "critical":
		return lipgloss.NewStyle().Foreground(Critical).Bold(true)
	case "high":
		return lipgloss.NewStyle().Foreground(High)
	case "medium":
		return lipgloss.NewStyle().Foreground(Medium)
	case "low":
		return lipgloss.NewStyle().Foreground(Low)
	default:
		return lipgloss.NewStyle().Foreground(Info)
	}
}

// StatusStyle returns the style for a step or run status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "succeeded", "completed", "approved":
		return SuccessStyle
	case "failed", "aborted", "rejected":
		return ErrorStyle
	case "skipped", "expired", "pending", "awaiting-approval":
		return WarnStyle
	default:
		return MutedStyle
	}
}
