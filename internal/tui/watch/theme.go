// Package watch renders the notification stream for `relayd watch`, either
// as styled log lines or as a full-screen dashboard.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch output.
type Theme struct {
	Heartbeat lipgloss.Style
	Session   lipgloss.Style
	Custom    lipgloss.Style
	Failed    lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Topic     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	ActivityOn  lipgloss.Style
	ActivityOff lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Heartbeat: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Session:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Custom:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Topic:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		ActivityOn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		ActivityOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// TypeStyle picks the style for a notification type.
func (t Theme) TypeStyle(notifType string) lipgloss.Style {
	switch {
	case notifType == "heartbeat":
		return t.Heartbeat
	case len(notifType) > 8 && notifType[:8] == "session.":
		return t.Session
	default:
		return t.Custom
	}
}
