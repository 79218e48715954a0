package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/skalibog/bfsignals/pkg/models"
)

var (
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")
	mutedColor     = lipgloss.Color("#999999")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("#222222"))
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	tableHeader   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
)

func typeStyle(t models.SignalType, s models.Strength) lipgloss.Style {
	var style lipgloss.Style
	switch t {
	case models.SignalBuy:
		style = lipgloss.NewStyle().Foreground(successColor)
	case models.SignalSell:
		style = lipgloss.NewStyle().Foreground(errorColor)
	default:
		return lipgloss.NewStyle().Foreground(warningColor)
	}
	if s == models.StrengthStrong {
		style = style.Bold(true)
	}
	return style
}

func statusStyle(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusDone:
		return lipgloss.NewStyle().Foreground(successColor)
	case models.StatusMissed:
		return lipgloss.NewStyle().Foreground(errorColor)
	case models.StatusProcessing:
		return lipgloss.NewStyle().Foreground(warningColor)
	}
	return lipgloss.NewStyle().Foreground(mutedColor)
}

func typeEmoji(t models.SignalType) string {
	switch t {
	case models.SignalBuy:
		return "🟢"
	case models.SignalSell:
		return "🔴"
	}
	return "⚪"
}

func strengthEmoji(s models.Strength) string {
	switch s {
	case models.StrengthStrong:
		return "🔥"
	case models.StrengthMedium:
		return "⚡"
	case models.StrengthWeak:
		return "💡"
	}
	return "📊"
}
