package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/agencydesk/internal/constants"
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	MutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	OKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	ErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	badgeBase = lipgloss.NewStyle().Padding(0, 1).Bold(true)

	badges = map[constants.SaveStatus]lipgloss.Style{
		constants.StatusIdle:   badgeBase.Foreground(lipgloss.Color("250")).Background(lipgloss.Color("236")),
		constants.StatusSaving: badgeBase.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")),
		constants.StatusSaved:  badgeBase.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")),
		constants.StatusError:  badgeBase.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("196")),
	}
)

// Badge renders the aggregated save status indicator.
func Badge(status constants.SaveStatus) string {
	style, ok := badges[status]
	if !ok {
		style = badges[constants.StatusIdle]
	}
	return style.Render(string(status))
}

// SourceStyle colors a reconcile source.
func SourceStyle(source constants.SlotSource) lipgloss.Style {
	switch source {
	case constants.SourceRemote:
		return OKStyle
	case constants.SourceMirror, constants.SourceDefault:
		return WarnStyle
	default:
		return MutedStyle
	}
}
