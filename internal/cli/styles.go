package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/existflow/ironsync/internal/model"
)

// Color palette
var (
	colorOK       = lipgloss.Color("#95E1A3") // Green
	colorPending  = lipgloss.Color("#FFE66D") // Yellow
	colorConflict = lipgloss.Color("#FFB347") // Orange
	colorError    = lipgloss.Color("#FF6B6B") // Red
	colorMuted    = lipgloss.Color("#888888")
	colorPrimary  = lipgloss.Color("#4ECDC4")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	doneStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Strikethrough(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	statusStyles = map[model.SyncStatus]lipgloss.Style{
		model.SyncStatusSynced:   lipgloss.NewStyle().Foreground(colorOK),
		model.SyncStatusPending:  lipgloss.NewStyle().Foreground(colorPending),
		model.SyncStatusConflict: lipgloss.NewStyle().Foreground(colorConflict),
		model.SyncStatusError:    lipgloss.NewStyle().Foreground(colorError),
	}
)

// renderStatus renders a sync status badge like [synced] in its status color
func renderStatus(s model.SyncStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		style = mutedStyle
	}
	return style.Render("[" + string(s) + "]")
}
