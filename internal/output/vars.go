package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tanq16/rangeflow/internal/utils"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))            // dark green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))            // blue
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))            // cyan
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))            // purple
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"pending": "◉",
	"info":    "ℹ",
	"arrow":   "→",
	"bullet":  "•",
}

var statusStyles = map[utils.TaskStatus]lipgloss.Style{
	utils.StatusQueued:      pendingStyle,
	utils.StatusDownloading: infoStyle,
	utils.StatusPaused:      warningStyle,
	utils.StatusCancelled:   detailStyle,
	utils.StatusCompleted:   successStyle,
	utils.StatusFailed:      errorStyle,
}

var statusSymbols = map[utils.TaskStatus]string{
	utils.StatusQueued:      StyleSymbols["pending"],
	utils.StatusDownloading: StyleSymbols["arrow"],
	utils.StatusPaused:      StyleSymbols["warning"],
	utils.StatusCancelled:   StyleSymbols["bullet"],
	utils.StatusCompleted:   StyleSymbols["pass"],
	utils.StatusFailed:      StyleSymbols["fail"],
}
