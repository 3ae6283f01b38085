package output

import (
	"fmt"

	"github.com/tanq16/rangeflow/internal/engine"
	"github.com/tanq16/rangeflow/internal/utils"
)

func PrintSuccess(text string) {
	fmt.Println(successStyle.Render(StyleSymbols["pass"] + " " + text))
}
func PrintError(text string) {
	fmt.Println(errorStyle.Render(StyleSymbols["fail"] + " " + text))
}
func PrintWarning(text string) {
	fmt.Println(warningStyle.Render(StyleSymbols["warning"] + " " + text))
}
func PrintInfo(text string) {
	fmt.Println(infoStyle.Render(StyleSymbols["info"] + " " + text))
}
func PrintHeader(text string) {
	fmt.Println(headerStyle.Render(text))
}

// FormatTask renders one status line for a download.
func FormatTask(p engine.Progress) string {
	style, ok := statusStyles[p.Status]
	if !ok {
		style = infoStyle
	}
	line := fmt.Sprintf("%s %-11s %s  %s / %s (%.1f%%)",
		statusSymbols[p.Status],
		p.Status,
		p.FileName,
		utils.FormatBytes(uint64(p.DownloadedBytes)),
		utils.FormatBytes(uint64(p.FileSize)),
		p.Percent,
	)
	if p.Status == utils.StatusDownloading {
		line += " " + StyleSymbols["bullet"] + " " + utils.FormatSpeed(p.DownloadSpeed)
	}
	return style.Render(line)
}
