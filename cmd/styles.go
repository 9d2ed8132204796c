package cmd

import (
	"fmt"
	"os"

	"dr-meter/internal/types"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	errorColor = lipgloss.Color("#D70000")
	lowColor   = lipgloss.Color("#FF5F5F") // DR1-7
	midColor   = lipgloss.Color("#FFD75F") // DR8-13
	highColor  = lipgloss.Color("#5FD75F") // DR14+
	mutedColor = lipgloss.Color("#888888")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	MutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

// DRStyle 按 DR 值着色
func DRStyle(dr types.DR) lipgloss.Style {
	v, ok := dr.Get()
	switch {
	case !ok:
		return MutedStyle
	case v < 8:
		return lipgloss.NewStyle().Foreground(lowColor)
	case v < 14:
		return lipgloss.NewStyle().Foreground(midColor)
	default:
		return lipgloss.NewStyle().Foreground(highColor)
	}
}

// FormatDR 控制台中的 DR 文本
func FormatDR(dr types.DR) string {
	if !dr.Present() {
		return "N/A"
	}
	return "DR" + dr.String()
}

// PrintError 输出单行错误信息
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("错误:"), message)
}
