// Package ui renders terminal output for the ledger CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#86D993"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#F5C26B"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF7B72"})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#79C0FF"}).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"})
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func init() {
	if !ShouldColor(os.Stdout) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ShouldColor reports whether output to f should carry ANSI colors.
// NO_COLOR disables colors regardless of the terminal.
func ShouldColor(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsTerminal(f)
}

// RenderPass renders s in the success color.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders s in the warning color.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders s in the error color.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent renders s bold in the accent color.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderMuted renders s dimmed.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderSigned renders an amount string as pass or fail depending on its
// sign.
func RenderSigned(amount string, negative bool) string {
	if negative {
		return RenderFail(amount)
	}
	return RenderPass(amount)
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}
