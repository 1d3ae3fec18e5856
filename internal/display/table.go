package display

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

// ShowTable prints rows under headers with a rounded border
func ShowTable(headers []string, rows [][]string) {
	fmt.Fprintln(Stdout, RenderTable(headers, rows))
}

// RenderTable returns the bordered table as a string
func RenderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			return s
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}
