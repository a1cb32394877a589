package assign

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// SummaryTable renders bin sizes as a terminal table, unbinned sequences last.
func SummaryTable(t Table) string {
	total := len(t.Rows)
	share := func(n int) string {
		if total == 0 {
			return "-"
		}
		return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("BIN", "SEQUENCES", "SHARE").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col > 0:
				return numberStyle
			}
			return cellStyle
		})
	for _, b := range t.Bins {
		tbl.Row(Label(b.ID), humanize.Comma(int64(b.Size)), share(b.Size))
	}
	unbinned := total - t.Binned()
	tbl.Row(Unbinned, humanize.Comma(int64(unbinned)), share(unbinned))
	return tbl.Render()
}
