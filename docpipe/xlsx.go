package docpipe

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/xuri/excelize/v2"
)

// extractXLSX renders the first worksheet as an aligned text table. The first
// row is the header.
func extractXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", openErr("open xlsx", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return renderTable(rows), nil
}

// renderTable right-justifies every column to its widest cell and separates
// columns with two spaces. Short rows are padded with empty cells.
func renderTable(rows [][]string) string {
	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return ""
	}

	widths := make([]int, cols)
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var sb strings.Builder
		for i := range cols {
			if i > 0 {
				sb.WriteString("  ")
			}
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			sb.WriteString(runewidth.FillLeft(cell, widths[i]))
		}
		lines = append(lines, strings.TrimRight(sb.String(), " "))
	}
	return strings.Join(lines, "\n")
}
