package pdf

import (
	"regexp"
	"strings"
)

// minTableLines is the shortest run of aligned lines treated as a table.
const minTableLines = 3

// columnGap separates cells in pdftotext -layout output.
var columnGap = regexp.MustCompile(`\s{2,}`)

// DetectTables finds runs of at least three consecutive lines that each
// have two or more column gaps, and renders every line of such a run as
// a "cell | cell | cell" row.
func DetectTables(text string) []string {
	var rows []string
	var run [][]string

	flush := func() {
		if len(run) >= minTableLines {
			for _, cells := range run {
				rows = append(rows, strings.Join(cells, " | "))
			}
		}
		run = run[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		cells := splitCells(line)
		if len(cells) >= 3 {
			run = append(run, cells)
			continue
		}
		flush()
	}
	flush()
	return rows
}

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	return columnGap.Split(line, -1)
}
