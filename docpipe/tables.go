package docpipe

import (
	"regexp"
	"strings"
)

// cellGapRe splits a text line into cells at tab runs or runs of two or
// more spaces — the gaps left by positioned text fragments.
var cellGapRe = regexp.MustCompile(`\t+| {2,}`)

// minTableRows is the smallest line run worth calling a table.
const minTableRows = 2

// recoverTables finds tabular regions in page text. A region is a maximal
// run of non-blank lines in which at least half the lines split into two or
// more cells; single-cell lines inside a region are kept as rows — the
// structure parser reads them as section headers.
func recoverTables(text string) []RawTable {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var tables []RawTable
	var block [][]string
	multiCell := 0

	flush := func() {
		if len(block) >= minTableRows && multiCell*2 >= len(block) && multiCell > 0 {
			tables = append(tables, RawTable(block))
		}
		block = nil
		multiCell = 0
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cells := splitCells(line)
		block = append(block, cells)
		if len(cells) >= 2 {
			multiCell++
		}
	}
	flush()
	return tables
}

// splitCells divides a line at cell gaps, trimming each cell.
func splitCells(line string) []string {
	parts := cellGapRe.Split(strings.TrimSpace(line), -1)
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}
