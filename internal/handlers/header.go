package handlers

import (
	"strconv"
	"strings"
)

// HeaderScanRows is how many leading rows DetectHeaderRow scores.
const HeaderScanRows = 10

// DetectHeaderRow picks the most header-like row among the first maxRows rows
// of grid. A row scores (non_blank + 2*text_cells) * unique_ratio, where text
// cells are non-blank cells that do not parse as numbers. The best row is
// accepted only when its score exceeds half the column count; otherwise the
// result is (0, false) and callers use the first row.
func DetectHeaderRow(grid [][]string, maxRows int) (int, bool) {
	width := gridWidth(grid)
	if width == 0 {
		return 0, false
	}
	if maxRows <= 0 || maxRows > len(grid) {
		maxRows = len(grid)
	}

	best, bestScore := 0, 0.0
	for i := 0; i < maxRows; i++ {
		if s := headerScore(grid[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	if bestScore > float64(width)*0.5 {
		return best, true
	}
	return 0, false
}

func headerScore(row []string) float64 {
	nonBlank, text := 0, 0
	uniq := make(map[string]struct{}, len(row))
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		nonBlank++
		uniq[cell] = struct{}{}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			text++
		}
	}
	if nonBlank == 0 {
		return 0
	}
	score := float64(nonBlank + 2*text)
	return score * float64(len(uniq)) / float64(nonBlank)
}

func gridWidth(grid [][]string) int {
	w := 0
	for _, r := range grid {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// gridRowSet turns a raw cell grid into a RowSet: blank rows are dropped, the
// header row is detected, rows above it are discarded, blank cells become nil
// and columns with no values are removed.
func gridRowSet(table string, grid [][]string, meta map[string]any) RowSet {
	rows := make([][]string, 0, len(grid))
	for _, r := range grid {
		trimmed := make([]string, len(r))
		blank := true
		for i, c := range r {
			trimmed[i] = strings.TrimSpace(c)
			if trimmed[i] != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, trimmed)
		}
	}
	rs := RowSet{TableName: table, Metadata: meta}
	if rs.Metadata == nil {
		rs.Metadata = map[string]any{}
	}
	if len(rows) == 0 {
		return rs
	}

	h, _ := DetectHeaderRow(rows, HeaderScanRows)
	width := gridWidth(rows)
	header := make([]string, width)
	copy(header, rows[h])
	cols := ColumnNames(header)

	body := rows[h+1:]
	used := make([]bool, width)
	for _, r := range body {
		for i, c := range r {
			if c != "" {
				used[i] = true
			}
		}
	}

	for i, c := range cols {
		if used[i] {
			rs.Columns = append(rs.Columns, c)
		}
	}
	for _, r := range body {
		m := make(map[string]any, len(rs.Columns))
		for i, c := range cols {
			if !used[i] {
				continue
			}
			if i < len(r) && r[i] != "" {
				m[c] = r[i]
			} else {
				m[c] = nil
			}
		}
		rs.Rows = append(rs.Rows, m)
	}
	rs.Metadata["header_row"] = h
	rs.Metadata["row_count"] = len(rs.Rows)
	rs.Metadata["column_count"] = len(rs.Columns)
	return rs
}
