package datacontext

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	exportColumns    = 8
	exportSampleRows = 3
	inlineValues     = 10
)

// Export renders the context as a prompt block of at most maxChars
// characters. Tables are written largest first, so the smallest tables are
// the ones dropped when space runs out. A nil context exports as "".
func (c *Context) Export(maxChars int) string {
	if c == nil {
		return ""
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var b strings.Builder
	b.WriteString("=== DATABASE CONTEXT ===\n")
	b.WriteString(c.Summary)
	b.WriteString("\n\n=== TABLE DETAILS ===\n")

	tables := make([]Table, len(c.Tables))
	copy(tables, c.Tables)
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].RowCount > tables[j].RowCount })

	const truncatedNote = "\n... (%d tables truncated for space)"
	for i, t := range tables {
		withSamples := b.Len() < maxChars*7/10
		block := renderTable(t, withSamples)
		if b.Len()+len(block)+len(truncatedNote)+8 > maxChars {
			fmt.Fprintf(&b, truncatedNote, len(tables)-i)
			break
		}
		b.WriteString(block)
	}

	out := b.String()
	if len(out) > maxChars {
		out = cutUTF8(out, maxChars)
	}
	return out
}

func renderTable(t Table, withSamples bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n### Table: %s\n", t.Name)
	fmt.Fprintf(&b, "Purpose: %s\n", t.Purpose)
	fmt.Fprintf(&b, "Rows: %s\n", groupDigits(t.RowCount))
	b.WriteString("Columns:\n")

	primary := map[string]bool{}
	for _, p := range t.PrimaryColumns {
		primary[p] = true
	}
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "  - %s (%s)\n", c.Name, c.Type)
	}

	shown := 0
	for _, name := range t.PrimaryColumns {
		if shown == exportColumns {
			break
		}
		c, ok := t.Column(name)
		if !ok {
			continue
		}
		switch {
		case len(c.DistinctValues) > 0 && len(c.DistinctValues) <= inlineValues:
			fmt.Fprintf(&b, "  %s values: %s\n", c.Name, joinValues(c.DistinctValues))
		case len(c.DistinctValues) > 0:
			fmt.Fprintf(&b, "  %s sample values: %s... (%d distinct)\n", c.Name, joinValues(c.DistinctValues[:5]), c.DistinctCount)
		case len(c.SampleValues) > 0:
			n := len(c.SampleValues)
			if n > 3 {
				n = 3
			}
			fmt.Fprintf(&b, "  %s examples: %s\n", c.Name, joinValues(c.SampleValues[:n]))
		default:
			continue
		}
		shown++
	}

	if withSamples && len(t.SampleRows) > 0 {
		b.WriteString("Sample rows:\n")
		for i, row := range t.SampleRows {
			if i == exportSampleRows {
				break
			}
			var parts []string
			for _, c := range t.Columns {
				if !primary[c.Name] {
					continue
				}
				parts = append(parts, c.Name+"="+cutUTF8(FormatValue(row[c.Name]), 50))
			}
			fmt.Fprintf(&b, "  Row %d: %s\n", i+1, strings.Join(parts, ", "))
		}
	}
	return b.String()
}

func joinValues(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = FormatValue(v)
	}
	return strings.Join(parts, ", ")
}

// FormatValue renders a cell for prompts: strings quoted, times as dates
// when they carry no clock, NULL for nil.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return `"` + t + `"`
	case time.Time:
		if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(v)
	}
}

// cutUTF8 shortens s to at most n bytes without splitting a rune.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
