package formatter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// notSpecified stands in for NULL group keys and cells.
const notSpecified = "not specified"

// listCap is how many list items each mode shows before cutting off.
var listCap = map[Mode]int{Standard: 20, Executive: 5, Research: 50, Technical: 20}

var displayPriority = []string{"name", "title", "domain", "category", "type", "description", "risk", "count", "total"}

// render is the deterministic renderer for intent, with the mode trailer.
func render(r result, intent Intent) rendered {
	var out rendered
	switch intent {
	case Count:
		out = renderCount(r)
	case List:
		out = renderList(r)
	case Detail:
		out = renderDetail(r)
	case Aggregate:
		out = renderAggregate(r)
	case Search:
		out = renderSearch(r)
	default:
		out = renderGeneric(r)
	}
	out.content += modeTrailer(r)
	return out
}

func modeTrailer(r result) string {
	switch r.mode {
	case Research:
		return fmt.Sprintf("\n\nRows returned: %d", len(r.rows))
	case Technical:
		var b strings.Builder
		if r.sql != "" {
			fmt.Fprintf(&b, "\n\nSQL: `%s`", r.sql)
		}
		if len(r.tables) > 0 {
			fmt.Fprintf(&b, "\nTables: %s", strings.Join(r.tables, ", "))
		}
		return b.String()
	}
	return ""
}

// countValue finds the single count cell of a one-row result.
func countValue(r result) (any, bool) {
	if len(r.rows) != 1 {
		return nil, false
	}
	row := r.rows[0]
	for _, c := range r.cols {
		l := strings.ToLower(c)
		if strings.Contains(l, "count") || l == "total" {
			return row[c], true
		}
	}
	if len(r.cols) == 1 {
		return row[r.cols[0]], true
	}
	for _, c := range r.cols {
		if _, ok := toFloat(row[c]); ok {
			return row[c], true
		}
	}
	return nil, false
}

func renderCount(r result) rendered {
	v, ok := countValue(r)
	if !ok {
		return renderList(r)
	}
	n := display(v)
	return rendered{
		summary: "Count result: " + n,
		content: "**Result**: " + n,
	}
}

// displayColumns picks the columns worth showing in a list: exact priority
// names, then names containing one, then the first three.
func displayColumns(cols []string) []string {
	var out []string
	for _, c := range cols {
		l := strings.ToLower(c)
		for _, p := range displayPriority {
			if l == p {
				out = append(out, c)
				break
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, c := range cols {
		l := strings.ToLower(c)
		for _, p := range displayPriority {
			if strings.Contains(l, p) {
				out = append(out, c)
				break
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	if len(cols) > 3 {
		return cols[:3]
	}
	return cols
}

func renderList(r result) rendered {
	cols := displayColumns(r.cols)
	items := make([]map[string]any, 0, len(r.rows))
	for _, row := range r.rows {
		for _, c := range cols {
			if row[c] != nil {
				items = append(items, row)
				break
			}
		}
	}
	// "1. Topic" style values keep their numeric order
	if len(items) > 0 && len(cols) > 0 {
		first := cols[0]
		if _, ok := leadingNumber(display(items[0][first])); ok {
			sort.SliceStable(items, func(i, j int) bool {
				a, okA := leadingNumber(display(items[i][first]))
				b, okB := leadingNumber(display(items[j][first]))
				if okA != okB {
					return okA
				}
				return a < b
			})
		}
	}

	limit := listCap[r.mode]
	if limit == 0 {
		limit = listCap[Standard]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d items:\n", len(items))
	for i, row := range items {
		if i == limit {
			fmt.Fprintf(&b, "\n... and %d more", len(items)-limit)
			break
		}
		vals := make([]string, 0, len(cols))
		for _, c := range cols {
			if row[c] != nil {
				vals = append(vals, display(row[c]))
			}
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, strings.Join(vals, " - "))
	}
	return rendered{
		summary: fmt.Sprintf("Found %d items", len(items)),
		content: b.String(),
	}
}

func renderDetail(r result) rendered {
	var b strings.Builder
	if len(r.rows) == 1 {
		b.WriteString("**Details:**\n")
		for _, c := range r.cols {
			if v := r.rows[0][c]; v != nil {
				fmt.Fprintf(&b, "\n- %s: %s", c, display(v))
			}
		}
	} else {
		shown := min(len(r.rows), 5)
		fmt.Fprintf(&b, "Found %d items. Showing first %d:\n", len(r.rows), shown)
		for i, row := range r.rows[:shown] {
			fmt.Fprintf(&b, "\n**Item %d:**", i+1)
			for _, c := range r.cols {
				if v := row[c]; v != nil {
					fmt.Fprintf(&b, "\n  - %s: %s", c, display(v))
				}
			}
		}
	}
	return rendered{
		summary: fmt.Sprintf("Showing details for %d item(s)", len(r.rows)),
		content: b.String(),
	}
}

// countColumn names the column holding group sizes: a name with "count" in
// it, else the last numeric column that is not the first column.
func countColumn(r result) string {
	for _, c := range r.cols {
		if strings.Contains(strings.ToLower(c), "count") {
			return c
		}
	}
	if len(r.rows) == 0 {
		return ""
	}
	for i := len(r.cols) - 1; i > 0; i-- {
		if _, ok := toFloat(r.rows[0][r.cols[i]]); ok {
			return r.cols[i]
		}
	}
	return ""
}

// groupKey is the first column that is not the count column.
func groupKey(r result, countCol string) string {
	for _, c := range r.cols {
		if c != countCol {
			return c
		}
	}
	return ""
}

// sortedGroups orders rows by count descending with NULL-keyed groups last.
func sortedGroups(r result, countCol, key string) []map[string]any {
	rows := append([]map[string]any(nil), r.rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		ni, nj := rows[i][key] == nil, rows[j][key] == nil
		if ni != nj {
			return nj
		}
		if countCol == "" {
			return false
		}
		a, _ := toFloat(rows[i][countCol])
		b, _ := toFloat(rows[j][countCol])
		return a > b
	})
	return rows
}

func renderAggregate(r result) rendered {
	countCol := countColumn(r)
	key := groupKey(r, countCol)
	var total float64
	if countCol != "" {
		for _, row := range r.rows {
			v, _ := toFloat(row[countCol])
			total += v
		}
	}
	rows := sortedGroups(r, countCol, key)

	var b strings.Builder
	fmt.Fprintf(&b, "**Aggregated Results** (%d groups, %s total):\n", len(rows), formatNumber(total))
	for _, row := range rows {
		parts := make([]string, 0, len(r.cols))
		for _, c := range r.cols {
			v := display(row[c])
			if c == countCol && total > 0 {
				n, _ := toFloat(row[c])
				v += fmt.Sprintf(" (%.1f%%)", n/total*100)
			}
			parts = append(parts, c+": "+v)
		}
		b.WriteString("\n- " + strings.Join(parts, ", "))
	}
	return rendered{
		summary: fmt.Sprintf("Aggregated into %d groups", len(rows)),
		content: b.String(),
	}
}

func renderSearch(r result) rendered {
	shown := 10
	if r.mode == Executive {
		shown = 5
	}
	shown = min(shown, len(r.rows))

	var b strings.Builder
	fmt.Fprintf(&b, "**Search Results** (%d total matches):\n", len(r.rows))
	if len(r.rows) > shown {
		fmt.Fprintf(&b, "Showing first %d results:\n", shown)
	}
	for i, row := range r.rows[:shown] {
		title := titleOf(r, row)
		if title == "" {
			title = fmt.Sprintf("Result %d", i+1)
		}
		fmt.Fprintf(&b, "\n%d. **%s**", i+1, title)
		if desc, ok := row["description"].(string); ok && desc != "" {
			fmt.Fprintf(&b, "\n   %s", truncate(desc, 100))
		}
	}
	return rendered{
		summary: fmt.Sprintf("Found %d matches", len(r.rows)),
		content: b.String(),
	}
}

// titleOf picks a display title: title or name, then the first short
// string cell.
func titleOf(r result, row map[string]any) string {
	for _, k := range []string{"title", "name"} {
		if s, ok := row[k].(string); ok && s != "" {
			return s
		}
	}
	for _, c := range r.cols {
		if s, ok := row[c].(string); ok && s != "" && len(s) <= 100 {
			return s
		}
	}
	return ""
}

func renderGeneric(r result) rendered {
	shown := min(len(r.rows), 5)
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results for your query about: **%s**\n", len(r.rows), r.question)
	for i, row := range r.rows[:shown] {
		fmt.Fprintf(&b, "\n**Result %d:**", i+1)
		for _, c := range r.cols {
			v := row[c]
			if v == nil {
				continue
			}
			s := display(v)
			if strings.TrimSpace(s) == "" {
				continue
			}
			fmt.Fprintf(&b, "\n  - **%s**: %s", titleKey(c), truncate(s, 100))
		}
		b.WriteString("\n")
	}
	if len(r.rows) > shown {
		fmt.Fprintf(&b, "\n*(%d additional results available)*", len(r.rows)-shown)
	}
	return rendered{
		summary: fmt.Sprintf("Query returned %d results", len(r.rows)),
		content: strings.TrimRight(b.String(), "\n"),
	}
}

// titleKey turns snake_case into Title Case.
func titleKey(k string) string {
	words := strings.Fields(strings.ReplaceAll(k, "_", " "))
	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}

// display renders a cell for prose.
func display(v any) string {
	switch t := v.(type) {
	case nil:
		return notSpecified
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return formatNumber(t)
	case float32:
		return formatNumber(float64(t))
	case time.Time:
		if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(v)
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toFloat reads a numeric cell. Numeric strings count.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// leadingNumber reads the integer that starts s, as in "3. Misinformation".
func leadingNumber(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}
