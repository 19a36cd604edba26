package formatter

import (
	"fmt"
	"sort"
	"strings"

	"askdata/internal/datacontext"
)

const (
	patternMinRows  = 10
	patternShare    = 0.3
	barWidth        = 20
	barMaxGroups    = 5
	barMaxDistinct  = 10
	barLabelColumns = 30
)

// patternColumns are checked for a dominant value in larger results.
var patternColumns = map[string]bool{"domain": true, "category": true, "type": true, "entity": true}

// insights derives findings from the rows: a proportion for counts, the top
// groups for aggregates, and a dominant categorical value for any result
// with more than ten rows.
func insights(r result, intent Intent) []Insight {
	var out []Insight
	switch intent {
	case Count:
		if in, ok := proportionInsight(r); ok {
			out = append(out, in)
		}
	case Aggregate:
		if in, ok := rankingInsight(r); ok {
			out = append(out, in)
		}
	}
	if len(r.rows) > patternMinRows {
		out = append(out, patternInsights(r)...)
	}
	return out
}

// sourceTotal is the row count of the first queried table the data context
// knows about.
func sourceTotal(tables []string, ctx *datacontext.Context) (string, int64) {
	for _, name := range tables {
		if t, ok := ctx.Table(name); ok && t.RowCount > 0 {
			return t.Name, t.RowCount
		}
	}
	return "", 0
}

func proportionInsight(r result) (Insight, bool) {
	v, ok := countValue(r)
	if !ok {
		return Insight{}, false
	}
	n, ok := toFloat(v)
	if !ok {
		return Insight{}, false
	}
	table, total := sourceTotal(r.tables, r.ctx)
	if total == 0 {
		return Insight{}, false
	}
	pct := n / float64(total) * 100
	if pct >= 100 {
		return Insight{}, false
	}
	return Insight{
		Finding:      fmt.Sprintf("This represents %.1f%% of all records in %s", pct, table),
		Data:         map[string]any{"count": n, "total": total},
		Significance: 0.7,
		Category:     "proportion",
	}, true
}

func rankingInsight(r result) (Insight, bool) {
	if len(r.rows) <= 3 || len(r.cols) < 2 {
		return Insight{}, false
	}
	countCol := countColumn(r)
	if countCol == "" {
		return Insight{}, false
	}
	key := groupKey(r, countCol)
	rows := sortedGroups(r, countCol, key)
	var names []string
	var counts []any
	for _, row := range rows[:3] {
		names = append(names, display(row[key]))
		counts = append(counts, row[countCol])
	}
	return Insight{
		Finding:      fmt.Sprintf("Top 3 by %s: %s", key, strings.Join(names, ", ")),
		Data:         map[string]any{"groups": names, "counts": counts},
		Significance: 0.8,
		Category:     "ranking",
	}, true
}

type valueCount struct {
	value string
	n     int
}

// tally counts the non-empty values of col, most frequent first, ties by
// value.
func tally(rows []map[string]any, col string) []valueCount {
	counts := map[string]int{}
	for _, row := range rows {
		v := row[col]
		if v == nil {
			continue
		}
		s := display(v)
		if s == "" {
			continue
		}
		counts[s]++
	}
	out := make([]valueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, valueCount{v, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].value < out[j].value
	})
	return out
}

func patternInsights(r result) []Insight {
	var out []Insight
	for _, c := range r.cols {
		if !patternColumns[strings.ToLower(c)] {
			continue
		}
		t := tally(r.rows, c)
		if len(t) == 0 || float64(t[0].n) <= float64(len(r.rows))*patternShare {
			continue
		}
		out = append(out, Insight{
			Finding:      fmt.Sprintf("Most common %s: %s (%d occurrences)", c, t[0].value, t[0].n),
			Data:         map[string]any{"column": c, "value": t[0].value, "count": t[0].n},
			Significance: 0.6,
			Category:     "pattern",
		})
	}
	return out
}

// MetadataShaped reports whether columns look like a taxonomy or
// classification listing, where proportion bars carry no meaning.
func MetadataShaped(cols []string) bool {
	for _, c := range cols {
		l := strings.ToLower(c)
		switch {
		case l == "domain", l == "subdomain", l == "category", l == "category_level",
			strings.HasSuffix(l, "_category"), strings.HasSuffix(l, "_domain"),
			strings.Contains(l, "taxonom"):
			return true
		}
	}
	return false
}

// visualizations draws ASCII proportion bars for count and search results
// with more than ten rows, over the first low-cardinality text column.
func visualizations(r result, intent Intent) []string {
	if intent != Count && intent != Search {
		return nil
	}
	if len(r.rows) <= patternMinRows || MetadataShaped(r.cols) {
		return nil
	}
	for _, c := range r.cols {
		if _, numeric := toFloat(r.rows[0][c]); numeric {
			continue
		}
		t := tally(r.rows, c)
		if len(t) < 2 || len(t) > barMaxDistinct {
			continue
		}
		return []string{bars(c, t, len(r.rows))}
	}
	return nil
}

func bars(col string, t []valueCount, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s distribution:", titleKey(col))
	for _, vc := range t[:min(len(t), barMaxGroups)] {
		filled := vc.n * barWidth / total
		label := truncate(vc.value, barLabelColumns)
		fmt.Fprintf(&b, "\n%-*s [%s%s] %d", barLabelColumns+3, label,
			strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled), vc.n)
	}
	return b.String()
}
