package formatter

import (
	"fmt"
	"sort"
	"strings"

	"askdata/internal/datacontext"
)

const maxSuggestions = 3

func emptyText(question string, ctx *datacontext.Context) string {
	var b strings.Builder
	b.WriteString("No results found for your query.\n")
	if s := Suggestions(question, ctx); len(s) > 0 {
		b.WriteString("\nTry these alternative queries:\n")
		for i, q := range s {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
	}
	return b.String()
}

// Suggestions proposes up to three alternative questions for a query that
// returned nothing. Keyword matches come first, then questions about tables
// named in the question, then the largest table. With no data context at
// least "List all tables" is offered.
func Suggestions(question string, ctx *datacontext.Context) []string {
	lower := strings.ToLower(question)
	var out []string
	add := func(s string) {
		for _, have := range out {
			if have == s {
				return
			}
		}
		out = append(out, s)
	}

	switch {
	case strings.Contains(lower, "domain"):
		add("List all domains")
		add("Count rows by domain")
	case strings.Contains(lower, "categor"):
		add("List all categories")
		add("Count rows by category")
	}

	var tables []datacontext.Table
	if ctx != nil {
		tables = append(tables, ctx.Tables...)
		sort.SliceStable(tables, func(i, j int) bool { return tables[i].RowCount > tables[j].RowCount })
	}
	for _, t := range tables {
		if mentions(lower, t.Name) {
			add(fmt.Sprintf("How many rows are in %s?", t.Name))
			if col := groupingColumn(t); col != "" {
				add(fmt.Sprintf("Count %s by %s", t.Name, col))
			}
		}
	}
	if strings.Contains(lower, "count") || strings.Contains(lower, "how many") {
		add("Show database statistics")
	}
	if len(tables) > 0 {
		add(fmt.Sprintf("Show the first rows of %s", tables[0].Name))
	}
	add("List all tables")

	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// mentions reports whether any part of a table name longer than three
// letters appears in the question, singular or plural.
func mentions(lower, table string) bool {
	for _, part := range strings.Split(strings.ToLower(table), "_") {
		if len(part) <= 3 {
			continue
		}
		if strings.Contains(lower, strings.TrimSuffix(part, "s")) {
			return true
		}
	}
	return false
}

// groupingColumn is the first non-key column with a small complete value
// list.
func groupingColumn(t datacontext.Table) string {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, "id") {
			continue
		}
		if n := len(c.DistinctValues); n >= 2 && n <= 20 {
			return c.Name
		}
	}
	return ""
}
