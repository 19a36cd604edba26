package querygen

import (
	"fmt"
	"regexp"
	"strings"

	"askdata/internal/storage"
)

const fallbackRowCap = 10

var (
	countRE   = regexp.MustCompile(`(?i)\b(count|how many|number of|total)\b`)
	groupByRE = regexp.MustCompile(`(?i)\b(?:by|per|each|for each)\s+([a-z_][a-z0-9_ ]*)`)
	listRE    = regexp.MustCompile(`(?i)\b(list|show|what are|which|distinct|unique|all)\b`)
	wordRE    = regexp.MustCompile(`[a-z0-9_]+`)
)

var fallbackStopwords = map[string]bool{
	"the": true, "all": true, "are": true, "how": true, "many": true, "what": true,
	"which": true, "show": true, "list": true, "rows": true, "row": true, "records": true,
	"there": true, "database": true, "table": true, "tables": true, "data": true,
	"count": true, "number": true, "total": true, "each": true, "per": true, "with": true,
	"from": true, "and": true, "for": true, "distinct": true, "unique": true,
}

// categoryTerms mark columns that hold labels worth listing.
var categoryTerms = []string{"categor", "domain", "type", "class", "taxonom"}

// Fallback builds a deterministic template query for question against the
// best-matching table. schemas must not be empty.
func Fallback(question string, schemas []TableSchema, d storage.Dialect) SQLQuery {
	lower := strings.ToLower(question)
	words := questionWords(lower)
	t := pickTable(lower, words, schemas)
	table := quote(d, t.Name)

	q := SQLQuery{
		Confidence:   FallbackConfidence,
		TargetTables: []string{t.Name},
		Fallback:     true,
	}

	switch {
	case countRE.MatchString(lower) && groupColumn(lower, t) != "":
		col := groupColumn(lower, t)
		c := quote(d, col)
		q.SQL = fmt.Sprintf("SELECT %s, COUNT(*) AS count FROM %s GROUP BY %s ORDER BY count DESC", c, table, c)
		q.Explanation = fmt.Sprintf("Count %s rows grouped by %s", t.Name, col)
		q.IsAggregation = true
	case countRE.MatchString(lower):
		q.SQL = fmt.Sprintf("SELECT COUNT(*) AS total FROM %s", table)
		q.Explanation = fmt.Sprintf("Count all records in %s", t.Name)
		q.IsAggregation = true
	case distinctColumn(lower, words, t) != "":
		col := distinctColumn(lower, words, t)
		c := quote(d, col)
		q.SQL = fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s", c, table, c, c)
		q.Explanation = fmt.Sprintf("List distinct %s values from %s", col, t.Name)
	default:
		q.SQL = limit(d, "SELECT * FROM "+table, fallbackRowCap)
		q.Explanation = fmt.Sprintf("List first %d records from %s", fallbackRowCap, t.Name)
	}
	q.Explanation += " (fallback query)"
	return q
}

func questionWords(lower string) []string {
	var out []string
	for _, w := range wordRE.FindAllString(lower, -1) {
		if len(w) > 2 && !fallbackStopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

// singular strips simple English plural endings.
func singular(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		return w[:len(w)-1]
	}
	return w
}

// pickTable scores tables by question words found in their names, then by
// matching column names. Ties keep the incoming (ranked) order.
func pickTable(lower string, words []string, schemas []TableSchema) TableSchema {
	best, bestScore := schemas[0], 0
	for _, s := range schemas {
		name := strings.ToLower(s.Name)
		score := 0
		if strings.Contains(lower, name) {
			score += 10
		}
		for _, w := range words {
			stem := singular(w)
			if strings.Contains(name, stem) {
				score += 3
			}
			if strings.HasPrefix(stem, "categor") && strings.Contains(name, "taxonom") {
				score += 2
			}
			if columnFor(stem, s) != "" {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	return best
}

// columnFor finds the column named by a question word: an exact or singular
// match first, then a column with the word as one of its underscore parts.
func columnFor(word string, t TableSchema) string {
	stem := singular(word)
	for _, c := range t.Columns {
		n := strings.ToLower(c.Name)
		if n == word || n == stem {
			return c.Name
		}
	}
	for _, c := range t.Columns {
		for _, part := range strings.Split(strings.ToLower(c.Name), "_") {
			if part == stem {
				return c.Name
			}
		}
	}
	return ""
}

func groupColumn(lower string, t TableSchema) string {
	for _, m := range groupByRE.FindAllStringSubmatch(lower, -1) {
		for _, w := range strings.Fields(m[1]) {
			if col := columnFor(w, t); col != "" {
				return col
			}
		}
	}
	return ""
}

func distinctColumn(lower string, words []string, t TableSchema) string {
	if !listRE.MatchString(lower) && !strings.Contains(lower, "categor") {
		return ""
	}
	for _, w := range words {
		if col := columnFor(w, t); col != "" {
			return col
		}
	}
	if strings.Contains(lower, "categor") || strings.Contains(lower, "type") {
		for _, term := range categoryTerms {
			for _, c := range t.Columns {
				if strings.Contains(strings.ToLower(c.Name), term) {
					return c.Name
				}
			}
		}
	}
	return ""
}

func quote(d storage.Dialect, name string) string {
	if d == nil {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return d.QuoteIdent(name)
}

func limit(d storage.Dialect, q string, n int) string {
	if d == nil {
		return fmt.Sprintf("%s LIMIT %d", q, n)
	}
	return d.Limit(q, n)
}
