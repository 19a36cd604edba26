package querygen

import (
	"regexp"
	"strings"
)

// rewrite is one phrasing substitution applied before prompting.
type rewrite struct {
	re   *regexp.Regexp
	with string
}

// rewrites run in order over the lowercased question.
var rewrites = []rewrite{
	{regexp.MustCompile(`\bentity types?\b`), "entity values"},
	{regexp.MustCompile(`\bby entity\b`), "grouped by entity"},
	{regexp.MustCompile(`\bmain categories\b`), "distinct category values"},
	{regexp.MustCompile(`\btypes of (\w+)`), "distinct $1 categories"},
	{regexp.MustCompile(`\bpublication year\b`), "year or date field"},
	{regexp.MustCompile(`\bearliest year\b`), "minimum year or earliest date"},
	{regexp.MustCompile(`\bfrom (\d{4})\b`), `where year = $1 or date contains "$1"`},
	{regexp.MustCompile(`\bhow many (rows|records|entries|\w+s)\b`), "count all rows in $1-related tables"},
	{regexp.MustCompile(`\bnumber of\b`), "count of"},
	{regexp.MustCompile(`\blist all\b`), "select distinct"},
	{regexp.MustCompile(`\bshow me the\b`), "select the"},
	{regexp.MustCompile(`\bwhat are the\b`), "list distinct"},
	{regexp.MustCompile(`\b(?:show )?top (\d+)\b`), "limit $1"},
	{regexp.MustCompile(`\bin domain\b`), "where domain contains"},
}

// Preprocess rewrites common phrasings into SQL-leaning terms. The original
// question is kept and the rewrite appended as a hint, so the model still sees
// the user's exact words.
func Preprocess(question string) string {
	q := strings.TrimSpace(question)
	lower := strings.ToLower(q)
	processed := lower
	for _, r := range rewrites {
		processed = r.re.ReplaceAllString(processed, r.with)
	}
	if processed == lower {
		return q
	}
	return q + " (interpreted as: " + processed + ")"
}
