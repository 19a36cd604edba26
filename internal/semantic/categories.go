// Package semantic classifies loaded tables by subject matter and ranks them
// against free-text questions.
package semantic

import "regexp"

// Semantic types. General is assigned when no category pattern matches.
const (
	PrimaryRecords = "primary_records"
	Taxonomy       = "taxonomy"
	Statistics     = "statistics"
	Resources      = "resources"
	Changelog      = "changelog"
	Content        = "content"
	Metadata       = "metadata"
	General        = "general"
)

// Category is one entry of the fixed classification catalog.
type Category struct {
	Type     string
	Patterns []*regexp.Regexp
	Keywords []string
	Entity   string
	Priority float64
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// Categories is ordered; on equal match scores the earlier category wins.
var Categories = []Category{
	{
		Type:     PrimaryRecords,
		Patterns: patterns(`risk`, `hazard`, `threat`, `danger`, `vulnerabilit`, `incident`, `register`, `rid[-_]?\d+`, `causal.*taxonom`),
		Keywords: []string{"risk", "hazard", "threat", "safety", "danger", "vulnerability", "harm", "entity", "intent", "timing", "causal", "incident"},
		Entity:   "record",
		Priority: 10,
	},
	{
		Type:     Taxonomy,
		Patterns: patterns(`taxonom`, `classification`, `categori`, `hierarch`, `domain.*taxonom`),
		Keywords: []string{"taxonomy", "category", "classification", "domain", "type", "subdomain"},
		Entity:   "category",
		Priority: 8,
	},
	{
		Type:     Statistics,
		Patterns: patterns(`statistic`, `stats`, `count`, `summary`, `metric`),
		Keywords: []string{"statistics", "count", "total", "summary", "metrics", "analysis"},
		Entity:   "metric",
		Priority: 5,
	},
	{
		Type:     Resources,
		Patterns: patterns(`resource`, `source`, `reference`, `paper`, `document`),
		Keywords: []string{"resource", "source", "paper", "document", "reference", "publication"},
		Entity:   "resource",
		Priority: 6,
	},
	{
		Type:     Changelog,
		Patterns: patterns(`change`, `log`, `history`, `update`, `revision`),
		Keywords: []string{"change", "update", "history", "version", "revision", "log"},
		Entity:   "change_entry",
		Priority: 3,
	},
	{
		Type:     Content,
		Patterns: patterns(`content`, `text`, `description`, `snippet`, `^contents$`),
		Keywords: []string{"content", "text", "description", "snippet", "excerpt"},
		Entity:   "content",
		Priority: 7,
	},
	{
		Type:     Metadata,
		Patterns: patterns(`explainer`, `what_we`, `metadata`, `about`),
		Keywords: []string{"explainer", "metadata", "coded", "extracted", "about"},
		Entity:   "metadata",
		Priority: 2,
	},
}

// category returns the catalog entry for a semantic type.
func category(typ string) (Category, bool) {
	for _, c := range Categories {
		if c.Type == typ {
			return c, true
		}
	}
	return Category{}, false
}

// DefaultVocabulary restricts which words observed in categorical cell values
// become table keywords.
var DefaultVocabulary = []string{
	"human", "ai", "discrimination", "privacy", "security",
	"misinformation", "malicious", "socioeconomic", "safety",
}
