package formatter

import "regexp"

// Intent is the kind of question being answered.
type Intent string

const (
	Aggregate Intent = "aggregate"
	Count     Intent = "count"
	Detail    Intent = "detail"
	Search    Intent = "search"
	List      Intent = "list"
	Unknown   Intent = "unknown"
)

type intentPatterns struct {
	intent   Intent
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// intentOrder is matched top to bottom; the first hit wins. Grouping
// phrases come before counts so "count X by Y" is an aggregate, and detail
// phrases come before list phrases so "show me details" is a detail.
var intentOrder = []intentPatterns{
	{Aggregate, compile(
		`group by`,
		`\bby (?:category|domain|type|entity)`,
		`breakdown`,
		`distribution`,
		`count.*?\bby\s+\w+`,
		`(?:how many|number of).*?\b(?:per|by|for each)\s+\w+`,
	)},
	{Count, compile(
		`how many`,
		`count.*?(?:of|the|all|rows|records)`,
		`total number`,
		`number of`,
	)},
	{Detail, compile(
		`show (?:me )?(?:the )?(?:details|info|information)`,
		`tell me about`,
		`describe`,
		`explain`,
	)},
	{Search, compile(
		`find.*?(?:with|where|that)`,
		`search for`,
		`filter.*?by`,
		`\b(?:risks?|items?|records?|entries|rows?) (?:in|from|about)\b`,
		`\b(?:containing|mentioning|matching)\b`,
	)},
	{List, compile(
		`list (?:all |the )?`,
		`show (?:all |me |the )?`,
		`what are (?:all |the )?`,
		`give me (?:all |the )?`,
	)},
}

// Classify returns the intent of question.
func Classify(question string) Intent {
	for _, ip := range intentOrder {
		for _, p := range ip.patterns {
			if p.MatchString(question) {
				return ip.intent
			}
		}
	}
	return Unknown
}
