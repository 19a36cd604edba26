package schema

import (
	"regexp"
	"strings"
)

var exactIdentityNames = map[string]bool{
	"id":          true,
	"rid":         true,
	"_id":         true,
	"uuid":        true,
	"pk":          true,
	"primary_key": true,
}

// idShape matches PREFIX-digits, pure digits, or hex-like identifiers.
var idShape = regexp.MustCompile(`(?i)^([A-Z]{2,}-\d+|\d+|[a-f0-9-]{8,})$`)

// indexTerms are name fragments of columns that queries commonly filter on.
var indexTerms = []string{
	"domain", "category", "type", "status", "date", "year",
	"name", "title", "entity", "intent", "created", "updated",
}

// identityShapeSample is the number of leading values checked against idShape.
const identityShapeSample = 10

// IsIdentityCandidate reports whether a column may serve as the table identity.
//
// A column qualifies when every value is non-empty and unique, and either:
//   - its name is one of id, rid, _id, uuid, pk, primary_key; or
//   - its name carries an "id" token and at least 3 of the leading values all
//     look like identifiers (PREFIX-digits, digits, or hex-like).
func IsIdentityCandidate(name string, values []any) bool {
	if len(values) == 0 || !allUniqueNonEmpty(values) {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	if exactIdentityNames[lower] {
		return true
	}
	if !nameHasIDToken(lower) {
		return false
	}

	n := len(values)
	if n > identityShapeSample {
		n = identityShapeSample
	}
	if n < 3 {
		return false
	}
	for _, v := range values[:n] {
		if !idShape.MatchString(strings.TrimSpace(stringValue(v))) {
			return false
		}
	}
	return true
}

// nameHasIDToken reports whether "id" ends the name, starts it as "rid", or
// starts one of its tokens (id, identifier, idx_code). "id" inside a word,
// as in width or hidden, does not count.
func nameHasIDToken(lower string) bool {
	if strings.HasSuffix(lower, "id") || strings.HasPrefix(lower, "rid") {
		return true
	}
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if strings.HasPrefix(tok, "id") {
			return true
		}
	}
	return false
}

func allUniqueNonEmpty(values []any) bool {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if isBlank(v) {
			return false
		}
		k := strings.TrimSpace(stringValue(v))
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
	}
	return true
}

// ShouldIndex reports whether a column merits a secondary index. Large
// free-text columns never do.
func ShouldIndex(c ColumnDefinition) bool {
	if c.Identity || c.Type == TypeLongText {
		return false
	}
	lower := strings.ToLower(c.Name)
	if strings.HasSuffix(lower, "_id") || strings.HasSuffix(lower, "_key") {
		return true
	}
	for _, term := range indexTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
