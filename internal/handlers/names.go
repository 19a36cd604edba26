package handlers

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxIdentLen is the shortest identifier limit among the supported engines
// (PostgreSQL truncates at 63 bytes).
const maxIdentLen = 63

// SanitizeTableName converts any string into a lowercase, underscore-delimited
// identifier that starts with a letter. Accents are folded ("Réseau" ->
// "reseau"); an empty result becomes "unnamed_table".
func SanitizeTableName(name string) string {
	s := normalizeIdent(name)
	if s == "" {
		return "unnamed_table"
	}
	if !isASCIILetter(s[0]) {
		s = "table_" + s
	}
	return truncateIdent(s)
}

// CleanColumnName converts a header cell into a column identifier. It returns
// "" for blank headers and spreadsheet "Unnamed: n" artifacts so callers can
// substitute a positional name.
func CleanColumnName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "Unnamed:") {
		return ""
	}
	s := normalizeIdent(name)
	if s == "" {
		return ""
	}
	if !isASCIILetter(s[0]) {
		s = "col_" + s
	}
	return truncateIdent(s)
}

// ColumnNames cleans headers, names blank ones column_<n> (1-based), and
// suffixes duplicates with _1, _2, ...
func ColumnNames(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		c := CleanColumnName(h)
		if c == "" {
			c = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = c
	}
	return UniqueNames(out)
}

// UniqueNames suffixes repeated names deterministically: the first occurrence
// keeps its name, later ones get _1, _2, ... skipping names already taken.
func UniqueNames(names []string) []string {
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = true
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, n := range names {
		if !seen[n] {
			seen[n] = true
			out[i] = n
			continue
		}
		for k := 1; ; k++ {
			cand := fmt.Sprintf("%s_%d", n, k)
			if !taken[cand] {
				taken[cand] = true
				seen[cand] = true
				out[i] = cand
				break
			}
		}
	}
	return out
}

// foldAccents returns a fresh transformer; chained transformers keep state
// and must not be shared between goroutines.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// normalizeIdent lowercases, folds accents, maps every run of characters
// outside [a-z0-9] to one underscore and trims underscores at both ends.
func normalizeIdent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if folded, _, err := transform.String(foldAccents(), s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

func truncateIdent(s string) string {
	if len(s) <= maxIdentLen {
		return s
	}
	cut := maxIdentLen
	for cut > 0 && !utf8.ValidString(s[:cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], "_")
}

func isASCIILetter(c byte) bool {
	return c >= 'a' && c <= 'z'
}
