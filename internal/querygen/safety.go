package querygen

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	dangerousCommandRE = regexp.MustCompile(`\b(drop|delete|truncate|alter|create|insert|update|grant|revoke)\b\s+(table|database|index|view)\b`)
	leadingWriteRE     = regexp.MustCompile(`^\s*(insert|update|delete)\b`)
)

// writeKeywords may not appear as bare words anywhere in an accepted
// statement. Words inside string literals, quoted identifiers and comments
// are not bare.
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true, "CREATE": true,
	"ALTER": true, "TRUNCATE": true, "GRANT": true, "REVOKE": true, "MERGE": true,
	"ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true, "REINDEX": true,
	"EXEC": true, "EXECUTE": true, "CALL": true, "COPY": true, "INTO": true,
	"UPSERT": true,
}

// CheckReadOnly accepts sql only when both the statement classifier and the
// keyword rule agree it is a single read-only query.
func CheckReadOnly(sql string) error {
	if err := classify(sql); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeSQL, err)
	}
	lower := strings.ToLower(sql)
	if m := dangerousCommandRE.FindString(lower); m != "" {
		return fmt.Errorf("%w: contains %q", ErrUnsafeSQL, m)
	}
	if leadingWriteRE.MatchString(lower) {
		return fmt.Errorf("%w: starts with a write statement", ErrUnsafeSQL)
	}
	return nil
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// classify tokenizes sql and checks that it is one SELECT or WITH statement
// with no bare write keyword.
func classify(sql string) error {
	toks, err := tokenize(sql)
	if err != nil {
		return err
	}

	// trailing semicolons are fine; anything after one is a second statement
	for len(toks) > 0 && toks[len(toks)-1].kind == tokPunct && toks[len(toks)-1].text == ";" {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 {
		return fmt.Errorf("empty statement")
	}

	first := -1
	for i, t := range toks {
		if t.kind == tokPunct && t.text == ";" {
			return fmt.Errorf("multiple statements")
		}
		if first < 0 && t.kind == tokWord {
			first = i
		}
		if first < 0 && !(t.kind == tokPunct && t.text == "(") {
			return fmt.Errorf("statement does not start with a keyword")
		}
	}
	if first < 0 {
		return fmt.Errorf("no statement keyword")
	}
	switch kw := strings.ToUpper(toks[first].text); kw {
	case "SELECT", "WITH":
	default:
		return fmt.Errorf("%s statements are not allowed", kw)
	}

	for i, t := range toks {
		if t.kind != tokWord {
			continue
		}
		kw := strings.ToUpper(t.text)
		if writeKeywords[kw] {
			return fmt.Errorf("keyword %s is not allowed", kw)
		}
		// REPLACE is a string function but also a write statement
		if kw == "REPLACE" && !(i+1 < len(toks) && toks[i+1].text == "(") {
			return fmt.Errorf("keyword REPLACE is not allowed")
		}
	}
	return nil
}

func tokenize(sql string) ([]token, error) {
	var out []token
	rs := []rune(sql)
	n := len(rs)
	for i := 0; i < n; {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '-' && i+1 < n && rs[i+1] == '-':
			for i < n && rs[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < n && rs[i+1] == '*':
			j := i + 2
			for j+1 < n && !(rs[j] == '*' && rs[j+1] == '/') {
				j++
			}
			if j+1 >= n {
				return nil, fmt.Errorf("unterminated comment")
			}
			i = j + 2
		case r == '\'' || r == '"' || r == '`' || r == '[':
			closer := r
			if r == '[' {
				closer = ']'
			}
			j := i + 1
			for {
				if j >= n {
					return nil, fmt.Errorf("unterminated quote")
				}
				if rs[j] == closer {
					// doubled closer escapes itself
					if j+1 < n && rs[j+1] == closer && closer != ']' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			kind := tokQuoted
			if r == '\'' {
				kind = tokString
			}
			out = append(out, token{kind: kind, text: string(rs[i : j+1])})
			i = j + 1
		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < n && (rs[j] == '_' || rs[j] == '$' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			out = append(out, token{kind: tokWord, text: string(rs[i:j])})
			i = j
		case unicode.IsDigit(r):
			j := i
			for j < n && (unicode.IsDigit(rs[j]) || rs[j] == '.' || rs[j] == 'e' || rs[j] == 'E') {
				j++
			}
			out = append(out, token{kind: tokNumber, text: string(rs[i:j])})
			i = j
		default:
			out = append(out, token{kind: tokPunct, text: string(r)})
			i++
		}
	}
	return out, nil
}
