package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Status tags the outcome of parsing model output.
type Status int

const (
	Malformed Status = iota
	Parsed
)

func (s Status) String() string {
	if s == Parsed {
		return "parsed"
	}
	return "malformed"
}

// Extraction is the tagged result of best-effort parsing. Value is only
// meaningful when Status is Parsed; Err explains a Malformed result.
type Extraction[T any] struct {
	Status Status
	Value  T
	Raw    string
	Err    error
}

// OK reports whether the extraction parsed.
func (e Extraction[T]) OK() bool { return e.Status == Parsed }

func malformed[T any](raw string, err error) Extraction[T] {
	return Extraction[T]{Status: Malformed, Raw: raw, Err: err}
}

var fenceRE = regexp.MustCompile("(?s)```(?:[a-zA-Z]*[ \\t]*\\n)?(.*?)```")

// StripFences returns the body of the first fenced code block in s, or s
// itself when there is none.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSON decodes a JSON object from model output. It accepts bare JSON,
// JSON inside a fenced code block, and JSON surrounded by prose.
func ExtractJSON[T any](raw string) Extraction[T] {
	body := StripFences(raw)
	if body == "" {
		return malformed[T](raw, errors.New("llm: empty response"))
	}

	var v T
	err := json.Unmarshal([]byte(body), &v)
	if err == nil {
		return Extraction[T]{Status: Parsed, Value: v, Raw: raw}
	}
	start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
	if start >= 0 && end > start {
		var inner T
		if err2 := json.Unmarshal([]byte(body[start:end+1]), &inner); err2 == nil {
			return Extraction[T]{Status: Parsed, Value: inner, Raw: raw}
		}
	}
	return malformed[T](raw, fmt.Errorf("llm: decode json: %w", err))
}

// ExtractFields reads "LABEL: value" sections from model output. A value runs
// until the next known label, so it may span several lines. Labels match
// case-insensitively and the result is keyed by the label as given. The
// extraction is Malformed when any required label is absent or empty.
func ExtractFields(raw string, labels []string, required ...string) Extraction[map[string]string] {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = regexp.QuoteMeta(l)
	}
	labelRE := regexp.MustCompile(`(?im)(?:^|\s|\*\*)(` + strings.Join(quoted, "|") + `)\s*(?:\*\*)?\s*:`)

	locs := labelRE.FindAllStringSubmatchIndex(raw, -1)
	out := map[string]string{}
	for i, loc := range locs {
		name := raw[loc[2]:loc[3]]
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		val := strings.TrimSpace(raw[loc[1]:end])
		val = strings.TrimSpace(strings.Trim(val, "*"))
		for _, l := range labels {
			if strings.EqualFold(l, name) {
				name = l
				break
			}
		}
		if _, seen := out[name]; !seen {
			out[name] = val
		}
	}

	for _, r := range required {
		if out[r] == "" {
			return malformed[map[string]string](raw, fmt.Errorf("llm: missing %s field", r))
		}
	}
	return Extraction[map[string]string]{Status: Parsed, Value: out, Raw: raw}
}
