// Package columnmap resolves question terms to the table columns that are
// likely to hold them, using column names and observed categorical values.
package columnmap

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Ref names one column of one table.
type Ref struct {
	Table  string
	Column string
}

func (r Ref) String() string {
	if r.Table == "" {
		return r.Column
	}
	return r.Table + "." + r.Column
}

// Wildcard is returned for terms such as "count" that apply to whole rows.
var Wildcard = Ref{Column: "*"}

// Kind is the coarse value shape of a column.
type Kind string

const (
	KindUnknown     Kind = "unknown"
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
	KindMixed       Kind = "mixed"
)

// Analysis limits.
const (
	AnalyzeRows    = 100
	IndexedValues  = 50
	maxCategorical = 50
)

// synonyms expand a question term into column-name terms.
var synonyms = map[string][]string{
	"entity type": {"entity"},
	"risk type":   {"risk_category", "category"},
	"categories":  {"category", "risk_category", "domain"},
	"category":    {"category", "domain"},
	"domains":     {"domain", "subdomain"},
	"types":       {"type", "category"},
	"year":        {"year", "date", "publication_year"},
	"when":        {"date", "year", "created"},
}

// Mapper holds the inverted indices. It is safe for concurrent use.
type Mapper struct {
	mu      sync.RWMutex
	columns map[string]map[Ref]struct{}
	values  map[string]map[Ref]struct{}
	kinds   map[Ref]Kind
	log     *zap.Logger
}

func New(log *zap.Logger) *Mapper {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Mapper{log: log}
	m.Reset()
	return m
}

// Reset drops every index entry.
func (m *Mapper) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns = map[string]map[Ref]struct{}{}
	m.values = map[string]map[Ref]struct{}{}
	m.kinds = map[Ref]Kind{}
}

// RemoveTable drops every entry that points at table.
func (m *Mapper) RemoveTable(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range []map[string]map[Ref]struct{}{m.columns, m.values} {
		for term, refs := range idx {
			for r := range refs {
				if r.Table == table {
					delete(refs, r)
				}
			}
			if len(refs) == 0 {
				delete(idx, term)
			}
		}
	}
	for r := range m.kinds {
		if r.Table == table {
			delete(m.kinds, r)
		}
	}
}

// AnalyzeTable indexes the column names of a table and, for categorical
// columns, the values seen in the first AnalyzeRows rows.
func (m *Mapper) AnalyzeTable(table string, columns []string, rows []map[string]any) {
	if len(rows) > AnalyzeRows {
		rows = rows[:AnalyzeRows]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	indexed := 0
	for _, col := range columns {
		ref := Ref{Table: table, Column: col}
		m.indexName(ref)

		var vals []any
		for _, r := range rows {
			if v := r[col]; v != nil {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		kind := detectKind(vals)
		m.kinds[ref] = kind
		if kind != KindCategorical {
			continue
		}
		if len(vals) > IndexedValues {
			vals = vals[:IndexedValues]
		}
		for _, v := range vals {
			s := strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
			if s == "" {
				continue
			}
			add(m.values, s, ref)
			for _, w := range letterWordRE.FindAllString(s, -1) {
				if len(w) > 2 {
					add(m.columns, w, ref)
				}
			}
		}
		indexed++
	}
	m.log.Debug("columns indexed",
		zap.String("table", table),
		zap.Int("columns", len(columns)),
		zap.Int("categorical", indexed),
	)
}

var (
	letterWordRE = regexp.MustCompile(`\b[a-zA-Z]+\b`)
	nameSplitRE  = regexp.MustCompile(`[^A-Za-z0-9]+|([a-z0-9])([A-Z])`)
)

func (m *Mapper) indexName(ref Ref) {
	add(m.columns, strings.ToLower(ref.Column), ref)
	// riskCategory and risk_category both yield "risk" and "category"
	split := nameSplitRE.ReplaceAllString(ref.Column, "$1 $2")
	for _, part := range strings.Fields(split) {
		if len(part) > 2 {
			add(m.columns, strings.ToLower(part), ref)
		}
	}
}

func add(idx map[string]map[Ref]struct{}, term string, ref Ref) {
	refs, ok := idx[term]
	if !ok {
		refs = map[Ref]struct{}{}
		idx[term] = refs
	}
	refs[ref] = struct{}{}
}

func detectKind(vals []any) Kind {
	if len(vals) == 0 {
		return KindUnknown
	}
	numeric := 0
	unique := map[string]struct{}{}
	totalLen, nonEmpty := 0, 0
	for _, v := range vals {
		if isNumeric(v) {
			numeric++
		}
		s := fmt.Sprint(v)
		if s == "" {
			continue
		}
		unique[s] = struct{}{}
		totalLen += len(s)
		nonEmpty++
	}
	n := float64(len(vals))
	if float64(numeric) > n*0.8 {
		return KindNumeric
	}
	if float64(len(unique)) < n*0.3 && len(unique) < maxCategorical {
		return KindCategorical
	}
	if nonEmpty > 0 && totalLen/nonEmpty > 50 {
		return KindText
	}
	return KindMixed
}

func isNumeric(v any) bool {
	switch t := v.(type) {
	case int, int32, int64, float32, float64:
		return true
	case string:
		s := strings.NewReplacer(".", "", "-", "").Replace(strings.TrimSpace(t))
		if s == "" {
			return false
		}
		_, err := strconv.ParseUint(s, 10, 64)
		return err == nil
	default:
		return false
	}
}

// FindColumnsForTerm returns the columns related to term, ordered by table
// then column. The union covers exact column-name terms, exact categorical
// values, substring matches against indexed terms, and synonym expansion.
func (m *Mapper) FindColumnsForTerm(term string) []Ref {
	t := strings.ToLower(strings.TrimSpace(term))
	if t == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	found := map[Ref]struct{}{}
	merge := func(refs map[Ref]struct{}) {
		for r := range refs {
			found[r] = struct{}{}
		}
	}
	merge(m.columns[t])
	merge(m.values[t])
	// one- and two-letter terms would match nearly every key
	if len(t) > 2 {
		for key, refs := range m.columns {
			if strings.Contains(key, t) || (len(key) > 2 && strings.Contains(t, key)) {
				merge(refs)
			}
		}
	}
	if t == "count" {
		found[Wildcard] = struct{}{}
	}
	for _, syn := range synonyms[t] {
		merge(m.columns[syn])
	}

	out := make([]Ref, 0, len(found))
	for r := range found {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// Hint pairs a question term with the columns it resolved to.
type Hint struct {
	Term string
	Refs []Ref
}

var hintStopwords = map[string]struct{}{
	"the": {}, "and": {}, "are": {}, "how": {}, "many": {}, "what": {}, "which": {},
	"show": {}, "list": {}, "all": {}, "for": {}, "with": {}, "from": {}, "there": {},
	"does": {}, "that": {}, "this": {}, "have": {}, "give": {},
}

// Hints resolves every meaningful word and synonym phrase in a question.
// Terms that resolve to nothing are omitted.
func (m *Mapper) Hints(question string) []Hint {
	q := strings.ToLower(question)
	seen := map[string]bool{}
	var terms []string
	for phrase := range synonyms {
		if strings.Contains(phrase, " ") && strings.Contains(q, phrase) {
			terms = append(terms, phrase)
			seen[phrase] = true
		}
	}
	sort.Strings(terms)
	for _, w := range letterWordRE.FindAllString(q, -1) {
		if len(w) <= 2 || seen[w] {
			continue
		}
		if _, stop := hintStopwords[w]; stop {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}

	var out []Hint
	for _, t := range terms {
		if refs := m.FindColumnsForTerm(t); len(refs) > 0 {
			out = append(out, Hint{Term: t, Refs: refs})
		}
	}
	return out
}

// ColumnInfo describes what the mapper learned about one column.
type ColumnInfo struct {
	Kind         Kind
	Terms        []string
	SampleValues []string
}

// Column returns the index view of a single column.
func (m *Mapper) Column(table, column string) ColumnInfo {
	ref := Ref{Table: table, Column: column}
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := ColumnInfo{Kind: KindUnknown}
	if k, ok := m.kinds[ref]; ok {
		info.Kind = k
	}
	for term, refs := range m.columns {
		if _, ok := refs[ref]; ok {
			info.Terms = append(info.Terms, term)
		}
	}
	for v, refs := range m.values {
		if _, ok := refs[ref]; ok {
			info.SampleValues = append(info.SampleValues, v)
		}
	}
	sort.Strings(info.Terms)
	sort.Strings(info.SampleValues)
	if len(info.SampleValues) > 10 {
		info.SampleValues = info.SampleValues[:10]
	}
	return info
}
