package semantic

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DataQuality summarizes how much signal a table carries.
type DataQuality struct {
	RowCount          int
	ColumnCount       int
	DataColumns       int
	AvgCompleteness   float64
	HasMeaningfulData bool
}

// TableSemantics is the registry's view of one table. It is rebuilt whenever
// the table is registered again.
type TableSemantics struct {
	TableName     string
	SemanticType  string
	Keywords      map[string]struct{}
	Description   string
	PrimaryEntity string
	Quality       DataQuality
}

// HasKeyword reports whether kw is among the table's keywords.
func (t *TableSemantics) HasKeyword(kw string) bool {
	_, ok := t.Keywords[kw]
	return ok
}

// SortedKeywords returns the keywords in lexical order.
func (t *TableSemantics) SortedKeywords() []string {
	out := make([]string, 0, len(t.Keywords))
	for k := range t.Keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TableInput is what the loader knows about a table when registering it.
type TableInput struct {
	Name     string
	Metadata map[string]any
	Columns  []string
	// Sample rows used for keyword and completeness analysis.
	Sample []map[string]any
	// RowCount is the number of rows actually stored.
	RowCount int
}

// Registry holds the semantics of every loaded table.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	tables   map[string]*TableSemantics
	vocab    map[string]struct{}
	embedder Embedder
	vectors  map[string][]float32
	log      *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithVocabulary replaces DefaultVocabulary.
func WithVocabulary(words []string) Option {
	return func(r *Registry) {
		r.vocab = toSet(words)
	}
}

// WithEmbedder enables semantic reranking in FindTablesForQuery.
func WithEmbedder(e Embedder) Option {
	return func(r *Registry) { r.embedder = e }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tables:  map[string]*TableSemantics{},
		vocab:   toSet(DefaultVocabulary),
		vectors: map[string][]float32{},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register classifies a table and stores its semantics, replacing any
// previous entry with the same name.
func (r *Registry) Register(in TableInput) *TableSemantics {
	sem := &TableSemantics{
		TableName:    in.Name,
		SemanticType: detectType(in),
		Keywords:     extractKeywords(in),
		Quality:      analyzeQuality(in),
	}
	for kw := range r.dataKeywords(in.Sample) {
		sem.Keywords[kw] = struct{}{}
	}
	if c, ok := category(sem.SemanticType); ok {
		sem.PrimaryEntity = c.Entity
	}
	sem.Description = describe(sem.SemanticType, in)

	r.mu.Lock()
	if _, exists := r.tables[in.Name]; !exists {
		r.order = append(r.order, in.Name)
	}
	r.tables[in.Name] = sem
	delete(r.vectors, in.Name)
	r.mu.Unlock()

	r.log.Info("table registered",
		zap.String("table", in.Name),
		zap.String("semantic_type", sem.SemanticType),
		zap.Int("keywords", len(sem.Keywords)),
	)
	return sem
}

// Reset forgets every table.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.tables = map[string]*TableSemantics{}
	r.vectors = map[string][]float32{}
}

// Get returns the semantics of a table.
func (r *Registry) Get(name string) (*TableSemantics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns every registered table in registration order.
func (r *Registry) Tables() []*TableSemantics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TableSemantics, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tables[n])
	}
	return out
}

// Description returns the generated description of a table.
func (r *Registry) Description(name string) string {
	if t, ok := r.Get(name); ok {
		return t.Description
	}
	return ""
}

func detectType(in TableInput) string {
	text := strings.ToLower(in.Name + " " + metaString(in.Metadata, "source_file") + " " + metaString(in.Metadata, "sheet_name"))

	best, bestScore := General, 0
	for _, c := range Categories {
		score := 0
		for _, p := range c.Patterns {
			if p.MatchString(text) {
				score += 2
			}
			for _, col := range in.Columns {
				if p.MatchString(col) {
					score++
				}
			}
		}
		if score > bestScore {
			best, bestScore = c.Type, score
		}
	}
	return best
}

var wordRE = regexp.MustCompile(`\w+`)

var keywordStopwords = toSet([]string{"id", "the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for"})

func tokens(s string) []string {
	return wordRE.FindAllString(strings.ToLower(s), -1)
}

func extractKeywords(in TableInput) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(s string) {
		for _, w := range tokens(s) {
			// "risk_id" is one \w+ token; split on underscores too
			for _, part := range append([]string{w}, strings.Split(w, "_")...) {
				if part == "" {
					continue
				}
				if _, stop := keywordStopwords[part]; !stop {
					out[part] = struct{}{}
				}
			}
		}
	}
	add(in.Name)
	add(metaString(in.Metadata, "sheet_name"))
	for _, c := range in.Columns {
		add(c)
	}
	return out
}

var valueWordRE = regexp.MustCompile(`\b[a-zA-Z]{2,}\b`)

// dataKeywords collects short categorical values from the first ten sample
// rows and keeps only words in the registry vocabulary.
func (r *Registry) dataKeywords(sample []map[string]any) map[string]struct{} {
	out := map[string]struct{}{}
	if len(sample) > 10 {
		sample = sample[:10]
	}
	for _, row := range sample {
		for _, v := range row {
			s, ok := v.(string)
			if !ok || s == "" {
				continue
			}
			words := valueWordRE.FindAllString(strings.ToLower(s), -1)
			if len(words) > 5 {
				continue
			}
			for _, w := range words {
				if _, ok := r.vocab[w]; ok {
					out[w] = struct{}{}
				}
			}
		}
	}
	return out
}

func analyzeQuality(in TableInput) DataQuality {
	q := DataQuality{RowCount: in.RowCount, ColumnCount: len(in.Columns)}
	if q.RowCount == 0 {
		q.RowCount = len(in.Sample)
	}
	if len(in.Sample) == 0 || len(in.Columns) == 0 {
		return q
	}
	var sum float64
	for _, c := range in.Columns {
		filled := 0
		for _, row := range in.Sample {
			if v := row[c]; v != nil && strings.TrimSpace(fmt.Sprint(v)) != "" {
				filled++
			}
		}
		ratio := float64(filled) / float64(len(in.Sample))
		sum += ratio
		if ratio > 0.1 {
			q.DataColumns++
		}
	}
	q.AvgCompleteness = sum / float64(len(in.Columns))
	q.HasMeaningfulData = q.DataColumns > 1
	return q
}

func describe(typ string, in TableInput) string {
	n := in.RowCount
	switch typ {
	case PrimaryRecords:
		return fmt.Sprintf("Contains %d primary records with detailed per-entry information", n)
	case Taxonomy:
		return fmt.Sprintf("Hierarchical classification system with %d categories", n)
	case Statistics:
		return fmt.Sprintf("Statistical summary data with %d metrics", n)
	case Resources:
		return fmt.Sprintf("Collection of %d resources, papers, and references", n)
	case Changelog:
		return fmt.Sprintf("Historical record of %d changes and updates", n)
	case Content:
		return fmt.Sprintf("Text content and descriptions with %d entries", n)
	case Metadata:
		return fmt.Sprintf("Auxiliary metadata with %d entries", n)
	default:
		src := metaString(in.Metadata, "source_file")
		if src == "" {
			src = "unknown source"
		}
		return fmt.Sprintf("Data table with %d rows from %s", n, src)
	}
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func toSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[strings.ToLower(w)] = struct{}{}
	}
	return out
}
