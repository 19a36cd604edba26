package semantic

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Embedder turns text into a vector. llm.Embedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Match is one ranked table.
type Match struct {
	Table *TableSemantics
	Score float64
}

// Ranking thresholds.
const (
	SmallTableRows  = 50
	metadataPenalty = 0.3
	smallPenalty    = 0.5
	embeddingWeight = 10.0
)

var queryStopwords = toSet([]string{"the", "a", "an", "how", "many", "what", "where", "when", "which", "show", "list", "get", "me", "all"})

var (
	countQueryRE    = regexp.MustCompile(`(?i)\b(how many|count|number of|total)\b`)
	categoryQueryRE = regexp.MustCompile(`(?i)\b(categor(y|ies)|types?|classes|kinds?)\b`)
	domainQueryRE   = regexp.MustCompile(`(?i)\bdomains?\b`)
)

// FindTablesForQuery scores every registered table against a question and
// returns those with a positive score, best first. Equal scores keep
// registration order. An empty result means the caller should consider
// every table.
func (r *Registry) FindTablesForQuery(ctx context.Context, query string) []Match {
	tables := r.Tables()
	lower := strings.ToLower(query)
	terms := map[string]struct{}{}
	for _, w := range tokens(lower) {
		if _, stop := queryStopwords[w]; !stop {
			terms[w] = struct{}{}
		}
	}

	var out []Match
	for _, t := range tables {
		if s := scoreTable(t, lower, terms); s > 0 {
			out = append(out, Match{Table: t, Score: s})
		}
	}

	if r.embedder != nil && len(out) > 1 {
		r.rerank(ctx, query, out)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// TableNames is a convenience for callers that only need names.
func TableNames(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Table.TableName
	}
	return out
}

func scoreTable(t *TableSemantics, query string, terms map[string]struct{}) float64 {
	var score float64
	named := strings.Contains(query, strings.ToLower(t.TableName))
	if named {
		score += 15
	}

	if c, ok := category(t.SemanticType); ok {
		for _, p := range c.Patterns {
			if p.MatchString(query) {
				score += 5 * (c.Priority / 5)
			}
		}
	}

	switch {
	case countQueryRE.MatchString(query) && t.SemanticType == PrimaryRecords:
		score += 10
	case categoryQueryRE.MatchString(query) && t.SemanticType == Taxonomy:
		score += 10
	}
	if domainQueryRE.MatchString(query) && t.HasKeyword("domain") {
		score += 10
	}

	overlap := 0
	for term := range terms {
		if t.HasKeyword(term) {
			overlap++
		}
	}
	score += float64(overlap) * 2

	if t.PrimaryEntity != "" && strings.Contains(query, strings.ReplaceAll(t.PrimaryEntity, "_", " ")) {
		score += 3
	}

	q := t.Quality
	switch {
	case q.RowCount > 1000:
		score += 10
	case q.RowCount > 100:
		score += 5
	}
	if q.HasMeaningfulData {
		score += 8
	}
	if q.AvgCompleteness > 0.5 {
		score += 3
	}

	if t.SemanticType == Metadata && !strings.Contains(query, "explainer") && !named {
		score *= metadataPenalty
	}
	if q.RowCount < SmallTableRows && !named {
		score *= smallPenalty
	}
	return score
}

// rerank adds a cosine-similarity bonus between the question and each
// table's description. Embedding failures leave the lexical scores as-is.
func (r *Registry) rerank(ctx context.Context, query string, ms []Match) {
	qv, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.log.Warn("query embedding failed", zap.Error(err))
		return
	}
	for i := range ms {
		tv, err := r.tableVector(ctx, ms[i].Table)
		if err != nil {
			r.log.Warn("table embedding failed", zap.String("table", ms[i].Table.TableName), zap.Error(err))
			return
		}
		ms[i].Score += embeddingWeight * cosine(qv, tv)
	}
}

func (r *Registry) tableVector(ctx context.Context, t *TableSemantics) ([]float32, error) {
	r.mu.RLock()
	v, ok := r.vectors[t.TableName]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}
	text := t.TableName + ": " + t.Description + ". " + strings.Join(t.SortedKeywords(), " ")
	v, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	// only cache if the table was not re-registered meanwhile
	if cur, ok := r.tables[t.TableName]; ok && cur == t {
		r.vectors[t.TableName] = v
	}
	r.mu.Unlock()
	return v, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
