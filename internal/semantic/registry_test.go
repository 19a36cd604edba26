package semantic

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func TestDetectType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		table   string
		columns []string
		meta    map[string]any
		want    string
	}{
		{"records", "risk_register", []string{"risk_id", "domain"}, nil, PrimaryRecords},
		{"taxonomy", "domain_taxonomy", []string{"domain", "subdomain", "description"}, nil, Taxonomy},
		{"changelog", "change_log", []string{"version", "note"}, nil, Changelog},
		{"explainer", "explainer", []string{"field", "meaning"}, nil, Metadata},
		{"sheet name counts", "sheet1", []string{"a", "b"}, map[string]any{"sheet_name": "Statistics"}, Statistics},
		{"nothing matches", "sales", []string{"region", "amount"}, nil, General},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := detectType(TableInput{Name: tt.table, Columns: tt.columns, Metadata: tt.meta})
			if got != tt.want {
				t.Fatalf("detectType(%q) = %q, want %q", tt.table, got, tt.want)
			}
		})
	}
}

func TestRegister_KeywordsAndQuality(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	sem := r.Register(TableInput{
		Name:     "risk_register",
		Metadata: map[string]any{"sheet_name": "Risk Register", "source_file": "repo.xlsx"},
		Columns:  []string{"risk_id", "domain", "notes"},
		Sample: []map[string]any{
			{"risk_id": "R1", "domain": "Privacy & Security", "notes": nil},
			{"risk_id": "R2", "domain": "a very long free text sentence about human safety issues", "notes": nil},
			{"risk_id": "R3", "domain": nil, "notes": ""},
			{"risk_id": "R4", "domain": nil, "notes": "x"},
		},
		RowCount: 1612,
	})

	for _, kw := range []string{"risk", "register", "risk_id", "domain", "notes", "privacy", "security"} {
		if !sem.HasKeyword(kw) {
			t.Fatalf("keyword %q missing from %v", kw, sem.SortedKeywords())
		}
	}
	for _, kw := range []string{"id", "human", "safety"} {
		if sem.HasKeyword(kw) {
			t.Fatalf("unexpected keyword %q in %v", kw, sem.SortedKeywords())
		}
	}

	q := sem.Quality
	if q.RowCount != 1612 || q.ColumnCount != 3 || q.DataColumns != 3 {
		t.Fatalf("quality = %+v", q)
	}
	// risk_id 1.0, domain 0.5, notes 0.25
	if math.Abs(q.AvgCompleteness-1.75/3) > 1e-9 {
		t.Fatalf("AvgCompleteness = %v, want %v", q.AvgCompleteness, 1.75/3)
	}
	if !q.HasMeaningfulData {
		t.Fatal("HasMeaningfulData = false, want true")
	}
	if sem.SemanticType != PrimaryRecords || sem.PrimaryEntity != "record" {
		t.Fatalf("type = %q entity = %q", sem.SemanticType, sem.PrimaryEntity)
	}
	if !strings.Contains(sem.Description, "1612") {
		t.Fatalf("Description = %q, want row count", sem.Description)
	}
}

func TestRegister_ReplacesKeepingOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(TableInput{Name: "a", RowCount: 1})
	r.Register(TableInput{Name: "b", RowCount: 1})
	r.Register(TableInput{Name: "a", RowCount: 7})

	var names []string
	for _, ts := range r.Tables() {
		names = append(names, ts.TableName)
	}
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Fatalf("Tables = %v, want [a b]", names)
	}
	if got, _ := r.Get("a"); got.Quality.RowCount != 7 {
		t.Fatalf("a.RowCount = %d, want 7", got.Quality.RowCount)
	}

	r.Reset()
	if len(r.Tables()) != 0 {
		t.Fatal("Reset left tables behind")
	}
}

func filledSample(cols []string, n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		row := map[string]any{}
		for _, c := range cols {
			row[c] = c + "_value"
		}
		out[i] = row
	}
	return out
}

func register(r *Registry, name string, rows int, cols ...string) {
	r.Register(TableInput{Name: name, Columns: cols, Sample: filledSample(cols, 3), RowCount: rows})
}

func TestFindTablesForQuery(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	register(r, "risks", 1612, "risk_id", "domain", "description")
	register(r, "domain_taxonomy", 120, "domain", "subdomain", "definition")
	register(r, "explainer", 5, "field", "meaning")

	tests := []struct {
		query string
		first string
	}{
		{"how many risks are there", "risks"},
		{"list all domain categories", "domain_taxonomy"},
		{"what does the explainer say", "explainer"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			got := r.FindTablesForQuery(context.Background(), tt.query)
			if len(got) == 0 || got[0].Table.TableName != tt.first {
				t.Fatalf("FindTablesForQuery(%q) = %v, want %q first", tt.query, TableNames(got), tt.first)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Score > got[i-1].Score {
					t.Fatalf("not sorted: %v", got)
				}
			}
		})
	}
}

func TestFindTablesForQuery_TiesKeepRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	register(r, "beta", 200, "x", "y")
	register(r, "alpha", 200, "x", "y")

	got := TableNames(r.FindTablesForQuery(context.Background(), "zzz"))
	if !reflect.DeepEqual(got, []string{"beta", "alpha"}) {
		t.Fatalf("order = %v, want [beta alpha]", got)
	}
}

func TestFindTablesForQuery_Empty(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if got := r.FindTablesForQuery(context.Background(), "anything"); len(got) != 0 {
		t.Fatalf("empty registry returned %v", got)
	}
	r.Register(TableInput{Name: "blank"})
	if got := r.FindTablesForQuery(context.Background(), "anything"); len(got) != 0 {
		t.Fatalf("zero-signal table returned %v", TableNames(got))
	}
}

func TestScoreTable_Penalties(t *testing.T) {
	t.Parallel()

	base := TableSemantics{
		TableName:    "notes",
		SemanticType: General,
		Keywords:     map[string]struct{}{},
		Quality:      DataQuality{RowCount: 200, HasMeaningfulData: true, AvgCompleteness: 1},
	}
	plain := scoreTable(&base, "zzz", nil)

	meta := base
	meta.SemanticType = Metadata
	if got := scoreTable(&meta, "zzz", nil); math.Abs(got-plain*metadataPenalty) > 1e-9 {
		t.Fatalf("metadata score = %v, want %v", got, plain*metadataPenalty)
	}

	small := base
	small.Quality.RowCount = 10
	// loses the >100 bonus as well
	want := (plain - 5) * smallPenalty
	if got := scoreTable(&small, "zzz", nil); math.Abs(got-want) > 1e-9 {
		t.Fatalf("small score = %v, want %v", got, want)
	}
	if got := scoreTable(&small, "show notes", nil); got <= want {
		t.Fatalf("named small table should not be penalized: %v <= %v", got, want)
	}
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("embedding unavailable")
	}
	if strings.Contains(text, "beta") || strings.Contains(text, "zzz") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func TestFindTablesForQuery_EmbeddingRerank(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	r := NewRegistry(WithEmbedder(emb))
	register(r, "alpha", 200, "x", "y")
	register(r, "beta", 200, "x", "y")

	got := TableNames(r.FindTablesForQuery(context.Background(), "zzz"))
	if !reflect.DeepEqual(got, []string{"beta", "alpha"}) {
		t.Fatalf("order = %v, want [beta alpha]", got)
	}
	r.FindTablesForQuery(context.Background(), "zzz")
	if emb.calls != 4 {
		t.Fatalf("embed calls = %d, want 4 (table vectors cached)", emb.calls)
	}
}

func TestFindTablesForQuery_EmbeddingFailureKeepsLexicalOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(WithEmbedder(&fakeEmbedder{fail: true}))
	register(r, "alpha", 200, "x", "y")
	register(r, "beta", 200, "x", "y")

	got := TableNames(r.FindTablesForQuery(context.Background(), "zzz"))
	if !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
		t.Fatalf("order = %v, want [alpha beta]", got)
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1}, []float32{1, 0}, 0},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
