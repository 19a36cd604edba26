package formatter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"askdata/internal/datacontext"
)

type fakeLLM struct {
	resp   string
	err    error
	prompt string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.resp, f.err
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		question string
		want     Intent
	}{
		{"count rows by domain", Aggregate},
		{"how many risks per domain", Aggregate},
		{"show the distribution of types", Aggregate},
		{"how many rows are in the database", Count},
		{"What is the total number of risks?", Count},
		{"list all domains", List},
		{"show all risks", List},
		{"show me details of risk 5", Detail},
		{"describe the risks table", Detail},
		{"find risks with privacy impact", Search},
		{"risks about misinformation", Search},
		{"hello there", Unknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.question); got != tt.want {
			t.Fatalf("Classify(%q) = %s, want %s", tt.question, got, tt.want)
		}
	}
}

func testContext() *datacontext.Context {
	return &datacontext.Context{
		Tables: []datacontext.Table{
			{
				Name:     "people",
				RowCount: 10,
				Columns: []datacontext.Column{
					{Name: "id", DistinctValues: []any{int64(1), int64(2)}},
					{Name: "team", DistinctValues: []any{"a", "b", "c"}},
				},
			},
			{Name: "notes", RowCount: 2},
		},
	}
}

func TestFormat_Count(t *testing.T) {
	t.Parallel()

	f := New(nil)
	resp := f.Format(context.Background(), Input{
		Question: "how many people are there",
		Rows:     []map[string]any{{"total": int64(3)}},
		Columns:  []string{"total"},
		Tables:   []string{"people"},
		Context:  testContext(),
	})
	if resp.FormattedText != "**Result**: 3" || resp.Summary != "Count result: 3" {
		t.Fatalf("count rendering = %q / %q", resp.Summary, resp.FormattedText)
	}
	if len(resp.Insights) != 1 || resp.Insights[0].Finding != "This represents 30.0% of all records in people" {
		t.Fatalf("Insights = %+v", resp.Insights)
	}
	if resp.Metadata.Intent != Count || resp.Metadata.Renderer != "fallback" || resp.Metadata.RowCount != 1 {
		t.Fatalf("Metadata = %+v", resp.Metadata)
	}

	// a count equal to the table size says nothing new
	full := f.Format(context.Background(), Input{
		Question: "how many notes",
		Rows:     []map[string]any{{"COUNT(*)": int64(2)}},
		Tables:   []string{"notes"},
		Context:  testContext(),
	})
	if len(full.Insights) != 0 {
		t.Fatalf("Insights = %+v, want none", full.Insights)
	}
}

func TestFormat_AggregateWithNullGroup(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"domain": "a", "count": int64(5)},
		{"domain": nil, "count": int64(2)},
		{"domain": "b", "count": int64(10)},
		{"domain": "c", "count": int64(1)},
	}
	resp := New(nil).Format(context.Background(), Input{
		Question: "count rows by domain",
		Rows:     rows,
		Columns:  []string{"domain", "count"},
	})
	want := "**Aggregated Results** (4 groups, 18 total):\n" +
		"\n- domain: b, count: 10 (55.6%)" +
		"\n- domain: a, count: 5 (27.8%)" +
		"\n- domain: c, count: 1 (5.6%)" +
		"\n- domain: not specified, count: 2 (11.1%)"
	if resp.FormattedText != want {
		t.Fatalf("FormattedText =\n%s\nwant\n%s", resp.FormattedText, want)
	}
	if len(resp.Insights) != 1 || resp.Insights[0].Finding != "Top 3 by domain: b, a, c" {
		t.Fatalf("Insights = %+v", resp.Insights)
	}
}

func TestFormat_ListModes(t *testing.T) {
	t.Parallel()

	var rows []map[string]any
	for i := 0; i < 30; i++ {
		rows = append(rows, map[string]any{"name": fmt.Sprintf("item %02d", i)})
	}
	tests := []struct {
		mode  Mode
		shown int
		extra string
	}{
		{Standard, 20, "... and 10 more"},
		{Executive, 5, "... and 25 more"},
		{Research, 30, "Rows returned: 30"},
		{Technical, 20, "SQL: `SELECT name FROM t`"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()
			resp := New(nil, WithMode(Standard)).Format(context.Background(), Input{
				Question: "list all items",
				Rows:     rows,
				Columns:  []string{"name"},
				SQL:      "SELECT name FROM t",
				Mode:     tt.mode,
			})
			text := resp.FormattedText
			if !strings.Contains(text, fmt.Sprintf("\n%d. item %02d", tt.shown, tt.shown-1)) {
				t.Fatalf("%s: missing item %d:\n%s", tt.mode, tt.shown, text)
			}
			if strings.Contains(text, fmt.Sprintf("\n%d. ", tt.shown+1)) {
				t.Fatalf("%s: shows more than %d items:\n%s", tt.mode, tt.shown, text)
			}
			if !strings.Contains(text, tt.extra) {
				t.Fatalf("%s: missing %q:\n%s", tt.mode, tt.extra, text)
			}
		})
	}
}

func TestFormat_ListKeepsNumericOrder(t *testing.T) {
	t.Parallel()

	resp := New(nil).Format(context.Background(), Input{
		Question: "list all domains",
		Rows: []map[string]any{
			{"domain": "10. Other"},
			{"domain": nil},
			{"domain": "2. Privacy"},
			{"domain": "1. Discrimination"},
		},
		Columns: []string{"domain"},
	})
	want := "Found 3 items:\n\n1. 1. Discrimination\n2. 2. Privacy\n3. 10. Other"
	if resp.FormattedText != want {
		t.Fatalf("FormattedText = %q, want %q", resp.FormattedText, want)
	}
}

func TestFormat_Empty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		question string
		ctx      *datacontext.Context
		want     string
	}{
		{"list the domains of nothing", nil, "1. List all domains"},
		{"xyz", nil, "1. List all tables"},
		{"how many people left", testContext(), "Count people by team"},
	}
	for _, tt := range tests {
		resp := New(nil).Format(context.Background(), Input{Question: tt.question, Context: tt.ctx})
		if resp.Summary != "No results found" {
			t.Fatalf("Summary = %q", resp.Summary)
		}
		if !strings.Contains(resp.FormattedText, "Try these alternative queries:") || !strings.Contains(resp.FormattedText, tt.want) {
			t.Fatalf("Format(%q) text = %q, want %q", tt.question, resp.FormattedText, tt.want)
		}
	}
}

func TestSuggestions_CappedAtThree(t *testing.T) {
	t.Parallel()

	got := Suggestions("how many people by domain", testContext())
	if len(got) != maxSuggestions {
		t.Fatalf("Suggestions = %v, want %d", got, maxSuggestions)
	}
	if got[0] != "List all domains" {
		t.Fatalf("Suggestions[0] = %q", got[0])
	}
}

func TestFormat_ModelRendering(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{{"domain": "a", "count": int64(1)}}
	tests := []struct {
		name     string
		client   *fakeLLM
		renderer string
		text     string
	}{
		{"fenced json", &fakeLLM{resp: "```json\n{\"summary\": \"S\", \"content\": \"C\", \"key_finding\": \"K\"}\n```"}, "llm", "C"},
		{"prose", &fakeLLM{resp: "Here you go: it is fine"}, "fallback", "**Aggregated Results**"},
		{"no content", &fakeLLM{resp: `{"summary": "S"}`}, "fallback", "**Aggregated Results**"},
		{"error", &fakeLLM{err: errors.New("quota")}, "fallback", "**Aggregated Results**"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := New(tt.client).Format(context.Background(), Input{
				Question: "count by domain",
				Rows:     rows,
				Columns:  []string{"domain", "count"},
			})
			if resp.Metadata.Renderer != tt.renderer || !strings.HasPrefix(resp.FormattedText, tt.text) {
				t.Fatalf("renderer %s text %q, want %s %q", resp.Metadata.Renderer, resp.FormattedText, tt.renderer, tt.text)
			}
			if tt.renderer == "llm" && (resp.Summary != "S" || resp.Highlight != "K") {
				t.Fatalf("model fields = %q %q", resp.Summary, resp.Highlight)
			}
			if !strings.Contains(tt.client.prompt, `"key_finding"`) || !strings.Contains(tt.client.prompt, `"domain": "a"`) {
				t.Fatalf("prompt:\n%s", tt.client.prompt)
			}
		})
	}
}

func TestInsights_DominantValue(t *testing.T) {
	t.Parallel()

	var rows []map[string]any
	for i := 0; i < 12; i++ {
		typ := "other"
		if i < 5 {
			typ = "misuse"
		} else if i%2 == 0 {
			typ = fmt.Sprintf("t%d", i)
		}
		rows = append(rows, map[string]any{"title": fmt.Sprintf("r%d", i), "type": typ})
	}
	resp := New(nil).Format(context.Background(), Input{Question: "hello", Rows: rows, Columns: []string{"title", "type"}})
	if len(resp.Insights) != 1 || resp.Insights[0].Finding != "Most common type: misuse (5 occurrences)" {
		t.Fatalf("Insights = %+v", resp.Insights)
	}
}

func TestVisualizations(t *testing.T) {
	t.Parallel()

	rows := func(col string) []map[string]any {
		var out []map[string]any
		for i := 0; i < 12; i++ {
			v := "open"
			if i%3 == 0 {
				v = "closed"
			}
			out = append(out, map[string]any{"title": fmt.Sprintf("t%d", i), col: v})
		}
		return out
	}

	resp := New(nil).Format(context.Background(), Input{
		Question: "find items with a status",
		Rows:     rows("status"),
		Columns:  []string{"title", "status"},
	})
	if len(resp.Visualizations) != 1 {
		t.Fatalf("Visualizations = %q, want one", resp.Visualizations)
	}
	viz := resp.Visualizations[0]
	if !strings.HasPrefix(viz, "Status distribution:") || !strings.Contains(viz, "█████████████░░░░░░░] 8") {
		t.Fatalf("bars =\n%s", viz)
	}

	shaped := New(nil).Format(context.Background(), Input{
		Question: "find items with a domain",
		Rows:     rows("domain"),
		Columns:  []string{"title", "domain"},
	})
	if len(shaped.Visualizations) != 0 {
		t.Fatalf("taxonomy-shaped rows got bars: %q", shaped.Visualizations)
	}

	listed := New(nil).Format(context.Background(), Input{
		Question: "list all items",
		Rows:     rows("status"),
		Columns:  []string{"title", "status"},
	})
	if len(listed.Visualizations) != 0 {
		t.Fatalf("list result got bars: %q", listed.Visualizations)
	}
}

func TestResponse_Render(t *testing.T) {
	t.Parallel()

	resp := &Response{
		FormattedText: "**Result**: 3",
		Insights:      []Insight{{Finding: "This represents 30.0% of all records in people"}},
		SQL:           "SELECT COUNT(*) FROM people",
		Metadata:      Metadata{Intent: Count, Mode: Standard, Renderer: "fallback"},
	}
	got := resp.Render(false)
	want := "**Result**: 3\n\n**Key Insights:**\n- This represents 30.0% of all records in people\n"
	if got != want {
		t.Fatalf("Render(false) = %q, want %q", got, want)
	}
	debug := resp.Render(true)
	if !strings.Contains(debug, "**Debug Information:**") || !strings.Contains(debug, "SQL: SELECT COUNT(*) FROM people") {
		t.Fatalf("Render(true) = %q", debug)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"", Standard, true},
		{"Executive", Executive, true},
		{" research ", Research, true},
		{"verbose", Standard, false},
	}
	for _, tt := range tests {
		got, ok := ParseMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseMode(%q) = %s, %v, want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDisplay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{nil, "not specified"},
		{float64(3), "3"},
		{2.5, "2.5"},
		{int64(1612), "1612"},
		{[]byte("x"), "x"},
	}
	for _, tt := range tests {
		if got := display(tt.in); got != tt.want {
			t.Fatalf("display(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
