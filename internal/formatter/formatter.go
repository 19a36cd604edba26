// Package formatter renders query results as prose.
//
// Every result is classified by question intent and rendered either by the
// model (a JSON reply with summary and content) or, when the model is off or
// its reply does not parse, by a deterministic renderer for that intent.
// Insights and visualizations are derived from the raw rows independently of
// how the text was rendered.
package formatter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"askdata/internal/datacontext"
	"askdata/internal/llm"
)

// Mode selects a verbosity profile.
type Mode string

const (
	Standard  Mode = "standard"
	Executive Mode = "executive"
	Research  Mode = "research"
	Technical Mode = "technical"
)

// ParseMode maps a name to a Mode. Unknown and empty names are Standard.
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Standard, Executive, Research, Technical:
		return m, true
	case "":
		return Standard, true
	default:
		return Standard, false
	}
}

// Insight is one finding derived from the rows.
type Insight struct {
	Finding      string
	Data         map[string]any
	Significance float64
	Category     string
}

// Metadata describes how a response was produced.
type Metadata struct {
	Intent     Intent
	Mode       Mode
	RowCount   int
	Duration   time.Duration
	Confidence float64
	Tables     []string
	// Renderer is "llm" or "fallback".
	Renderer string
}

// Response is a rendered result.
type Response struct {
	RawRows        []map[string]any
	Summary        string
	FormattedText  string
	Insights       []Insight
	Visualizations []string
	// Highlight is the optional extra field of a model rendering.
	Highlight string
	Metadata  Metadata

	SQL string
}

// Input is one result to render.
type Input struct {
	Question string
	Rows     []map[string]any
	// Columns orders the row keys; when empty the keys are sorted.
	Columns    []string
	SQL        string
	Tables     []string
	Duration   time.Duration
	Confidence float64
	Context    *datacontext.Context
	// Mode overrides the formatter default when set.
	Mode Mode
}

// Formatter renders results.
type Formatter struct {
	client llm.Client
	mode   Mode
	log    *zap.Logger
}

// Option configures a Formatter.
type Option func(*Formatter)

func WithLogger(l *zap.Logger) Option {
	return func(f *Formatter) {
		if l != nil {
			f.log = l
		}
	}
}

// WithMode sets the default mode.
func WithMode(m Mode) Option {
	return func(f *Formatter) {
		if m != "" {
			f.mode = m
		}
	}
}

// New returns a Formatter. A nil client renders everything deterministically.
func New(client llm.Client, opts ...Option) *Formatter {
	if client == nil {
		client = llm.Disabled{}
	}
	f := &Formatter{client: client, mode: Standard, log: zap.NewNop()}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Mode returns the default mode.
func (f *Formatter) Mode() Mode { return f.mode }

// Format renders in. It never fails: model errors and unparseable model
// replies fall back to the deterministic renderer for the intent.
func (f *Formatter) Format(ctx context.Context, in Input) *Response {
	mode := in.Mode
	if mode == "" {
		mode = f.mode
	}
	cols := in.Columns
	if len(cols) == 0 {
		cols = rowKeys(in.Rows)
	}
	intent := Classify(in.Question)

	resp := &Response{
		RawRows: in.Rows,
		SQL:     in.SQL,
		Metadata: Metadata{
			Intent:     intent,
			Mode:       mode,
			RowCount:   len(in.Rows),
			Duration:   in.Duration,
			Confidence: in.Confidence,
			Tables:     in.Tables,
			Renderer:   "fallback",
		},
	}
	if len(in.Rows) == 0 {
		resp.Summary = "No results found"
		resp.FormattedText = emptyText(in.Question, in.Context)
		return resp
	}

	r := result{question: in.Question, rows: in.Rows, cols: cols, mode: mode, sql: in.SQL, tables: in.Tables, ctx: in.Context}
	out := render(r, intent)
	if llm.IsEnabled(f.client) {
		if m, ok := f.renderWithModel(ctx, r, intent); ok {
			out.summary, out.content, resp.Highlight = m.Summary, m.Content, m.highlight()
			resp.Metadata.Renderer = "llm"
		}
	}
	resp.Summary = out.summary
	resp.FormattedText = out.content
	resp.Insights = insights(r, intent)
	resp.Visualizations = visualizations(r, intent)

	f.log.Debug("response formatted",
		zap.String("stage", "format"),
		zap.String("intent", string(intent)),
		zap.String("mode", string(mode)),
		zap.String("renderer", resp.Metadata.Renderer),
		zap.Int("rows", len(in.Rows)),
	)
	return resp
}

// Render joins the formatted text, insights and visualizations into the
// final answer. debug appends the SQL and timing.
func (r *Response) Render(debug bool) string {
	var b strings.Builder
	b.WriteString(r.FormattedText)
	if r.Highlight != "" {
		fmt.Fprintf(&b, "\n\n**Highlight:** %s", r.Highlight)
	}
	if len(r.Insights) > 0 {
		b.WriteString("\n\n**Key Insights:**\n")
		for _, in := range r.Insights {
			fmt.Fprintf(&b, "- %s\n", in.Finding)
		}
	}
	if len(r.Visualizations) > 0 {
		b.WriteString("\n")
		for _, v := range r.Visualizations {
			fmt.Fprintf(&b, "\n%s\n", v)
		}
	}
	if debug {
		b.WriteString("\n\n---\n**Debug Information:**\n")
		sql := r.SQL
		if sql == "" {
			sql = "N/A"
		}
		fmt.Fprintf(&b, "SQL: %s\n", sql)
		fmt.Fprintf(&b, "Intent: %s, mode: %s, renderer: %s\n", r.Metadata.Intent, r.Metadata.Mode, r.Metadata.Renderer)
		fmt.Fprintf(&b, "Execution Time: %.2fs\n", r.Metadata.Duration.Seconds())
	}
	return b.String()
}

// result is the shared input of every renderer.
type result struct {
	question string
	rows     []map[string]any
	cols     []string
	mode     Mode
	sql      string
	tables   []string
	ctx      *datacontext.Context
}

type rendered struct {
	summary string
	content string
}

func rowKeys(rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	keys := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
