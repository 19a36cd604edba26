// Package querygen turns a natural-language question into one validated,
// read-only SQL statement.
//
// The model is asked for a fixed four-field answer. Anything that goes wrong
// between the call and validation (a failed call, output without a SQL field,
// a statement that is not read-only) falls back to a deterministic template
// query, so a question always gets SQL while at least one table exists.
package querygen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"askdata/internal/columnmap"
	"askdata/internal/llm"
	"askdata/internal/storage"
)

var (
	// ErrNoSchemas is returned when there is no table to query.
	ErrNoSchemas = errors.New("querygen: no table schemas available")
	// ErrUnsafeSQL marks a statement that is not a single read-only query.
	ErrUnsafeSQL = errors.New("querygen: unsafe sql")
	// ErrMalformedOutput marks model output without a usable SQL field.
	ErrMalformedOutput = errors.New("querygen: malformed model output")
)

// FallbackConfidence is the confidence attached to template queries.
const FallbackConfidence = 0.3

const defaultConfidence = 0.7

// Column is one column as shown to the model.
type Column struct {
	Name     string
	Type     string
	Examples []string
}

// TableSchema is one candidate table as shown to the model.
type TableSchema struct {
	Name         string
	Description  string
	SemanticType string
	RowCount     int64
	Columns      []Column
}

func (t TableSchema) hasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// SQLQuery is the generator's answer for one question.
type SQLQuery struct {
	SQL           string
	Confidence    float64
	TargetTables  []string
	Explanation   string
	IsAggregation bool
	IsJoin        bool

	// Fallback is set when the SQL came from a template. FallbackReason says
	// why: "llm_error", "malformed", or "unsafe".
	Fallback       bool
	FallbackReason string
}

// Request is one generation request.
type Request struct {
	Question string
	Schemas  []TableSchema
	// DataContext is the exported data context; empty degrades the prompt to
	// schema only.
	DataContext string
}

// Generator produces SQL with a model and a deterministic fallback.
type Generator struct {
	client     llm.Client
	dialect    storage.Dialect
	mapper     *columnmap.Mapper
	allowJoins bool
	log        *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// WithMapper adds column hints from the mapper to the prompt.
func WithMapper(m *columnmap.Mapper) Option {
	return func(g *Generator) { g.mapper = m }
}

// WithJoins controls whether the model is told it may join tables.
func WithJoins(allow bool) Option {
	return func(g *Generator) { g.allowJoins = allow }
}

// New returns a Generator. A nil client behaves like llm.Disabled.
func New(client llm.Client, d storage.Dialect, opts ...Option) *Generator {
	if client == nil {
		client = llm.Disabled{}
	}
	g := &Generator{client: client, dialect: d, allowJoins: true, log: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate returns SQL for req. The only error is ErrNoSchemas; every model
// or validation failure is absorbed by the fallback.
func (g *Generator) Generate(ctx context.Context, req Request) (SQLQuery, error) {
	if len(req.Schemas) == 0 {
		return SQLQuery{}, ErrNoSchemas
	}

	start := time.Now()
	q, reason, err := g.fromModel(ctx, req)
	if err == nil {
		g.log.Info("sql generated",
			zap.String("stage", "querygen"),
			zap.String("sql", q.SQL),
			zap.Float64("confidence", q.Confidence),
			zap.Duration("duration", time.Since(start)),
		)
		return q, nil
	}

	level := g.log.Warn
	if errors.Is(err, llm.ErrDisabled) {
		level = g.log.Debug
	}
	level("sql generation fell back", zap.String("reason", reason), zap.Error(err))

	fb := Fallback(req.Question, req.Schemas, g.dialect)
	fb.FallbackReason = reason
	return fb, nil
}

func (g *Generator) fromModel(ctx context.Context, req Request) (SQLQuery, string, error) {
	prompt := g.Prompt(req)
	out, err := g.client.Generate(ctx, prompt)
	if err != nil {
		return SQLQuery{}, "llm_error", err
	}
	q, err := ParseResponse(out, req.Schemas)
	if err != nil {
		return SQLQuery{}, "malformed", err
	}
	if err := CheckReadOnly(q.SQL); err != nil {
		return SQLQuery{}, "unsafe", err
	}
	return q, "", nil
}

var responseLabels = []string{"SQL", "EXPLANATION", "TABLES", "CONFIDENCE"}

// ParseResponse reads the four-field model answer. A missing SQL field is
// ErrMalformedOutput. Target tables are filtered to the known schemas and
// confidence is clamped to [0, 1], defaulting to 0.7.
func ParseResponse(out string, schemas []TableSchema) (SQLQuery, error) {
	ex := llm.ExtractFields(out, responseLabels, "SQL")
	if !ex.OK() {
		return SQLQuery{}, fmt.Errorf("%w: %v", ErrMalformedOutput, ex.Err)
	}
	f := ex.Value

	sql := cleanSQL(f["SQL"])
	if sql == "" {
		return SQLQuery{}, fmt.Errorf("%w: empty sql", ErrMalformedOutput)
	}

	q := SQLQuery{
		SQL:         sql,
		Explanation: strings.TrimSpace(f["EXPLANATION"]),
		Confidence:  defaultConfidence,
	}
	if q.Explanation == "" {
		q.Explanation = "No explanation provided"
	}
	if c, err := strconv.ParseFloat(firstField(f["CONFIDENCE"]), 64); err == nil {
		q.Confidence = min(max(c, 0), 1)
	}

	valid := map[string]bool{}
	for _, s := range schemas {
		valid[s.Name] = true
	}
	for _, t := range strings.Split(f["TABLES"], ",") {
		t = strings.Trim(strings.TrimSpace(t), "\"`[]")
		if valid[t] {
			q.TargetTables = append(q.TargetTables, t)
		}
	}

	lower := strings.ToLower(sql)
	for _, p := range []string{"count(", "sum(", "avg(", "max(", "min(", "group by"} {
		if strings.Contains(lower, p) {
			q.IsAggregation = true
			break
		}
	}
	q.IsJoin = strings.Contains(lower, " join ")
	return q, nil
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return strings.TrimRight(f[0], ".,;")
	}
	return ""
}

// cleanSQL strips fences and trailing semicolons from model SQL.
func cleanSQL(s string) string {
	s = llm.StripFences(s)
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}
