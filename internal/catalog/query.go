package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"askdata/internal/formatter"
	"askdata/internal/metrics"
	"askdata/internal/querygen"
	"askdata/internal/semantic"
	"askdata/internal/storage"
)

// QueryOptions tunes one question.
type QueryOptions struct {
	// Mode overrides the catalog default when set.
	Mode formatter.Mode
	// Debug appends the SQL, intent and timing to the text.
	Debug bool
}

// Answer is everything produced for one question. Text is always set, even
// when an error is returned alongside it.
type Answer struct {
	QueryID  string
	Question string
	Text     string
	SQL      string
	Columns  []string
	Rows     []map[string]any
	Query    querygen.SQLQuery
	Response *formatter.Response
	Duration time.Duration
}

// Query answers a natural-language question against the loaded tables.
func (c *Catalog) Query(ctx context.Context, question string, opts QueryOptions) (*Answer, error) {
	start := time.Now()
	ans := &Answer{QueryID: uuid.NewString(), Question: question}
	log := c.log.With(zap.String("query_id", ans.QueryID))

	intent := string(formatter.Classify(question))
	path := "none"
	status := "error"
	defer func() {
		ans.Duration = time.Since(start)
		c.metrics.IncCounter(metrics.QueriesTotal, 1, metrics.Labels{"intent": intent, "path": path, "status": status})
		c.metrics.ObserveHistogram(metrics.QueryDuration, ans.Duration.Seconds(), metrics.Labels{"intent": intent})
		log.Info("query answered",
			zap.String("stage", "query"),
			zap.String("intent", intent),
			zap.String("path", path),
			zap.String("status", status),
			zap.Duration("duration", ans.Duration),
		)
	}()

	if err := c.EnsureInitialized(ctx); err != nil {
		ans.Text = "The service is not ready: " + err.Error()
		return ans, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	tables, err := c.store.ListTables(ctx)
	if err != nil {
		ans.Text = "Error reading the database: " + err.Error()
		return ans, fmt.Errorf("catalog: list tables: %w", err)
	}
	if len(tables) == 0 {
		ans.Text = "No tables are loaded yet. Load a data file first."
		return ans, ErrNoTables
	}

	schemas := c.candidateSchemas(ctx, question, tables)
	exported := ""
	if c.dataCtx != nil {
		exported = c.dataCtx.Export(c.ctxOpts.MaxChars)
	}
	q, err := c.gen.Generate(ctx, querygen.Request{Question: question, Schemas: schemas, DataContext: exported})
	if err != nil {
		ans.Text = "Could not build a query: " + err.Error()
		return ans, err
	}
	ans.Query, ans.SQL = q, q.SQL
	path = "llm"
	if q.Fallback {
		path = "fallback"
		c.metrics.IncCounter(metrics.FallbacksTotal, 1, metrics.Labels{"reason": q.FallbackReason})
	}
	log.Debug("sql ready", zap.String("sql", q.SQL), zap.Bool("fallback", q.Fallback))

	res, err := c.store.Query(ctx, q.SQL)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			ans.Text = "The query was cancelled."
			return ans, err
		}
		ans.Text = fmt.Sprintf("Error executing query: %v\n\nSQL: %s", err, q.SQL)
		return ans, &ExecutionError{SQL: q.SQL, Err: err}
	}
	ans.Columns, ans.Rows = res.Columns, res.Rows

	resp := c.format.Format(ctx, formatter.Input{
		Question:   question,
		Rows:       res.Rows,
		Columns:    res.Columns,
		SQL:        q.SQL,
		Tables:     q.TargetTables,
		Duration:   time.Since(start),
		Confidence: q.Confidence,
		Context:    c.dataCtx,
		Mode:       opts.Mode,
	})
	ans.Response = resp
	intent = string(resp.Metadata.Intent)

	text := resp.Render(opts.Debug)
	if q.Fallback {
		text += "\n\n_" + fallbackNote(q) + "_"
	}
	ans.Text = text

	status = "ok"
	if len(res.Rows) == 0 {
		status = "empty"
	}
	return ans, nil
}

func fallbackNote(q querygen.SQLQuery) string {
	switch q.FallbackReason {
	case "unsafe":
		return "The generated query was rejected as unsafe; answered with: " + q.Explanation
	case "malformed":
		return "The model reply could not be used; answered with: " + q.Explanation
	default:
		return "Answered without the language model: " + q.Explanation
	}
}

// schemaExamples caps the example values shown per column.
const schemaExamples = 3

// candidateSchemas picks the tables shown to the generator: the ranked
// matches for question, or every table largest first when nothing matches.
func (c *Catalog) candidateSchemas(ctx context.Context, question string, tables []storage.TableInfo) []querygen.TableSchema {
	byName := make(map[string]storage.TableInfo, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	var names []string
	for _, name := range semantic.TableNames(c.registry.FindTablesForQuery(ctx, question)) {
		if _, ok := byName[name]; ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		sorted := append([]storage.TableInfo(nil), tables...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RowCount > sorted[j].RowCount })
		for _, t := range sorted {
			names = append(names, t.Name)
		}
	}
	if len(names) > c.maxTables {
		names = names[:c.maxTables]
	}

	out := make([]querygen.TableSchema, 0, len(names))
	for _, name := range names {
		info := byName[name]
		ts := querygen.TableSchema{Name: name, RowCount: info.RowCount}
		if sem, ok := c.registry.Get(name); ok {
			ts.Description = sem.Description
			ts.SemanticType = sem.SemanticType
		}
		for _, col := range info.Columns {
			examples := c.mapper.Column(name, col.Name).SampleValues
			if len(examples) > schemaExamples {
				examples = examples[:schemaExamples]
			}
			ts.Columns = append(ts.Columns, querygen.Column{
				Name:     col.Name,
				Type:     strings.ToUpper(col.Type),
				Examples: examples,
			})
		}
		out = append(out, ts)
	}
	return out
}
