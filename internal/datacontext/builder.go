// Package datacontext builds a compact snapshot of the loaded tables for use
// in SQL generation and response prompts.
package datacontext

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"askdata/internal/storage"
)

// Defaults for Options.
const (
	DefaultMaxDistinct = 50
	DefaultSampleRows  = 10
	DefaultMaxChars    = 50000

	// sampleValues is the number of example values kept for high-cardinality
	// columns.
	sampleValues = 10
	maxPrimary   = 10
)

// Options tunes Build and Export.
type Options struct {
	MaxDistinct int
	SampleRows  int
	MaxChars    int
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxDistinct <= 0 {
		o.MaxDistinct = DefaultMaxDistinct
	}
	if o.SampleRows <= 0 {
		o.SampleRows = DefaultSampleRows
	}
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Column is the profile of one column.
type Column struct {
	Name          string
	Type          string
	NullCount     int64
	DistinctCount int64

	// DistinctValues holds every non-null value, sorted, when DistinctCount
	// is within the cap. Otherwise SampleValues holds a few examples.
	DistinctValues []any
	SampleValues   []any
}

// Table is the profile of one table.
type Table struct {
	Name           string
	RowCount       int64
	Columns        []Column
	SampleRows     []map[string]any
	Purpose        string
	PrimaryColumns []string
}

// Column looks a column profile up by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Context is a point-in-time snapshot of every non-empty table.
type Context struct {
	Tables    []Table
	TotalRows int64
	Summary   string
	Engine    string
	BuiltAt   time.Time
}

// Table returns the profile of a table.
func (c *Context) Table(name string) (*Table, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i], true
		}
	}
	return nil, false
}

// Build profiles every table in the store. A table or column that fails to
// profile is logged and skipped; only a failure to list tables is returned.
func Build(ctx context.Context, st storage.Store, opts Options) (*Context, error) {
	opts = opts.withDefaults()
	log := opts.Logger
	start := time.Now()

	infos, err := st.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("datacontext: list tables: %w", err)
	}

	out := &Context{Engine: st.Dialect().Name(), BuiltAt: time.Now()}
	for _, info := range infos {
		if info.RowCount == 0 {
			continue
		}
		t, err := profileTable(ctx, st, info, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("datacontext: %w", ctx.Err())
			}
			log.Warn("table profile failed", zap.String("table", info.Name), zap.Error(err))
			continue
		}
		out.Tables = append(out.Tables, t)
		out.TotalRows += t.RowCount
	}
	out.Summary = summarize(out)

	log.Info("data context built",
		zap.String("stage", "datacontext"),
		zap.Int("tables", len(out.Tables)),
		zap.Int64("rows", out.TotalRows),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func profileTable(ctx context.Context, st storage.Store, info storage.TableInfo, opts Options) (Table, error) {
	d := st.Dialect()
	table := d.QuoteIdent(info.Name)
	t := Table{Name: info.Name, RowCount: info.RowCount}

	res, err := st.Query(ctx, d.Limit("SELECT * FROM "+table, opts.SampleRows))
	if err != nil {
		return Table{}, err
	}
	t.SampleRows = res.Rows

	for _, ci := range info.Columns {
		col, err := profileColumn(ctx, st, table, ci, opts)
		if err != nil {
			opts.Logger.Debug("column profile failed",
				zap.String("table", info.Name),
				zap.String("column", ci.Name),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return Table{}, ctx.Err()
			}
		}
		t.Columns = append(t.Columns, col)
	}
	t.Purpose = inferPurpose(info.Name, t.Columns)
	t.PrimaryColumns = primaryColumns(t)
	return t, nil
}

func profileColumn(ctx context.Context, st storage.Store, table string, ci storage.ColumnInfo, opts Options) (Column, error) {
	d := st.Dialect()
	col := d.QuoteIdent(ci.Name)
	c := Column{Name: ci.Name, Type: ci.Type}

	var err error
	if c.NullCount, err = scalar(ctx, st, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s IS NULL", table, col)); err != nil {
		return c, err
	}
	if c.DistinctCount, err = scalar(ctx, st, fmt.Sprintf("SELECT COUNT(DISTINCT %s) AS n FROM %s", col, table)); err != nil {
		return c, err
	}
	if c.DistinctCount == 0 {
		return c, nil
	}

	q := fmt.Sprintf("SELECT DISTINCT %s AS v FROM %s WHERE %s IS NOT NULL ORDER BY %s", col, table, col, col)
	n := sampleValues
	if c.DistinctCount <= int64(opts.MaxDistinct) {
		n = opts.MaxDistinct
	}
	res, err := st.Query(ctx, d.Limit(q, n))
	if err != nil {
		return c, err
	}
	vals := make([]any, 0, len(res.Rows))
	for _, r := range res.Rows {
		vals = append(vals, r["v"])
	}
	if c.DistinctCount <= int64(opts.MaxDistinct) {
		c.DistinctValues = vals
	} else {
		c.SampleValues = vals
	}
	return c, nil
}

func scalar(ctx context.Context, st storage.Store, q string) (int64, error) {
	res, err := st.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	return ToInt64(res.Rows[0]["n"]), nil
}

// ToInt64 reads a count returned by any backend.
func ToInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		var n int64
		_, _ = fmt.Sscan(t, &n)
		return n
	default:
		return 0
	}
}

// inferPurpose derives a one-line description from table and column names.
func inferPurpose(table string, cols []Column) string {
	name := strings.ToLower(table)
	names := map[string]bool{}
	for _, c := range cols {
		names[strings.ToLower(c.Name)] = true
	}

	switch {
	case strings.Contains(name, "taxonom"):
		return "Classification and categorization scheme"
	case strings.Contains(name, "domain"):
		return "Domain classification reference"
	case strings.Contains(name, "change") || strings.Contains(name, "log"):
		return "Change history and updates log"
	case strings.Contains(name, "content"):
		return "Text content and descriptions"
	case strings.Contains(name, "paragraph") || strings.Contains(name, "section"):
		return "Document text extracted by paragraph or section"
	case strings.Contains(name, "stat") || strings.Contains(name, "summary"):
		return "Summary statistics"
	case names["category"] || names["subcategory"] || names["risk_category"]:
		return "Categorized records"
	case names["entity"] && names["intent"]:
		return "Records classified by entity and intent"
	case len(cols) <= 2:
		return "Simple reference list"
	case len(cols) > 10:
		return "Detailed records with multiple attributes"
	}
	return "General data table"
}

var primaryTerms = []string{"id", "title", "name", "category", "domain", "entity", "type", "status"}

// primaryColumns picks the columns worth showing in prompts: mostly-filled
// columns whose names look like identifiers or labels, or that have few
// distinct values.
func primaryColumns(t Table) []string {
	var out []string
	for _, c := range t.Columns {
		if float64(c.NullCount) > float64(t.RowCount)*0.8 {
			continue
		}
		lower := strings.ToLower(c.Name)
		match := false
		for _, term := range primaryTerms {
			if strings.Contains(lower, term) {
				match = true
				break
			}
		}
		if match || (c.DistinctCount > 0 && c.DistinctCount < 100) {
			out = append(out, c.Name)
		}
		if len(out) == maxPrimary {
			break
		}
	}
	return out
}

func summarize(c *Context) string {
	main := make([]Table, 0, len(c.Tables))
	for _, t := range c.Tables {
		if t.RowCount > 100 {
			main = append(main, t)
		}
	}
	sort.SliceStable(main, func(i, j int) bool { return main[i].RowCount > main[j].RowCount })
	if len(main) > 5 {
		main = main[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Database contains %d tables with %s total rows.", len(c.Tables), groupDigits(c.TotalRows))
	if len(main) > 0 {
		b.WriteString("\n\nMain tables:")
		for _, t := range main {
			fmt.Fprintf(&b, "\n- %s: %s rows - %s", t.Name, groupDigits(t.RowCount), t.Purpose)
		}
	}
	return b.String()
}

// groupDigits renders 1612 as "1,612".
func groupDigits(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
