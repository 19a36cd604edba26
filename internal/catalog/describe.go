package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"askdata/internal/datacontext"
	"askdata/internal/storage"
)

// TableStats summarizes one table.
type TableStats struct {
	Name         string
	RowCount     int64
	Columns      []string
	SemanticType string
	// Source is the file the table was loaded from; empty for tables that
	// were already in the store.
	Source string
}

// Stats summarizes the whole catalog.
type Stats struct {
	Engine    string
	TotalRows int64
	Tables    []TableStats
}

// Statistics reports every table in the store with its row count.
func (c *Catalog) Statistics(ctx context.Context) (Stats, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return Stats{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	tables, err := c.store.ListTables(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("catalog: list tables: %w", err)
	}
	st := Stats{Engine: c.store.Dialect().Name()}
	for _, t := range tables {
		ts := TableStats{Name: t.Name, RowCount: t.RowCount, Source: c.source(t.Name)}
		for _, col := range t.Columns {
			ts.Columns = append(ts.Columns, col.Name)
		}
		if sem, ok := c.registry.Get(t.Name); ok {
			ts.SemanticType = sem.SemanticType
		}
		st.TotalRows += t.RowCount
		st.Tables = append(st.Tables, ts)
	}
	sort.Slice(st.Tables, func(i, j int) bool { return st.Tables[i].Name < st.Tables[j].Name })
	return st, nil
}

// String renders the statistics as a short report.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Database Statistics** (%s)\n\n", s.Engine)
	fmt.Fprintf(&b, "Tables: %d\nTotal rows: %d\n", len(s.Tables), s.TotalRows)
	for _, t := range s.Tables {
		fmt.Fprintf(&b, "\n- %s: %d rows, %d columns", t.Name, t.RowCount, len(t.Columns))
		if t.SemanticType != "" {
			fmt.Fprintf(&b, " (%s)", t.SemanticType)
		}
	}
	return b.String()
}

// ListTables returns every table in the store.
func (c *Catalog) ListTables(ctx context.Context) ([]storage.TableInfo, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	tables, err := c.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list tables: %w", err)
	}
	return tables, nil
}

// TableDescription is everything known about one table.
type TableDescription struct {
	Name         string
	RowCount     int64
	Columns      []datacontext.Column
	SemanticType string
	Description  string
	Purpose      string
	Keywords     []string
	SampleRows   []map[string]any
	Source       string
}

// DescribeTable returns the profile of one table, or ErrUnknownTable.
func (c *Catalog) DescribeTable(ctx context.Context, name string) (*TableDescription, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	tables, err := c.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list tables: %w", err)
	}
	info, ok := storage.FindTable(tables, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}

	d := &TableDescription{Name: info.Name, RowCount: info.RowCount, Source: c.source(info.Name)}
	if t, ok := c.dataCtx.Table(info.Name); ok {
		d.Columns = t.Columns
		d.Purpose = t.Purpose
		d.SampleRows = t.SampleRows
	} else {
		for _, col := range info.Columns {
			d.Columns = append(d.Columns, datacontext.Column{Name: col.Name, Type: col.Type})
		}
	}
	if sem, ok := c.registry.Get(info.Name); ok {
		d.SemanticType = sem.SemanticType
		d.Description = sem.Description
		d.Keywords = sem.SortedKeywords()
	}
	return d, nil
}

// String renders the description as a short report.
func (d *TableDescription) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%d rows)\n", d.Name, d.RowCount)
	if d.Description != "" {
		fmt.Fprintf(&b, "%s\n", d.Description)
	}
	if d.Purpose != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", d.Purpose)
	}
	if d.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", d.Source)
	}
	b.WriteString("\nColumns:\n")
	for _, col := range d.Columns {
		fmt.Fprintf(&b, "- %s %s", col.Name, col.Type)
		if len(col.DistinctValues) > 0 {
			vals := make([]string, 0, len(col.DistinctValues))
			for _, v := range col.DistinctValues {
				vals = append(vals, datacontext.FormatValue(v))
			}
			fmt.Fprintf(&b, ": %s", strings.Join(vals, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// source is the file that owns table, without the row set suffix.
func (c *Catalog) source(table string) string {
	owner := c.tableOwner[table]
	if i := strings.Index(owner, "#"); i >= 0 {
		return owner[:i]
	}
	return owner
}
