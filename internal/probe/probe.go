// Package probe samples a data file and reports what loading it would do:
// the tables it yields, their inferred schema and DDL, cells that would
// degrade, and per-column uniqueness.
//
// Probing never writes to a store.
package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"askdata/internal/handlers"
	"askdata/internal/schema"
)

// distinctCapPerColumn bounds the distinct values tracked per column.
const distinctCapPerColumn = 10000

// Options tunes Probe.
type Options struct {
	// SampleRows caps the rows examined per table. Zero means every row.
	SampleRows int
}

// Result describes one table a file would produce.
type Result struct {
	Table   string
	Rows    int
	Sampled int
	Schema  *schema.TableSchema
	DDL     string
	Indexes []string

	// CellFailures counts sampled cells that would load as zero values.
	CellFailures int
	Uniqueness   Uniqueness
}

// Uniqueness holds bounded distinct counts over the sampled rows.
//
// Per-column totals count only rows where the column had a value, so a mostly
// empty column is not reported as highly repetitive.
type Uniqueness struct {
	SampledRows int
	Total       map[string]int
	Distinct    map[string]int
	Capped      map[string]bool
	Order       []string
}

// Probe extracts path with reg and infers each row set's schema for d.
func Probe(ctx context.Context, reg *handlers.Registry, path string, d schema.Dialect, opts Options) ([]Result, error) {
	sets, err := reg.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(sets))
	for _, rs := range sets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rs.Normalize()
		sample := rs.Rows
		if opts.SampleRows > 0 && len(sample) > opts.SampleRows {
			sample = sample[:opts.SampleRows]
		}

		ts := schema.Infer(rs.TableName, rs.Columns, sample, schema.Options{})
		tr := schema.Transform(ts, sample)
		out = append(out, Result{
			Table:        rs.TableName,
			Rows:         len(rs.Rows),
			Sampled:      len(sample),
			Schema:       ts,
			DDL:          ts.CreateTableSQL(d),
			Indexes:      ts.IndexSQL(d),
			CellFailures: tr.Failures,
			Uniqueness:   computeUniqueness(sample, rs.Columns),
		})
	}
	return out, nil
}

func computeUniqueness(rows []map[string]any, columns []string) Uniqueness {
	u := Uniqueness{
		SampledRows: len(rows),
		Total:       make(map[string]int, len(columns)),
		Distinct:    make(map[string]int, len(columns)),
		Capped:      make(map[string]bool, len(columns)),
		Order:       append([]string(nil), columns...),
	}
	sets := make(map[string]map[string]struct{}, len(columns))
	for _, c := range columns {
		sets[c] = map[string]struct{}{}
	}

	for _, r := range rows {
		for _, col := range columns {
			v := stringify(r[col])
			if v == "" {
				continue
			}
			u.Total[col]++
			if u.Capped[col] {
				continue
			}
			sets[col][v] = struct{}{}
			if len(sets[col]) >= distinctCapPerColumn {
				u.Capped[col] = true
				sets[col] = nil
			}
		}
	}
	for _, col := range columns {
		if u.Capped[col] {
			u.Distinct[col] = distinctCapPerColumn
			continue
		}
		u.Distinct[col] = len(sets[col])
	}
	return u
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Report renders the uniqueness table, least unique columns first. Columns
// with no values are omitted.
func (u Uniqueness) Report() string {
	if u.SampledRows <= 0 {
		return "uniqueness: no rows sampled"
	}

	type row struct {
		col    string
		dist   int
		den    int
		ratio  float64
		capped bool
	}
	rows := make([]row, 0, len(u.Order))
	for _, col := range u.Order {
		den := u.Total[col]
		if den <= 0 {
			continue
		}
		d := u.Distinct[col]
		rows = append(rows, row{col: col, dist: d, den: den, ratio: float64(d) / float64(den), capped: u.Capped[col]})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ratio == rows[j].ratio {
			return rows[i].col < rows[j].col
		}
		return rows[i].ratio < rows[j].ratio
	})

	var b strings.Builder
	fmt.Fprintf(&b, "uniqueness report:\tsampled_rows=%d\n", u.SampledRows)
	fmt.Fprintf(&b, "%-15s\t%-7s\t%-7s\tratio\tcapped\n", "col", "unique", "rows")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-15s\t%-7d\t%d\t%.1f%%\t%t\n", r.col, r.dist, r.den, r.ratio*100, r.capped)
	}
	return strings.TrimRight(b.String(), "\n")
}

// String renders the full probe result for one table.
func (r Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- %s: %d rows (%d sampled)", r.Table, r.Rows, r.Sampled)
	if r.CellFailures > 0 {
		fmt.Fprintf(&b, ", %d cells would degrade", r.CellFailures)
	}
	b.WriteString("\n")
	b.WriteString(r.DDL)
	b.WriteString(";\n")
	for _, ix := range r.Indexes {
		b.WriteString(ix)
		b.WriteString(";\n")
	}
	b.WriteString("\n")
	b.WriteString(r.Uniqueness.Report())
	b.WriteString("\n")
	return b.String()
}
