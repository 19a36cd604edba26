package schema

import (
	"strconv"
	"time"
)

// Options tunes Infer.
type Options struct {
	// SampleSize caps the rows used for type inference. Identity uniqueness is
	// always checked over every row. Defaults to DefaultSampleSize.
	SampleSize int
}

// Infer builds a TableSchema for rows whose keys are drawn from columns.
//
// At most one identity column is chosen (the first candidate in column order).
// When none qualifies a surrogate integer identity is prepended under the first
// free name of "id", "row_id", "row_id_1", ...
func Infer(table string, columns []string, rows []map[string]any, opts Options) *TableSchema {
	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	sample := rows
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	ts := &TableSchema{Name: table}
	haveIdentity := false
	taken := make(map[string]bool, len(columns))

	for _, name := range columns {
		taken[name] = true

		vals := make([]any, len(sample))
		for i, r := range sample {
			vals[i] = r[name]
		}
		col := InferColumn(name, vals)

		if !haveIdentity {
			all := make([]any, len(rows))
			for i, r := range rows {
				all[i] = r[name]
			}
			if IsIdentityCandidate(name, all) && coercesUniquely(col, all) {
				col.Identity = true
				col.Nullable = false
				haveIdentity = true
			}
		}
		col.Indexed = ShouldIndex(col)
		ts.Columns = append(ts.Columns, col)
	}

	if !haveIdentity {
		name := "id"
		for i := 0; taken[name]; i++ {
			name = "row_id"
			if i > 0 {
				name += "_" + strconv.Itoa(i)
			}
		}
		surrogate := ColumnDefinition{
			Name:      name,
			Type:      TypeInteger,
			Wide:      true,
			Identity:  true,
			Surrogate: true,
		}
		ts.Columns = append([]ColumnDefinition{surrogate}, ts.Columns...)
	}
	return ts
}

// coercesUniquely reports whether every value converts to c's type and the
// converted keys stay distinct. A straggler that would degrade to a default
// could otherwise collide on the primary key.
func coercesUniquely(c ColumnDefinition, values []any) bool {
	c.Nullable = false
	seen := make(map[any]struct{}, len(values))
	for _, v := range values {
		k, err := Coerce(c, v)
		if err != nil {
			return false
		}
		if t, ok := k.(time.Time); ok {
			k = t.UnixNano()
		}
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
	}
	return true
}
