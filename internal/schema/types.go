// Package schema infers relational table definitions from schema-less rows.
//
// Inference is pure: it looks only at the sampled values it is given and never
// touches a database. Storage backends turn a TableSchema into DDL through the
// Dialect interface.
package schema

import "strings"

// ColumnType is the inferred storage type of a column.
type ColumnType int

const (
	TypeShortText ColumnType = iota
	TypeLongText
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeDate
	TypeTimestamp
)

// ShortTextMax is the longest sampled value a short_text column may hold.
const ShortTextMax = 255

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	case TypeLongText:
		return "long_text"
	default:
		return "short_text"
	}
}

func (t ColumnType) isTemporal() bool { return t == TypeDate || t == TypeTimestamp }

// IsText reports whether values of this type are stored as strings.
func (t ColumnType) IsText() bool {
	return t == TypeShortText || t == TypeLongText
}

// IsNumeric reports whether values of this type are numbers.
func (t ColumnType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// ColumnDefinition describes one inferred column.
type ColumnDefinition struct {
	Name string
	Type ColumnType

	// Wide is set for integer columns whose values do not fit in 32 bits.
	Wide bool

	// MaxLength is the longest sampled string form, used for text sizing.
	MaxLength int

	// DayFirst is set for date columns whose nn/nn/yyyy or nn-nn-yyyy values
	// put the day first, as seen from a leading field above 12.
	DayFirst bool

	// Identity marks the single column that uniquely identifies a row.
	Identity bool

	// Surrogate marks a synthesized, sequence-backed identity column. Surrogate
	// columns are never supplied on insert.
	Surrogate bool

	Indexed  bool
	Nullable bool
}

// TableSchema is the unit of table creation. It is built once per load and
// replaced wholesale on reload.
type TableSchema struct {
	Name    string
	Columns []ColumnDefinition
}

// Identity returns the identity column, if any.
func (t *TableSchema) Identity() (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.Identity {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// Column looks a column up by case-insensitive name.
func (t *TableSchema) Column(name string) (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// InsertColumns returns the column names supplied on insert, in order.
func (t *TableSchema) InsertColumns() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Surrogate {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// IndexedColumns returns the names of columns that merit an index.
func (t *TableSchema) IndexedColumns() []string {
	var out []string
	for _, c := range t.Columns {
		if c.Indexed {
			out = append(out, c.Name)
		}
	}
	return out
}
