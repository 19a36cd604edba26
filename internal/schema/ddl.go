package schema

import (
	"fmt"
	"strings"
)

// Dialect supplies the engine-specific pieces of DDL generation.
type Dialect interface {
	// QuoteIdent quotes a table or column identifier.
	QuoteIdent(name string) string

	// ColumnType returns the SQL type for a non-surrogate column.
	ColumnType(c ColumnDefinition) string

	// SurrogateKey returns the full column definition of a synthesized,
	// auto-incrementing primary key named name.
	SurrogateKey(name string) string
}

// CreateTableSQL returns the CREATE TABLE statement for t.
func (t *TableSchema) CreateTableSQL(d Dialect) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Surrogate {
			parts = append(parts, d.SurrogateKey(c.Name))
			continue
		}
		col := d.QuoteIdent(c.Name) + " " + d.ColumnType(c)
		if c.Identity {
			col += " NOT NULL PRIMARY KEY"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.QuoteIdent(t.Name), strings.Join(parts, ",\n  "))
}

// DropTableSQL returns the statement that removes t if it exists.
func (t *TableSchema) DropTableSQL(d Dialect) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(t.Name)
}

// IndexSQL returns one CREATE INDEX statement per indexed column, named
// idx_<table>_<column>.
func (t *TableSchema) IndexSQL(d Dialect) []string {
	var out []string
	for _, c := range t.Columns {
		if !c.Indexed {
			continue
		}
		out = append(out, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			d.QuoteIdent("idx_"+t.Name+"_"+c.Name),
			d.QuoteIdent(t.Name),
			d.QuoteIdent(c.Name),
		))
	}
	return out
}
