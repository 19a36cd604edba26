package querygen

import (
	"fmt"
	"strings"

	"askdata/internal/schema"
)

// SchemaContext renders the candidate tables for the prompt.
func (g *Generator) SchemaContext(schemas []TableSchema) string {
	parts := make([]string, 0, len(schemas))
	for _, s := range schemas {
		var b strings.Builder
		fmt.Fprintf(&b, "Table: %s\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", s.Description)
		}
		if s.SemanticType != "" {
			fmt.Fprintf(&b, "Type: %s data\n", s.SemanticType)
		}
		fmt.Fprintf(&b, "Rows: %d\n", s.RowCount)
		b.WriteString("Columns:\n")
		for _, c := range s.Columns {
			fmt.Fprintf(&b, "  - %s (%s)", c.Name, c.Type)
			examples := c.Examples
			if len(examples) == 0 && g.mapper != nil {
				examples = g.mapper.Column(s.Name, c.Name).SampleValues
			}
			if len(examples) > 3 {
				examples = examples[:3]
			}
			if len(examples) > 0 {
				fmt.Fprintf(&b, " [examples: %s]", strings.Join(examples, ", "))
			}
			b.WriteString("\n")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n")
}

func (g *Generator) columnHints(question string) string {
	if g.mapper == nil {
		return ""
	}
	hints := g.mapper.Hints(question)
	if len(hints) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("COLUMN HINTS (question terms and the columns that may hold them):\n")
	for _, h := range hints {
		refs := make([]string, 0, len(h.Refs))
		for _, r := range h.Refs {
			refs = append(refs, r.String())
		}
		if len(refs) > 6 {
			refs = refs[:6]
		}
		fmt.Fprintf(&b, "- %q: %s\n", h.Term, strings.Join(refs, ", "))
	}
	return b.String()
}

// Prompt assembles the full generation prompt for req.
func (g *Generator) Prompt(req Request) string {
	engine := "SQL"
	quoted := `"column name"`
	textType := "VARCHAR"
	if g.dialect != nil {
		engine = g.dialect.Name()
		quoted = g.dialect.QuoteIdent("column name")
		textType = g.dialect.ColumnType(schema.ColumnDefinition{Type: schema.TypeLongText})
	}
	joins := "You may use JOINs between tables if needed."
	if !g.allowJoins {
		joins = "Do NOT use JOINs."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an intelligent SQL query generator for a %s database. Convert the natural language question into one SQL query.\n", engine)
	if req.DataContext != "" {
		b.WriteString("\n")
		b.WriteString(req.DataContext)
		b.WriteString("\n")
	}
	b.WriteString(`
IMPORTANT CONTEXT:
- The user does not know internal table names; interpret their intent semantically
- When the user names a subject (for example "risks" or "products"), look for tables whose names, descriptions or columns mention it
- When asked about "domains" or "categories", look for taxonomy or classification columns
- When asked about counts or statistics, compute them from the raw rows

AVAILABLE SCHEMA:
`)
	b.WriteString(g.SchemaContext(req.Schemas))
	if hints := g.columnHints(req.Question); hints != "" {
		b.WriteString("\n")
		b.WriteString(hints)
	}
	fmt.Fprintf(&b, `
QUERY INTERPRETATION RULES:
1. Understand user intent, not just literal words
2. "How many X" means COUNT(*) over the table holding X
3. "List domains" means SELECT DISTINCT domain FROM the table with a domain column, excluding NULLs
4. "Count by X" means SELECT X, COUNT(*) ... GROUP BY X
5. Match semantic meaning, not exact table or column names

SQL GENERATION RULES:
1. Return ONLY valid SQL that can be executed
2. ONLY use SELECT statements (no INSERT, UPDATE, DELETE, DDL)
3. %s
4. For text searches, use LIKE with %% wildcards
5. Quote identifiers that contain special characters like this: %s
6. String literals MUST use single quotes: WHERE column = 'value'
7. When comparing mismatched types, cast explicitly, e.g. CAST(column AS %s) LIKE '%%7%%'
8. Include ORDER BY when appropriate
9. Limit results to 100 rows unless specifically asked for more
10. Use the exact values shown in the data context when filtering
11. When asked to "show" records, select several informative columns, not just one

QUESTION: "%s"

Return your response in this format:
SQL: <your sql query here>
EXPLANATION: <brief explanation of what the query does>
TABLES: <comma-separated list of tables used>
CONFIDENCE: <0.0-1.0 confidence score>`, joins, quoted, textType, Preprocess(req.Question))
	return b.String()
}
