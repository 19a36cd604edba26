package formatter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"askdata/internal/llm"
)

// modelRendering is the JSON shape every rendering prompt asks for. Each
// intent names one optional extra field.
type modelRendering struct {
	Summary      string `json:"summary"`
	Content      string `json:"content"`
	KeyInsight   string `json:"key_insight"`
	KeyFinding   string `json:"key_finding"`
	Organization string `json:"organization"`
	Patterns     string `json:"patterns"`
}

func (m modelRendering) highlight() string {
	for _, s := range []string{m.KeyInsight, m.KeyFinding, m.Patterns} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

var modeInstructions = map[Mode]string{
	Standard:  "Be clear and informative.",
	Executive: "Be very concise and focus on business impact. Use at most two sentences.",
	Research:  "Include detailed context and short methodology notes on how the result was obtained.",
	Technical: "Include technical details about the data structure and the query.",
}

// extraFields names the optional field each intent asks for.
var extraFields = map[Intent]string{
	Count:     `"key_insight": "Most important takeaway (optional)"`,
	List:      `"organization": "How the list is organized, e.g. sorted by domain number"`,
	Aggregate: `"key_finding": "Most important insight from the data"`,
	Search:    `"patterns": "Any patterns noticed in the results (optional)"`,
}

var intentInstructions = map[Intent][]string{
	Count: {
		"Include the count prominently",
		"Add relevant context if available",
		"Explain what the count represents",
	},
	List: {
		"Create a clean, scannable list",
		"Number categories or domains and keep an existing numeric order such as \"1. Topic\", \"2. Topic\"",
		"Remove null values from the display",
		"Sort logically, alphabetically or by importance",
	},
	Detail: {
		"Present each record's fields as a readable description",
		"Skip empty fields",
	},
	Aggregate: {
		"Show the aggregated data as a table or list",
		"Replace null group values with \"not specified\"",
		"Include a percentage for each group",
		"Sort by count, descending",
		"Add a summary line with the total",
	},
	Search: {
		"Summarize the matching records",
		"For each record show its title or id, category and a short description",
		"Truncate long descriptions to about 100 characters",
		"Mention how many results exist in total when showing a subset",
	},
	Unknown: {
		"Summarize what was found in natural language",
		"Use specific examples from the data",
		"Do not dump raw JSON; synthesize the information",
	},
}

// sampleRows is how many rows each intent shows the model.
var sampleRows = map[Intent]int{Count: 1, List: 20, Detail: 5, Aggregate: 50, Search: 10, Unknown: 3}

func (f *Formatter) renderWithModel(ctx context.Context, r result, intent Intent) (modelRendering, bool) {
	out, err := f.client.Generate(ctx, modelPrompt(r, intent))
	if err != nil {
		f.log.Debug("model rendering failed", zap.String("intent", string(intent)), zap.Error(err))
		return modelRendering{}, false
	}
	ex := llm.ExtractJSON[modelRendering](out)
	if !ex.OK() || strings.TrimSpace(ex.Value.Content) == "" {
		f.log.Debug("model rendering unparseable", zap.String("intent", string(intent)), zap.Error(ex.Err))
		return modelRendering{}, false
	}
	m := ex.Value
	if strings.TrimSpace(m.Summary) == "" {
		m.Summary = fmt.Sprintf("Query returned %d results", len(r.rows))
	}
	return m, true
}

func modelPrompt(r result, intent Intent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Format this %s query result into a clear, professional response.\n\n", intent)
	fmt.Fprintf(&b, "User Query: %q\n", r.question)
	fmt.Fprintf(&b, "Total Rows: %d\n", len(r.rows))
	if v, ok := countValue(r); ok && intent == Count {
		fmt.Fprintf(&b, "Count Result: %s\n", display(v))
		if table, total := sourceTotal(r.tables, r.ctx); total > 0 {
			fmt.Fprintf(&b, "Total %s records: %d\n", table, total)
		}
	}
	if r.mode == Technical && r.sql != "" {
		fmt.Fprintf(&b, "SQL: %s\n", r.sql)
	}
	n := min(sampleRows[intent], len(r.rows))
	fmt.Fprintf(&b, "Rows (first %d):\n%s\n", n, rowsJSON(r, n))

	b.WriteString("\nInstructions:\n")
	fmt.Fprintf(&b, "- %s\n", modeInstructions[r.mode])
	for _, in := range intentInstructions[intent] {
		fmt.Fprintf(&b, "- %s\n", in)
	}
	b.WriteString("- Use markdown formatting\n- Professional tone, no emojis or casual language\n")

	b.WriteString("\nProvide the response in this JSON format:\n{\n")
	b.WriteString(`    "summary": "One-line summary of the finding",` + "\n")
	b.WriteString(`    "content": "Full formatted response with markdown formatting"`)
	if extra, ok := extraFields[intent]; ok {
		b.WriteString(",\n    " + extra)
	}
	b.WriteString("\n}")
	return b.String()
}

// rowsJSON encodes the first n rows with keys in column order.
func rowsJSON(r result, n int) string {
	var b strings.Builder
	b.WriteString("[")
	for i, row := range r.rows[:n] {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n  {")
		for j, c := range r.cols {
			if j > 0 {
				b.WriteString(", ")
			}
			k, _ := json.Marshal(c)
			v, err := json.Marshal(row[c])
			if err != nil {
				v, _ = json.Marshal(display(row[c]))
			}
			b.Write(k)
			b.WriteString(": ")
			b.Write(v)
		}
		b.WriteString("}")
	}
	b.WriteString("\n]")
	return b.String()
}
