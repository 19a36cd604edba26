package handlers

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	structuredIDLine = regexp.MustCompile(`^([A-Z]{2,}-\d+):\s*(.+)$`)
	keyValueLine     = regexp.MustCompile(`^-?\s*(\w+):\s*(.+)$`)
	headingLine      = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	tableSeparator   = regexp.MustCompile(`^\|?\s*:?-{1,}:?\s*(\|\s*:?-{1,}:?\s*)*\|?$`)
)

// Text extracts plain text and markdown. Markdown pipe tables, structured
// "KEY: value" items, and heading sections each become their own row set;
// a file yielding none of them is stored line by line.
type Text struct {
	log *zap.Logger
}

func NewText(log *zap.Logger) *Text { return &Text{log: log} }

func (*Text) Name() string             { return "text" }
func (*Text) Extensions() []string     { return []string{".txt", ".md", ".markdown"} }
func (h *Text) CanHandle(p string) bool { return hasExt(p, h.Extensions()) }

func (h *Text) Extract(_ context.Context, path string) []RowSet {
	raw, err := os.ReadFile(path)
	if err != nil {
		h.log.Warn("text read failed", zap.String("file", path), zap.Error(err))
		return nil
	}
	content, _ := decodeText(raw)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if strings.TrimSpace(content) == "" {
		h.log.Warn("text file is empty", zap.String("file", path))
		return nil
	}
	markdown := hasExt(path, []string{".md", ".markdown"})
	return extractText(fileStem(path), content, markdown)
}

func extractText(stem, content string, markdown bool) []RowSet {
	lines := strings.Split(content, "\n")

	var out []RowSet
	if markdown {
		out = append(out, markdownTables(lines)...)
	}
	if rs, ok := structuredItems(lines); ok {
		out = append(out, rs)
	}
	if markdown {
		if rs, ok := markdownSections(lines); ok {
			out = append(out, rs)
		}
	}
	if len(out) > 0 {
		return out
	}

	var rows []map[string]any
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"line_number": int64(i + 1),
			"content":     line,
			"length":      int64(len([]rune(line))),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return []RowSet{{
		TableName: SanitizeTableName(stem + "_lines"),
		Columns:   []string{"line_number", "content", "length"},
		Rows:      rows,
		Metadata:  map[string]any{"extraction_method": "line_by_line"},
	}}
}

func splitPipeRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func markdownTables(lines []string) []RowSet {
	var out []RowSet
	for i := 0; i+1 < len(lines); i++ {
		head := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(head, "|") || !tableSeparator.MatchString(strings.TrimSpace(lines[i+1])) {
			continue
		}
		cols := ColumnNames(splitPipeRow(head))
		var rows []map[string]any
		j := i + 2
		for ; j < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[j]), "|"); j++ {
			cells := splitPipeRow(lines[j])
			if len(cells) != len(cols) {
				continue
			}
			row := make(map[string]any, len(cols))
			for k, c := range cols {
				if cells[k] == "" {
					row[c] = nil
				} else {
					row[c] = cells[k]
				}
			}
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			n := len(out) + 1
			out = append(out, RowSet{
				TableName: fmt.Sprintf("table_%d", n),
				Columns:   cols,
				Rows:      rows,
				Metadata:  map[string]any{"extraction_method": "markdown_table", "table_index": n},
			})
		}
		i = j - 1
	}
	return out
}

// structuredItems collects "ABC-12: text", "key: value" and "- key: value"
// lines in document order.
func structuredItems(lines []string) (RowSet, bool) {
	var rows []map[string]any
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := structuredIDLine.FindStringSubmatch(line); m != nil {
			rows = append(rows, map[string]any{"key": m[1], "value": strings.TrimSpace(m[2]), "type": "structured_id"})
			continue
		}
		m := keyValueLine.FindStringSubmatch(line)
		if m == nil || strings.HasPrefix(m[2], "//") {
			continue
		}
		key := CleanColumnName(m[1])
		if key == "" {
			key = "unnamed"
		}
		rows = append(rows, map[string]any{"key": key, "value": strings.TrimSpace(m[2]), "type": "key_value"})
	}
	if len(rows) == 0 {
		return RowSet{}, false
	}
	return RowSet{
		TableName: "structured_data",
		Columns:   []string{"key", "value", "type"},
		Rows:      rows,
		Metadata:  map[string]any{"extraction_method": "structured_patterns", "item_count": len(rows)},
	}, true
}

func markdownSections(lines []string) (RowSet, bool) {
	var rows []map[string]any
	var level int
	var title string
	var body []string
	flush := func() {
		if title == "" {
			return
		}
		rows = append(rows, map[string]any{
			"level":   int64(level),
			"title":   title,
			"content": strings.TrimSpace(strings.Join(body, "\n")),
		})
	}
	for _, line := range lines {
		if m := headingLine.FindStringSubmatch(line); m != nil {
			flush()
			level, title, body = len(m[1]), strings.TrimSpace(m[2]), nil
			continue
		}
		body = append(body, line)
	}
	flush()
	if len(rows) == 0 {
		return RowSet{}, false
	}
	return RowSet{
		TableName: "sections",
		Columns:   []string{"level", "title", "content"},
		Rows:      rows,
		Metadata:  map[string]any{"extraction_method": "section_extraction", "section_count": len(rows)},
	}, true
}
