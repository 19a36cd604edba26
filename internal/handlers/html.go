package handlers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// HTML extracts every <table> as table_<n>, heading-delimited sections, and
// falls back to the visible text line by line.
type HTML struct {
	log *zap.Logger
}

func NewHTML(log *zap.Logger) *HTML { return &HTML{log: log} }

func (*HTML) Name() string             { return "html" }
func (*HTML) Extensions() []string     { return []string{".html", ".htm"} }
func (h *HTML) CanHandle(p string) bool { return hasExt(p, h.Extensions()) }

func (h *HTML) Extract(_ context.Context, path string) []RowSet {
	raw, err := os.ReadFile(path)
	if err != nil {
		h.log.Warn("html read failed", zap.String("file", path), zap.Error(err))
		return nil
	}
	text, _ := decodeText(raw)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		h.log.Warn("parse html failed", zap.String("file", path), zap.Error(err))
		return nil
	}
	return extractHTML(fileStem(path), doc)
}

func extractHTML(stem string, doc *goquery.Document) []RowSet {
	var out []RowSet

	doc.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		var grid [][]string
		tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th,td").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, cellText(c))
			})
			if len(cells) > 0 {
				grid = append(grid, cells)
			}
		})
		if len(grid) < 2 {
			return
		}
		n := len(out) + 1
		cols := ColumnNames(grid[0])
		var rows []map[string]any
		for _, r := range grid[1:] {
			row := make(map[string]any, len(cols))
			for i, c := range cols {
				if i < len(r) && r[i] != "" {
					row[c] = r[i]
				} else {
					row[c] = nil
				}
			}
			rows = append(rows, row)
		}
		out = append(out, RowSet{
			TableName: fmt.Sprintf("table_%d", n),
			Columns:   cols,
			Rows:      rows,
			Metadata:  map[string]any{"extraction_method": "html_table", "table_index": n},
		})
	})

	if rs, ok := htmlSections(doc); ok {
		out = append(out, rs)
	}
	if len(out) > 0 {
		return out
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	return extractText(stem, body.Text(), false)
}

func htmlSections(doc *goquery.Document) (RowSet, bool) {
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
			"content": strings.Join(body, "\n"),
		})
	}

	doc.Find("h1,h2,h3,h4,h5,h6,p,li").Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		txt := cellText(s)
		if len(name) == 2 && name[0] == 'h' {
			flush()
			level, title, body = int(name[1]-'0'), txt, nil
			return
		}
		if txt != "" {
			body = append(body, txt)
		}
	})
	flush()

	if len(rows) == 0 {
		return RowSet{}, false
	}
	return RowSet{
		TableName: "sections",
		Columns:   []string{"level", "title", "content"},
		Rows:      rows,
		Metadata:  map[string]any{"extraction_method": "html_sections", "section_count": len(rows)},
	}, true
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
