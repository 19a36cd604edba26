package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Docx extracts paragraphs, embedded tables, lists and core document
// properties from Office Open XML documents. Each kind becomes a separate
// row set since they have unrelated shapes.
type Docx struct {
	log *zap.Logger
}

func NewDocx(log *zap.Logger) *Docx { return &Docx{log: log} }

func (*Docx) Name() string             { return "docx" }
func (*Docx) Extensions() []string     { return []string{".docx"} }
func (h *Docx) CanHandle(p string) bool { return !IsSkippable(p) && hasExt(p, h.Extensions()) }

func (h *Docx) Extract(_ context.Context, path string) []RowSet {
	out, err := extractDocx(path)
	if err != nil {
		h.log.Warn("docx extraction failed, storing basic info", zap.String("file", path), zap.Error(err))
		return []RowSet{docxBasicInfo(path, err)}
	}
	return out
}

type docxPPr struct {
	Style *struct {
		Val string `xml:"val,attr"`
	} `xml:"pStyle"`
	NumPr *struct{} `xml:"numPr"`
}

type docxPara struct {
	PPr   *docxPPr `xml:"pPr"`
	Inner []byte   `xml:",innerxml"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

// docxBlock is either a paragraph or a table; XMLName tells which.
type docxBlock struct {
	XMLName xml.Name
	PPr     *docxPPr  `xml:"pPr"`
	Inner   []byte    `xml:",innerxml"`
	Rows    []docxRow `xml:"tr"`
}

type docxDocument struct {
	Body struct {
		Blocks []docxBlock `xml:",any"`
	} `xml:"body"`
}

type docxCore struct {
	Title    string `xml:"title"`
	Creator  string `xml:"creator"`
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
}

func extractDocx(path string) ([]RowSet, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var doc docxDocument
	if err := decodeZipXML(&zr.Reader, "word/document.xml", &doc); err != nil {
		return nil, err
	}
	var core docxCore
	hasCore := decodeZipXML(&zr.Reader, "docProps/core.xml", &core) == nil

	var paras []map[string]any
	var tables []RowSet
	var lists listCollector
	n := 0
	for _, b := range doc.Body.Blocks {
		switch b.XMLName.Local {
		case "p":
			n++
			text := strings.TrimSpace(paragraphText(b.Inner))
			style := paraStyle(b.PPr)
			if text == "" {
				continue
			}
			level := headingLevel(style)
			paras = append(paras, map[string]any{
				"paragraph_number": int64(n),
				"content":          text,
				"style":            style,
				"length":           int64(len([]rune(text))),
				"is_heading":       level > 0,
				"heading_level":    int64(level),
			})
			lists.add(text, style, b.PPr != nil && b.PPr.NumPr != nil)
		case "tbl":
			lists.end()
			if rs, ok := docxTable(b.Rows, len(tables)+1); ok {
				tables = append(tables, rs)
			}
		}
	}
	lists.end()

	var out []RowSet
	if len(paras) > 0 {
		out = append(out, RowSet{
			TableName: "paragraphs",
			Columns:   []string{"paragraph_number", "content", "style", "length", "is_heading", "heading_level"},
			Rows:      paras,
			Metadata:  map[string]any{"extraction_method": "docx_paragraphs", "paragraph_count": len(paras)},
		})
	}
	out = append(out, tables...)
	if rs, ok := lists.rowSet(); ok {
		out = append(out, rs)
	}
	out = append(out, docxProperties(path, core, hasCore))
	return out, nil
}

func decodeZipXML(zr *zip.Reader, name string, v any) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		if err := xml.NewDecoder(rc).Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("%s not found", name)
}

// paragraphText concatenates the w:t runs of a paragraph in document order.
func paragraphText(inner []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(inner))
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return b.String()
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}

func paraStyle(p *docxPPr) string {
	if p == nil || p.Style == nil || p.Style.Val == "" {
		return "Normal"
	}
	return p.Style.Val
}

// headingLevel reads the level from style ids like "Heading2" or
// "heading 2"; 0 means not a heading.
func headingLevel(style string) int {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if !strings.HasPrefix(s, "heading") {
		return 0
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(s, "heading")); err == nil && n > 0 {
		return n
	}
	return 1
}

func docxTable(rows []docxRow, idx int) (RowSet, bool) {
	grid := make([][]string, 0, len(rows))
	width := 0
	for _, r := range rows {
		cells := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			parts := make([]string, 0, len(c.Paras))
			for _, p := range c.Paras {
				if t := strings.TrimSpace(paragraphText(p.Inner)); t != "" {
					parts = append(parts, t)
				}
			}
			cells[i] = strings.Join(parts, " ")
		}
		if len(cells) > width {
			width = len(cells)
		}
		grid = append(grid, cells)
	}
	if len(grid) == 0 {
		return RowSet{}, false
	}

	header := true
	for _, c := range grid[0] {
		if c == "" {
			header = false
		}
	}
	var cols []string
	body := grid
	if header {
		cols = ColumnNames(grid[0])
		body = grid[1:]
	}

	var out []map[string]any
	var columns []string
	seen := map[string]bool{}
	for _, r := range body {
		row := map[string]any{}
		names := cols
		if len(r) != len(cols) {
			names = positionalNames(len(r))
		}
		for _, c := range names {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
		for i, c := range names {
			if r[i] == "" {
				row[c] = nil
			} else {
				row[c] = r[i]
			}
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return RowSet{}, false
	}
	return RowSet{
		TableName: fmt.Sprintf("table_%d", idx),
		Columns:   columns,
		Rows:      out,
		Metadata: map[string]any{
			"extraction_method": "docx_table",
			"table_index":       idx,
			"row_count":         len(rows),
			"column_count":      width,
		},
	}, true
}

func positionalNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("column_%d", i+1)
	}
	return out
}

// listCollector groups consecutive list paragraphs, starting a new list when
// the list type changes.
type listCollector struct {
	rows    []map[string]any
	lists   int
	curType string
	items   int
}

func (l *listCollector) add(text, style string, numbered bool) {
	marker := strings.HasPrefix(text, "•") || strings.HasPrefix(text, "-") || strings.HasPrefix(text, "*") ||
		(len(text) > 1 && unicode.IsDigit(rune(text[0])) && strings.Contains(text[:min(4, len(text))], "."))
	if !numbered && !strings.Contains(style, "List") && !marker {
		l.end()
		return
	}
	typ := "bulleted"
	if strings.Contains(style, "Number") || unicode.IsDigit(rune(text[0])) {
		typ = "numbered"
	}
	if typ != l.curType {
		l.end()
		l.curType = typ
		l.lists++
	}
	item := strings.TrimSpace(strings.TrimLeft(text, "•-* "))
	item = strings.TrimSpace(strings.TrimLeft(item, "0123456789."))
	if item == "" {
		return
	}
	l.items++
	l.rows = append(l.rows, map[string]any{
		"list_number": int64(l.lists),
		"list_type":   typ,
		"item_number": int64(l.items),
		"content":     item,
	})
}

func (l *listCollector) end() {
	l.curType = ""
	l.items = 0
}

func (l *listCollector) rowSet() (RowSet, bool) {
	if len(l.rows) == 0 {
		return RowSet{}, false
	}
	return RowSet{
		TableName: "lists",
		Columns:   []string{"list_number", "list_type", "item_number", "content"},
		Rows:      l.rows,
		Metadata:  map[string]any{"extraction_method": "docx_lists", "list_count": l.lists, "total_items": len(l.rows)},
	}, true
}

func docxProperties(path string, core docxCore, hasCore bool) RowSet {
	title := strings.TrimSpace(core.Title)
	if title == "" {
		title = "N/A"
	}
	rows := []map[string]any{{"property": "title", "value": title}}
	if hasCore {
		for _, p := range [][2]string{{"author", core.Creator}, {"created", core.Created}, {"modified", core.Modified}} {
			if v := strings.TrimSpace(p[1]); v != "" {
				rows = append(rows, map[string]any{"property": p[0], "value": v})
			}
		}
	}
	rows = append(rows,
		map[string]any{"property": "file_name", "value": filepath.Base(path)},
		map[string]any{"property": "file_size", "value": strconv.FormatInt(fileSize(path), 10)},
	)
	return RowSet{
		TableName: "document_properties",
		Columns:   []string{"property", "value"},
		Rows:      rows,
		Metadata:  map[string]any{"extraction_method": "docx_properties"},
	}
}

func docxBasicInfo(path string, cause error) RowSet {
	return RowSet{
		TableName: "file_info",
		Columns:   []string{"file_name", "file_size", "file_type", "error"},
		Rows: []map[string]any{{
			"file_name": filepath.Base(path),
			"file_size": fileSize(path),
			"file_type": "docx",
			"error":     cause.Error(),
		}},
		Metadata: map[string]any{"extraction_method": "basic_file_info"},
	}
}
