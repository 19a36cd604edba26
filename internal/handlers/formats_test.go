package handlers

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func findSet(sets []RowSet, name string) (RowSet, bool) {
	for _, s := range sets {
		if s.TableName == name {
			return s, true
		}
	}
	return RowSet{}, false
}

func TestCSV_HeaderBOMAndCharset(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// "Müller" in Windows-1252 is not valid UTF-8.
	data := []byte("\xef\xbb\xbfID,Name,City\n1,M\xfcller,Berlin\n2,Smith,\n")
	p := writeFile(t, dir, "People List.csv", data)

	sets := NewCSV(zap.NewNop()).Extract(context.Background(), p)
	if len(sets) != 1 {
		t.Fatalf("got %d row sets, want 1", len(sets))
	}
	rs := sets[0]
	if rs.TableName != "people_list" {
		t.Fatalf("table = %q", rs.TableName)
	}
	if rs.Columns[0] != "id" {
		t.Fatalf("BOM not stripped from header: %q", rs.Columns[0])
	}
	if rs.Rows[0]["name"] != "Müller" {
		t.Fatalf("name = %#v, want Müller", rs.Rows[0]["name"])
	}
	if rs.Metadata["encoding"] != "windows-1252" {
		t.Fatalf("encoding = %v", rs.Metadata["encoding"])
	}
	if rs.Rows[1]["city"] != nil {
		t.Fatalf("blank city should be nil")
	}
}

func TestCSV_TSVByExtension(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "x.tsv", []byte("a\tb\n1\t2\n"))
	sets := NewCSV(zap.NewNop()).Extract(context.Background(), p)
	if len(sets) != 1 || len(sets[0].Columns) != 2 || sets[0].Rows[0]["b"] != "2" {
		t.Fatalf("unexpected tsv extraction %+v", sets)
	}
}

func TestExcel_OneRowSetPerSheet(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := filepath.Join(dir, "book.xlsx")

	f := excelize.NewFile()
	_ = f.SetSheetRow("Sheet1", "A1", &[]any{"Risk ID", "Domain"})
	_ = f.SetSheetRow("Sheet1", "A2", &[]any{"R-1", "Privacy"})
	_ = f.SetSheetRow("Sheet1", "A3", &[]any{"R-2", "Safety"})
	if _, err := f.NewSheet("Domain Stats"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	_ = f.SetSheetRow("Domain Stats", "A1", &[]any{"Summary of domains"})
	_ = f.SetSheetRow("Domain Stats", "A3", &[]any{"Domain", "Count"})
	_ = f.SetSheetRow("Domain Stats", "A4", &[]any{"Privacy", 1})
	_ = f.SetSheetRow("Domain Stats", "A5", &[]any{"Safety", 1})
	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	if err := f.SaveAs(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = f.Close()

	sets := NewExcel(zap.NewNop()).Extract(context.Background(), p)
	if len(sets) != 2 {
		t.Fatalf("got %d row sets, want 2", len(sets))
	}
	s1, ok := findSet(sets, "sheet1")
	if !ok || len(s1.Rows) != 2 || s1.Rows[0]["risk_id"] != "R-1" {
		t.Fatalf("sheet1 = %+v", s1)
	}
	stats, ok := findSet(sets, "domain_stats")
	if !ok {
		t.Fatalf("domain_stats missing")
	}
	if stats.Metadata["sheet_name"] != "Domain Stats" || stats.Metadata["header_row"] != 1 {
		t.Fatalf("metadata = %v", stats.Metadata)
	}
	if len(stats.Rows) != 2 || stats.Rows[1]["count"] != "1" {
		t.Fatalf("stats rows = %v", stats.Rows)
	}
}

func TestExcel_SkipsLockFiles(t *testing.T) {
	t.Parallel()
	h := NewExcel(zap.NewNop())
	if h.CanHandle("/x/~$book.xlsx") {
		t.Fatalf("lock file should not be handled")
	}
	if h.CanHandle("/x/book.xls") {
		t.Fatalf("legacy xls should not be claimed")
	}
	if !h.CanHandle("/x/Book.XLSX") {
		t.Fatalf("xlsx should be handled case-insensitively")
	}
}

func TestJSON_Shapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		file      string
		body      string
		wantTable string
		wantRows  int
	}{
		{"array of objects", "people.json", `[{"id":1,"name":"a"},{"id":2,"tags":["x"]}]`, "people", 2},
		{"jsonl", "events.jsonl", "{\"e\":1}\n{\"e\":2}\n{\"e\":3}\n", "events", 3},
		{"array then trailing objects", "mix.json", `[{"a":1}] {"a":2}`, "mix", 2},
		{"array of scalars", "nums.json", `[1, "two", true]`, "nums_items", 3},
		{"envelope", "resp.json", `{"meta":{"n":2},"data":[{"x":1},{"x":2}]}`, "resp", 2},
		{"single object", "cfg.json", `{"a":{"b":1},"c":"d"}`, "cfg", 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, t.TempDir(), tt.file, []byte(tt.body))
			sets := NewJSON(zap.NewNop()).Extract(context.Background(), p)
			rs, ok := findSet(sets, tt.wantTable)
			if !ok {
				t.Fatalf("table %q missing from %+v", tt.wantTable, sets)
			}
			if len(rs.Rows) != tt.wantRows {
				t.Fatalf("rows = %d, want %d", len(rs.Rows), tt.wantRows)
			}
		})
	}
}

func TestJSON_ValuesAndNesting(t *testing.T) {
	t.Parallel()

	values, err := decodeValues([]byte(`{"team":{"members":[{"Full Name":"a","age":30}],"tags":["x","y"]},"score":1.5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sets := extractJSON("org", "org.json", values)

	members, ok := findSet(sets, "org_team_members")
	if !ok {
		t.Fatalf("nested table missing: %+v", sets)
	}
	if members.Rows[0]["full_name"] != "a" || members.Rows[0]["age"] != int64(30) {
		t.Fatalf("member row = %#v", members.Rows[0])
	}
	tags, ok := findSet(sets, "org_team_tags_values")
	if !ok || len(tags.Rows) != 2 || tags.Rows[1]["value"] != "y" {
		t.Fatalf("tags = %+v", tags)
	}

	flat := extractJSON("cfg", "cfg.json", []any{map[string]any{"a": map[string]any{"b": "c"}, "list": []any{}, "n": json.Number("2")}})
	if len(flat) != 1 {
		t.Fatalf("flat sets = %d", len(flat))
	}
	if flat[0].Rows[0]["a_b"] != "c" || flat[0].Rows[0]["list"] != `[]` || flat[0].Rows[0]["n"] != int64(2) {
		t.Fatalf("flattened = %#v", flat[0].Rows[0])
	}
}

func TestJSON_CollidingKeysKeepBothValues(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "people.json", []byte(`[{"First Name":"Ada","first_name":"A"},{"first_name":"B"}]`))
	sets := NewJSON(zap.NewNop()).Extract(context.Background(), p)
	rs, ok := findSet(sets, "people")
	if !ok {
		t.Fatalf("people missing from %+v", sets)
	}
	if len(rs.Columns) != 2 {
		t.Fatalf("columns = %v, want 2", rs.Columns)
	}
	if rs.Rows[0]["first_name"] != "Ada" || rs.Rows[0]["first_name_1"] != "A" {
		t.Fatalf("row 0 = %#v", rs.Rows[0])
	}
	if rs.Rows[1]["first_name_1"] != "B" || rs.Rows[1]["first_name"] != nil {
		t.Fatalf("row 1 = %#v", rs.Rows[1])
	}

	flat := extractJSON("cfg", "cfg.json", []any{map[string]any{"a": map[string]any{"b": "nested"}, "a_b": "plain"}})
	row := flat[0].Rows[0]
	if len(row) != 2 || row["a_b"] == row["a_b_1"] {
		t.Fatalf("flattened = %#v, want both values", row)
	}
}

func TestText_Markdown(t *testing.T) {
	t.Parallel()

	md := "# Overview\nIntro text.\n\n| Risk | Level |\n|---|---|\n| Data leak | High |\n| Outage | Low |\n\n## Items\nRID-001: Model drift\nOwner: team a\n- status: open\n"
	sets := extractText("notes", md, true)

	tbl, ok := findSet(sets, "table_1")
	if !ok || len(tbl.Rows) != 2 || tbl.Rows[0]["risk"] != "Data leak" {
		t.Fatalf("markdown table = %+v", tbl)
	}
	items, ok := findSet(sets, "structured_data")
	if !ok || len(items.Rows) != 3 {
		t.Fatalf("structured items = %+v", items)
	}
	if items.Rows[0]["type"] != "structured_id" || items.Rows[0]["key"] != "RID-001" {
		t.Fatalf("first item = %#v", items.Rows[0])
	}
	if items.Rows[2]["key"] != "status" {
		t.Fatalf("bullet item = %#v", items.Rows[2])
	}
	secs, ok := findSet(sets, "sections")
	if !ok || len(secs.Rows) != 2 || secs.Rows[1]["level"] != int64(2) {
		t.Fatalf("sections = %+v", secs)
	}
}

func TestText_LineFallback(t *testing.T) {
	t.Parallel()

	sets := extractText("plain", "first line\n\nsecond line\n", false)
	if len(sets) != 1 || sets[0].TableName != "plain_lines" {
		t.Fatalf("sets = %+v", sets)
	}
	if sets[0].Rows[1]["line_number"] != int64(3) {
		t.Fatalf("line numbers should skip blanks: %#v", sets[0].Rows[1])
	}
}

func TestHTML_TablesAndSections(t *testing.T) {
	t.Parallel()

	page := `<html><body><h1>Report</h1><p>Intro</p>
<table><tr><th>Name</th><th>Score</th></tr><tr><td>a</td><td>1</td></tr><tr><td>b</td><td></td></tr></table>
<h2>Details</h2><p>More</p></body></html>`
	p := writeFile(t, t.TempDir(), "page.html", []byte(page))
	sets := NewHTML(zap.NewNop()).Extract(context.Background(), p)

	tbl, ok := findSet(sets, "table_1")
	if !ok || len(tbl.Rows) != 2 || tbl.Rows[1]["score"] != nil {
		t.Fatalf("html table = %+v", tbl)
	}
	secs, ok := findSet(sets, "sections")
	if !ok || len(secs.Rows) != 2 || secs.Rows[0]["title"] != "Report" {
		t.Fatalf("sections = %+v", secs)
	}
}

const docxBody = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Risk Review</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Plain </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="ListBullet"/><w:numPr/></w:pPr><w:r><w:t>First item</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="ListBullet"/><w:numPr/></w:pPr><w:r><w:t>Second item</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Domain</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Count</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>Privacy</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>4</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
</w:body></w:document>`

const docxCoreXML = `<?xml version="1.0" encoding="UTF-8"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">
<dc:title>Quarterly</dc:title><dc:creator>Analyst</dc:creator></cp:coreProperties>`

func writeDocx(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "review.docx")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{"word/document.xml": docxBody, "docProps/core.xml": docxCoreXML} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	_ = f.Close()
	return p
}

func TestDocx_Kinds(t *testing.T) {
	t.Parallel()

	sets := NewDocx(zap.NewNop()).Extract(context.Background(), writeDocx(t, t.TempDir()))

	paras, ok := findSet(sets, "paragraphs")
	if !ok || len(paras.Rows) != 4 {
		t.Fatalf("paragraphs = %+v", paras)
	}
	if paras.Rows[0]["is_heading"] != true || paras.Rows[0]["heading_level"] != int64(1) {
		t.Fatalf("heading row = %#v", paras.Rows[0])
	}
	if paras.Rows[1]["content"] != "Plain paragraph." {
		t.Fatalf("run text = %#v", paras.Rows[1]["content"])
	}

	tbl, ok := findSet(sets, "table_1")
	if !ok || len(tbl.Rows) != 1 || tbl.Rows[0]["domain"] != "Privacy" {
		t.Fatalf("table = %+v", tbl)
	}

	lists, ok := findSet(sets, "lists")
	if !ok || len(lists.Rows) != 2 || lists.Rows[1]["item_number"] != int64(2) {
		t.Fatalf("lists = %+v", lists)
	}

	props, ok := findSet(sets, "document_properties")
	if !ok || props.Rows[0]["value"] != "Quarterly" || props.Rows[1]["value"] != "Analyst" {
		t.Fatalf("properties = %+v", props)
	}
}

func TestDocx_BasicInfoOnCorruptFile(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "broken.docx", []byte("not a zip"))
	sets := NewDocx(zap.NewNop()).Extract(context.Background(), p)
	if len(sets) != 1 || sets[0].TableName != "file_info" {
		t.Fatalf("sets = %+v", sets)
	}
	if sets[0].Rows[0]["file_name"] != "broken.docx" {
		t.Fatalf("file_info row = %#v", sets[0].Rows[0])
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := NewRegistry(zap.NewNop())

	p := writeFile(t, dir, "a.csv", []byte("x,y\n1,2\n"))
	sets, err := r.Extract(context.Background(), p)
	if err != nil || len(sets) != 1 {
		t.Fatalf("Extract csv = %v, %v", sets, err)
	}
	if sets[0].Metadata["handler"] != "csv" || sets[0].Metadata["source_file"] != p {
		t.Fatalf("metadata = %v", sets[0].Metadata)
	}

	if _, err := r.Extract(context.Background(), filepath.Join(dir, "a.bin")); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("unsupported err = %v", err)
	}
	if r.For(filepath.Join(dir, ".hidden.csv")) != nil {
		t.Fatalf("dotfiles should be skipped")
	}
}

func TestRowSet_Normalize(t *testing.T) {
	t.Parallel()

	rs := RowSet{Rows: []map[string]any{{"b": 1, "a": 2}, {"c": 3}}}
	rs.Normalize()
	if len(rs.Columns) != 3 || rs.Columns[0] != "a" || rs.Columns[2] != "c" {
		t.Fatalf("columns = %v", rs.Columns)
	}
	if v, ok := rs.Rows[0]["c"]; !ok || v != nil {
		t.Fatalf("missing cell should be nil")
	}
}
