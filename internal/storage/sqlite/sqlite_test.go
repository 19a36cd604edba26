package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"askdata/internal/schema"
	"askdata/internal/storage"
)

func TestFormatSQLiteTime_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"date only", time.Date(2026, 1, 27, 0, 0, 0, 0, time.UTC), "2026-01-27"},
		{"with clock", time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC), "2026-01-27 12:17:08"},
		{"converted to utc", time.Date(2026, 1, 27, 13, 0, 0, 0, time.FixedZone("CET", 3600)), "2026-01-27 12:00:00"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatSQLiteTime(tt.in); got != tt.want {
				t.Fatalf("formatSQLiteTime(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDialect_ColumnTypes(t *testing.T) {
	t.Parallel()

	d := Dialect{}
	tests := []struct {
		col  schema.ColumnDefinition
		want string
	}{
		{schema.ColumnDefinition{Type: schema.TypeInteger}, "INTEGER"},
		{schema.ColumnDefinition{Type: schema.TypeInteger, Wide: true}, "BIGINT"},
		{schema.ColumnDefinition{Type: schema.TypeFloat}, "DOUBLE"},
		{schema.ColumnDefinition{Type: schema.TypeBoolean}, "BOOLEAN"},
		{schema.ColumnDefinition{Type: schema.TypeDate}, "DATE"},
		{schema.ColumnDefinition{Type: schema.TypeTimestamp}, "TIMESTAMP"},
		{schema.ColumnDefinition{Type: schema.TypeShortText}, "VARCHAR(255)"},
		{schema.ColumnDefinition{Type: schema.TypeLongText}, "TEXT"},
	}
	for _, tt := range tests {
		if got := d.ColumnType(tt.col); got != tt.want {
			t.Fatalf("ColumnType(%s) = %q, want %q", tt.col.Type, got, tt.want)
		}
	}
	if got := d.QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("QuoteIdent = %q", got)
	}
	if got := d.Limit("SELECT * FROM t;", 10); got != "SELECT * FROM t LIMIT 10" {
		t.Fatalf("Limit = %q", got)
	}
}

func openMemory(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)

	ts := &schema.TableSchema{
		Name: "people",
		Columns: []schema.ColumnDefinition{
			{Name: "id", Type: schema.TypeInteger, Identity: true},
			{Name: "name", Type: schema.TypeShortText, Nullable: true, Indexed: true},
			{Name: "joined", Type: schema.TypeDate, Nullable: true},
			{Name: "active", Type: schema.TypeBoolean, Nullable: true},
		},
	}
	if err := st.ReplaceTable(ctx, ts); err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}

	rows := [][]any{
		{int64(1), "ada", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{int64(2), "bob", nil, false},
		{int64(1), "dup", nil, nil}, // primary key violation
	}
	res, err := st.InsertRows(ctx, "people", ts.InsertColumns(), rows)
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if res.Inserted != 2 || res.Failed != 1 {
		t.Fatalf("InsertRows = %+v, want 2 inserted 1 failed", res)
	}

	tables, err := st.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	info, ok := storage.FindTable(tables, "people")
	if !ok {
		t.Fatalf("people missing from %+v", tables)
	}
	if info.RowCount != 2 || len(info.Columns) != 4 {
		t.Fatalf("unexpected table info %+v", info)
	}
	if info.Columns[1].Name != "name" || !strings.Contains(info.Columns[1].Type, "VARCHAR") {
		t.Fatalf("unexpected column info %+v", info.Columns[1])
	}

	out, err := st.Query(ctx, `SELECT COUNT(*) AS total FROM "people"`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out.Rows) != 1 || out.Rows[0]["total"] != int64(2) {
		t.Fatalf("count rows = %#v", out.Rows)
	}

	out, err = st.Query(ctx, `SELECT name FROM "people" ORDER BY id`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out.Columns) != 1 || out.Columns[0] != "name" || out.Rows[1]["name"] != "bob" {
		t.Fatalf("unexpected result %#v", out)
	}
}

func TestStore_ReplaceTableDropsPreviousData(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)

	ts := &schema.TableSchema{
		Name: "t",
		Columns: []schema.ColumnDefinition{
			{Name: "id", Type: schema.TypeInteger, Identity: true, Surrogate: true},
			{Name: "v", Type: schema.TypeShortText, Nullable: true},
		},
	}
	for round := 0; round < 2; round++ {
		if err := st.ReplaceTable(ctx, ts); err != nil {
			t.Fatalf("round %d ReplaceTable: %v", round, err)
		}
		if _, err := st.InsertRows(ctx, "t", ts.InsertColumns(), [][]any{{"a"}, {"b"}}); err != nil {
			t.Fatalf("round %d InsertRows: %v", round, err)
		}
	}

	out, err := st.Query(ctx, `SELECT "id", "v" FROM "t" ORDER BY "id"`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out.Rows) != 2 {
		t.Fatalf("expected reload to replace rows, got %d", len(out.Rows))
	}
	if out.Rows[0]["id"] != int64(1) {
		t.Fatalf("surrogate id should restart at 1, got %#v", out.Rows[0]["id"])
	}
}
