package postgres

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"

	"askdata/internal/schema"
	"askdata/internal/storage"
)

func TestCreateTableSQL_SurrogateAndIndexes(t *testing.T) {
	t.Parallel()

	ts := &schema.TableSchema{
		Name: "risks",
		Columns: []schema.ColumnDefinition{
			{Name: "id", Type: schema.TypeInteger, Wide: true, Identity: true, Surrogate: true},
			{Name: "domain", Type: schema.TypeShortText, Nullable: true, Indexed: true},
			{Name: "score", Type: schema.TypeFloat, Nullable: true},
			{Name: "notes", Type: schema.TypeLongText, Nullable: true},
		},
	}
	d := Dialect{}

	create := ts.CreateTableSQL(d)
	for _, want := range []string{
		`CREATE TABLE "risks"`,
		`"id" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY`,
		`"domain" TEXT`,
		`"score" DOUBLE PRECISION`,
		`"notes" TEXT`,
	} {
		if !strings.Contains(create, want) {
			t.Fatalf("CREATE TABLE missing %q:\n%s", want, create)
		}
	}

	idx := ts.IndexSQL(d)
	if len(idx) != 1 || idx[0] != `CREATE INDEX "idx_risks_domain" ON "risks" ("domain")` {
		t.Fatalf("IndexSQL = %q", idx)
	}
	if got := ts.DropTableSQL(d); got != `DROP TABLE IF EXISTS "risks"` {
		t.Fatalf("DropTableSQL = %q", got)
	}
}

func TestBuildInsertSQL_DollarPlaceholders(t *testing.T) {
	t.Parallel()

	got := buildInsertSQL("t", []string{"a", `we"ird`})
	want := `INSERT INTO "t" ("a", "we""ird") VALUES ($1, $2)`
	if got != want {
		t.Fatalf("buildInsertSQL = %q, want %q", got, want)
	}
}

func TestPadRow(t *testing.T) {
	t.Parallel()

	if got := padRow([]any{1}, 3); len(got) != 3 || got[0] != 1 || got[2] != nil {
		t.Fatalf("padRow short = %#v", got)
	}
	if got := padRow([]any{1, 2, 3}, 2); len(got) != 2 {
		t.Fatalf("padRow long = %#v", got)
	}
}

func TestDialect_Limit(t *testing.T) {
	t.Parallel()

	if got := (Dialect{}).Limit("SELECT * FROM \"t\";", 10); got != `SELECT * FROM "t" LIMIT 10` {
		t.Fatalf("Limit = %q", got)
	}
}

func TestNormalize_Numeric(t *testing.T) {
	t.Parallel()

	var n pgtype.Numeric
	if err := n.Scan("12.5"); err != nil {
		t.Fatalf("scan numeric: %v", err)
	}
	if got := normalize(n); got != 12.5 {
		t.Fatalf("normalize(numeric) = %#v, want 12.5", got)
	}
	if got := normalize(int32(4)); got != int64(4) {
		t.Fatalf("normalize(int32) = %#v", got)
	}
}

// TestStore_Live runs against a real server when ASKDATA_TEST_POSTGRES_DSN is set.
func TestStore_Live(t *testing.T) {
	dsn := os.Getenv("ASKDATA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ASKDATA_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	st, err := storage.Open(ctx, storage.Config{Kind: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	ts := &schema.TableSchema{
		Name: "askdata_live_test",
		Columns: []schema.ColumnDefinition{
			{Name: "id", Type: schema.TypeInteger, Identity: true},
			{Name: "name", Type: schema.TypeShortText, Nullable: true},
		},
	}
	if err := st.ReplaceTable(ctx, ts); err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	res, err := st.InsertRows(ctx, ts.Name, ts.InsertColumns(), [][]any{
		{int64(1), "a"}, {int64(2), "b"}, {int64(1), "dup"},
	})
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if res.Inserted != 2 || res.Failed != 1 {
		t.Fatalf("InsertRows = %+v, want 2/1", res)
	}

	out, err := st.Query(ctx, `SELECT COUNT(*) AS total FROM "askdata_live_test"`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Rows[0]["total"] != int64(2) {
		t.Fatalf("total = %#v", out.Rows[0]["total"])
	}
}
