// Package sqlite registers the default embedded backend, SQLite through the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"askdata/internal/schema"
	"askdata/internal/storage"
	"askdata/internal/storage/sqlstore"
)

func init() {
	storage.Register("sqlite", Open)
}

// Open opens a SQLite store. An empty DSN means a private in-memory database.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn := cfg.DSN
	if strings.TrimSpace(dsn) == "" {
		dsn = ":memory:"
	}
	return sqlstore.Open(ctx, Dialect{}, dsn)
}

// Dialect implements sqlstore.Dialect for SQLite.
//
// Key design points:
//   - SQLite has no native DATE/TIMESTAMP storage class. Dates are bound as
//     "2006-01-02" text and timestamps as "2006-01-02 15:04:05" text so that
//     generated SQL can compare them with plain string literals.
//   - The surrogate key is "INTEGER PRIMARY KEY AUTOINCREMENT", which makes it
//     the rowid and auto-generates values.
type Dialect struct{}

func (Dialect) Name() string       { return "SQLite" }
func (Dialect) DriverName() string { return "sqlite" }

// QuoteIdent uses SQLite "quoted identifiers".
func (Dialect) QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (Dialect) ColumnType(c schema.ColumnDefinition) string {
	switch c.Type {
	case schema.TypeInteger:
		if c.Wide {
			return "BIGINT"
		}
		return "INTEGER"
	case schema.TypeFloat:
		return "DOUBLE"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeTimestamp:
		return "TIMESTAMP"
	case schema.TypeLongText:
		return "TEXT"
	default:
		return "VARCHAR(255)"
	}
}

func (d Dialect) SurrogateKey(name string) string {
	return d.QuoteIdent(name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

// SQLite columns have type affinity, not strict types.
func (Dialect) LooseTyping() bool { return true }

func (Dialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimSpace(query), ";"), n)
}

// Configure pins in-memory databases to a single connection: every new
// connection to ":memory:" would otherwise see its own empty database.
func (Dialect) Configure(db *sqlx.DB, dsn string) {
	if isMemoryDSN(dsn) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func (Dialect) BindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return formatSQLiteTime(t)
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func (Dialect) TablesSQL() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

func (Dialect) ColumnsSQL() string {
	return `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`
}

// formatSQLiteTime renders dates without a clock as "2006-01-02" and
// everything else as "2006-01-02 15:04:05" in UTC.
func formatSQLiteTime(t time.Time) string {
	t = t.UTC()
	if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

var _ sqlstore.Dialect = Dialect{}
