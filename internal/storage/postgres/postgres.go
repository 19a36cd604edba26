// Package postgres registers a PostgreSQL backend built on pgx's native pool.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"askdata/internal/schema"
	"askdata/internal/storage"
)

func init() {
	storage.Register("postgres", Open)
}

// Store implements storage.Store for PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to cfg.DSN and verifies the connection.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Dialect() storage.Dialect { return Dialect{} }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ReplaceTable(ctx context.Context, t *schema.TableSchema) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("postgres: table name is empty")
	}
	d := Dialect{}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := append([]string{t.DropTableSQL(d), t.CreateTableSQL(d)}, t.IndexSQL(d)...)
	for _, q := range stmts {
		if _, err := tx.Exec(ctx, q); err != nil {
			return fmt.Errorf("postgres: replace table %s: %w", t.Name, err)
		}
	}
	return tx.Commit(ctx)
}

// InsertRows tries a single COPY first. COPY is all-or-nothing, so when it
// fails the batch is replayed row by row to isolate the rejected rows.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (storage.InsertResult, error) {
	var res storage.InsertResult
	if len(rows) == 0 {
		return res, nil
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err == nil {
		res.Inserted = int(n)
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	q := buildInsertSQL(table, columns)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := s.pool.Exec(ctx, q, padRow(row, len(columns))...); err != nil {
			res.Failed++
			continue
		}
		res.Inserted++
	}
	return res, nil
}

func padRow(row []any, n int) []any {
	if len(row) >= n {
		return row[:n]
	}
	out := make([]any, n)
	copy(out, row)
	return out
}

func buildInsertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	ph := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgIdent(c)
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgIdent(table), strings.Join(quoted, ", "), strings.Join(ph, ", "))
}

const (
	tablesSQL = `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`

	columnsSQL = `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`
)

func (s *Store) ListTables(ctx context.Context) ([]storage.TableInfo, error) {
	rows, err := s.pool.Query(ctx, tablesSQL)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tables: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list tables: %w", err)
	}

	out := make([]storage.TableInfo, 0, len(names))
	for _, name := range names {
		info := storage.TableInfo{Name: name}

		crows, err := s.pool.Query(ctx, columnsSQL, name)
		if err != nil {
			return nil, fmt.Errorf("postgres: columns of %s: %w", name, err)
		}
		for crows.Next() {
			var c storage.ColumnInfo
			if err := crows.Scan(&c.Name, &c.Type); err != nil {
				crows.Close()
				return nil, fmt.Errorf("postgres: scan column of %s: %w", name, err)
			}
			info.Columns = append(info.Columns, c)
		}
		crows.Close()
		if err := crows.Err(); err != nil {
			return nil, fmt.Errorf("postgres: columns of %s: %w", name, err)
		}

		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgIdent(name)).Scan(&info.RowCount); err != nil {
			return nil, fmt.Errorf("postgres: count %s: %w", name, err)
		}
		out = append(out, info)
	}
	return out, nil
}

func (s *Store) Query(ctx context.Context, query string) (*storage.Result, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := &storage.Result{Columns: make([]string, len(fields)), Rows: []map[string]any{}}
	for i, f := range fields {
		res.Columns[i] = f.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(vals))
		for i, v := range vals {
			m[res.Columns[i]] = normalize(v)
		}
		res.Rows = append(res.Rows, m)
	}
	return res, rows.Err()
}

// normalize handles pgx-specific value types before the shared conversion.
// AVG and SUM over integers come back as NUMERIC.
func normalize(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return storage.NormalizeValue(v)
}

// Dialect implements storage.Dialect for PostgreSQL.
type Dialect struct{}

func (Dialect) Name() string { return "PostgreSQL" }

func (Dialect) QuoteIdent(name string) string { return pgIdent(name) }

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// ColumnType maps short text to TEXT as well: Postgres stores both the same
// way and a length cap would only add insert failures.
func (Dialect) ColumnType(c schema.ColumnDefinition) string {
	switch c.Type {
	case schema.TypeInteger:
		if c.Wide {
			return "BIGINT"
		}
		return "INTEGER"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (Dialect) SurrogateKey(name string) string {
	return pgIdent(name) + " BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
}

func (Dialect) LooseTyping() bool { return false }

func (Dialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimSpace(query), ";"), n)
}

var (
	_ storage.Store   = (*Store)(nil)
	_ storage.Dialect = Dialect{}
)
