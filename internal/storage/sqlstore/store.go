// Package sqlstore implements storage.Store over database/sql and sqlx for
// engines reached through a registered database/sql driver.
//
// Engine differences (identifier quoting, column types, catalog queries,
// placeholder style) live behind the Dialect interface; the sqlite and mssql
// packages supply one each.
package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"askdata/internal/schema"
	"askdata/internal/storage"
)

// Dialect extends storage.Dialect with what a database/sql backend needs.
type Dialect interface {
	storage.Dialect

	// DriverName is the database/sql driver name passed to sqlx.Open.
	DriverName() string

	// Configure adjusts pool settings after open (e.g. pinning in-memory
	// databases to one connection).
	Configure(db *sqlx.DB, dsn string)

	// BindValue converts a coerced cell into a driver argument.
	BindValue(v any) any

	// TablesSQL lists user table names, one per row.
	TablesSQL() string

	// ColumnsSQL lists (name, type) pairs of table in ordinal order. It uses
	// "?" placeholders; the store rebinds them for the driver.
	ColumnsSQL() string
}

// Store is a storage.Store over *sqlx.DB.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// Open opens dsn with the dialect's driver and verifies connectivity.
func Open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name(), err)
	}
	d.Configure(db, dsn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name(), err)
	}
	return &Store{db: db, dialect: d}, nil
}

// Dialect implements storage.Store.
func (s *Store) Dialect() storage.Dialect { return s.dialect }

// Close implements storage.Store.
func (s *Store) Close() error { return s.db.Close() }

// ReplaceTable implements storage.Store. Drop, create, and index statements
// run in one transaction so a failed create leaves no half-built table.
func (s *Store) ReplaceTable(ctx context.Context, t *schema.TableSchema) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%s: table name is empty", s.dialect.Name())
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := append([]string{t.DropTableSQL(s.dialect), t.CreateTableSQL(s.dialect)}, t.IndexSQL(s.dialect)...)
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%s: replace table %s: %w", s.dialect.Name(), t.Name, err)
		}
	}
	return tx.Commit()
}

// InsertRows implements storage.Store using one prepared statement per batch.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (storage.InsertResult, error) {
	var res storage.InsertResult
	if len(rows) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(buildInsertSQL(s.dialect, table, columns)))
	if err != nil {
		return res, fmt.Errorf("%s: prepare insert %s: %w", s.dialect.Name(), table, err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for i := range args {
			args[i] = nil
			if i < len(row) {
				args[i] = s.dialect.BindValue(row[i])
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			res.Failed++
			continue
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return storage.InsertResult{Failed: len(rows)}, err
	}
	return res, nil
}

func buildInsertSQL(d storage.Dialect, table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table),
		strings.Join(quoted, ", "),
		strings.TrimRight(strings.Repeat("?,", len(columns)), ","),
	)
}

// ListTables implements storage.Store.
func (s *Store) ListTables(ctx context.Context) ([]storage.TableInfo, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, s.dialect.TablesSQL()); err != nil {
		return nil, fmt.Errorf("%s: list tables: %w", s.dialect.Name(), err)
	}

	out := make([]storage.TableInfo, 0, len(names))
	for _, name := range names {
		info := storage.TableInfo{Name: name}

		var cols []struct {
			Name string `db:"name"`
			Type string `db:"type"`
		}
		if err := s.db.SelectContext(ctx, &cols, s.db.Rebind(s.dialect.ColumnsSQL()), name); err != nil {
			return nil, fmt.Errorf("%s: columns of %s: %w", s.dialect.Name(), name, err)
		}
		for _, c := range cols {
			info.Columns = append(info.Columns, storage.ColumnInfo{Name: c.Name, Type: c.Type})
		}

		if err := s.db.GetContext(ctx, &info.RowCount, "SELECT COUNT(*) FROM "+s.dialect.QuoteIdent(name)); err != nil {
			return nil, fmt.Errorf("%s: count %s: %w", s.dialect.Name(), name, err)
		}
		out = append(out, info)
	}
	return out, nil
}

// Query implements storage.Store.
func (s *Store) Query(ctx context.Context, query string) (*storage.Result, error) {
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &storage.Result{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		m := make(map[string]any, len(cols))
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		for k, v := range m {
			m[k] = storage.NormalizeValue(v)
		}
		res.Rows = append(res.Rows, m)
	}
	return res, rows.Err()
}

var _ storage.Store = (*Store)(nil)
