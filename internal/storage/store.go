package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"askdata/internal/schema"
)

// ErrUnknownKind is returned by Open for an unregistered backend kind.
var ErrUnknownKind = errors.New("storage: unknown kind")

// Config is the minimal configuration needed to open a Store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Dialect is the engine-specific SQL surface shared by DDL generation, the
// data context builder, and the fallback query templates.
type Dialect interface {
	schema.Dialect

	// Name is the human-readable engine name used in prompts (e.g. "SQLite").
	Name() string

	// Limit caps a SELECT statement built by this program to n rows.
	Limit(query string, n int) string

	// LooseTyping reports whether typed columns also accept text values.
	LooseTyping() bool
}

// TableInfo describes a live table as reported by the engine.
type TableInfo struct {
	Name     string
	RowCount int64
	Columns  []ColumnInfo
}

// ColumnInfo is one column of a live table.
type ColumnInfo struct {
	Name string
	Type string
}

// InsertResult summarizes a tolerant bulk insert.
type InsertResult struct {
	Inserted int
	Failed   int
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Store is the embedded SQL engine consumed by the catalog.
//
// Stores assume a single writer. ReplaceTable and InsertRows must not run
// concurrently with Query against the same table; the catalog serializes them.
type Store interface {
	Dialect() Dialect

	// ReplaceTable drops t if it exists, then creates it and its indexes.
	ReplaceTable(ctx context.Context, t *schema.TableSchema) error

	// InsertRows inserts rows one at a time. A row the engine rejects is counted
	// in InsertResult.Failed and skipped; the error return is reserved for
	// failures that stop the whole batch (lost connection, cancelled context).
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (InsertResult, error)

	// ListTables returns every user table with its row count and ordered columns.
	ListTables(ctx context.Context) ([]TableInfo, error)

	// Query runs a read-only statement and materializes every row.
	Query(ctx context.Context, query string) (*Result, error)

	Close() error
}

// Factory opens a Store for a backend kind.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "sqlite", "postgres").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs a Store using the registered backend factory.
//
// Errors:
//   - ErrUnknownKind if cfg.Kind is empty or unsupported.
//   - Whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (Store, error) {
	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

// FindTable returns the table named name from tables.
func FindTable(tables []TableInfo, name string) (TableInfo, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableInfo{}, false
}
