// Package handlers turns source files into named row sets.
//
// A Handler never fails for a file it claims: extraction problems are logged
// and the handler returns fewer (possibly zero) row sets, or a single
// basic-info row set as a last resort.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrUnsupported is returned by Registry.Extract when no handler claims a file.
var ErrUnsupported = errors.New("handlers: unsupported file type")

// RowSet is one named, tabular unit extracted from a source file.
type RowSet struct {
	TableName string
	// Columns is the ordered union of row keys.
	Columns  []string
	Rows     []map[string]any
	Metadata map[string]any
}

// Normalize fills Columns from the rows when it is empty (first-seen order)
// and gives every row every column, using nil for missing cells.
func (rs *RowSet) Normalize() {
	if len(rs.Columns) == 0 {
		seen := map[string]bool{}
		for _, row := range rs.Rows {
			keys := make([]string, 0, len(row))
			for k := range row {
				if !seen[k] {
					keys = append(keys, k)
				}
			}
			// map order is random; keep new keys of one row stable
			sort.Strings(keys)
			for _, k := range keys {
				seen[k] = true
				rs.Columns = append(rs.Columns, k)
			}
		}
	}
	for _, row := range rs.Rows {
		for _, c := range rs.Columns {
			if _, ok := row[c]; !ok {
				row[c] = nil
			}
		}
	}
	if rs.Metadata == nil {
		rs.Metadata = map[string]any{}
	}
}

// Handler extracts row sets from one family of file formats.
type Handler interface {
	// Name identifies the handler in logs.
	Name() string
	Extensions() []string
	CanHandle(path string) bool
	Extract(ctx context.Context, path string) []RowSet
}

// Registry dispatches files to the first handler that claims them.
type Registry struct {
	handlers []Handler
	log      *zap.Logger
}

// NewRegistry returns a registry with every built-in handler.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log: log,
		handlers: []Handler{
			NewExcel(log),
			NewCSV(log),
			NewJSON(log),
			NewText(log),
			NewHTML(log),
			NewDocx(log),
		},
	}
}

// For returns the handler for path, or nil.
func (r *Registry) For(path string) Handler {
	if IsSkippable(path) {
		return nil
	}
	for _, h := range r.handlers {
		if h.CanHandle(path) {
			return h
		}
	}
	return nil
}

// Extensions lists every extension some handler accepts, sorted.
func (r *Registry) Extensions() []string {
	var out []string
	for _, h := range r.handlers {
		out = append(out, h.Extensions()...)
	}
	sort.Strings(out)
	return out
}

// Extract runs the matching handler and normalizes its row sets. Row sets
// without rows are dropped.
func (r *Registry) Extract(ctx context.Context, path string) ([]RowSet, error) {
	h := r.For(path)
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
	sets := h.Extract(ctx, path)
	out := sets[:0]
	for _, rs := range sets {
		if len(rs.Rows) == 0 {
			continue
		}
		rs.Normalize()
		if _, ok := rs.Metadata["source_file"]; !ok {
			rs.Metadata["source_file"] = path
		}
		rs.Metadata["handler"] = h.Name()
		out = append(out, rs)
	}
	r.log.Debug("extracted", zap.String("file", path), zap.String("handler", h.Name()), zap.Int("row_sets", len(out)))
	return out, nil
}

// IsSkippable reports whether a file is an editor lock file or a dotfile.
func IsSkippable(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".")
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
