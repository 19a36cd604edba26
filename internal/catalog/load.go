package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"askdata/internal/handlers"
	"askdata/internal/metrics"
	"askdata/internal/schema"
	"askdata/internal/semantic"
)

// adoptSampleRows is how many rows of a pre-existing table are read to
// describe it.
const adoptSampleRows = 100

// LoadFile extracts every row set from path into its own table and returns
// the inserted row count per table. A file no handler claims is an error;
// problems inside a claimed file only shrink the result.
func (c *Catalog) LoadFile(ctx context.Context, path string) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loaded, err := c.loadFileLocked(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(loaded) > 0 {
		c.rebuildContext(ctx)
	}
	return loaded, nil
}

// LoadDirectory loads every supported file under dir. Files whose base name
// matches none of patterns are skipped; an empty pattern list accepts all.
// A file that fails to load is logged and skipped.
func (c *Catalog) LoadDirectory(ctx context.Context, dir string, recursive bool, patterns []string) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loaded, err := c.loadDirectoryLocked(ctx, DataDir{Path: dir, Recursive: recursive, Patterns: patterns})
	if err != nil {
		return nil, err
	}
	if len(loaded) > 0 {
		c.rebuildContext(ctx)
	}
	return loaded, nil
}

func (c *Catalog) loadDirectoryLocked(ctx context.Context, d DataDir) (map[string]int, error) {
	for _, p := range d.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("catalog: pattern %q: %w", p, err)
		}
	}

	var files []string
	err := filepath.WalkDir(d.Path, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			if path == d.Path {
				return err
			}
			c.log.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if e.IsDir() {
			if path != d.Path && !d.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if handlers.IsSkippable(path) || c.handlers.For(path) == nil || !matchesAny(d.Patterns, e.Name()) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: scan %s: %w", d.Path, err)
	}

	loaded := map[string]int{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		got, err := c.loadFileLocked(ctx, f)
		if err != nil {
			c.log.Warn("file load failed", zap.String("stage", "load"), zap.String("file", f), zap.Error(err))
			continue
		}
		for name, n := range got {
			loaded[name] = n
		}
	}
	c.log.Info("directory loaded",
		zap.String("stage", "load"),
		zap.String("dir", d.Path),
		zap.Int("files", len(files)),
		zap.Int("tables", len(loaded)),
	)
	return loaded, nil
}

func matchesAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func (c *Catalog) loadFileLocked(ctx context.Context, path string) (map[string]int, error) {
	start := time.Now()
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	sets, err := c.handlers.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", path, err)
	}

	loaded := map[string]int{}
	seen := map[string]int{}
	for _, rs := range sets {
		base := handlers.SanitizeTableName(rs.TableName)
		seen[base]++
		owner := fmt.Sprintf("%s#%s#%d", abs, base, seen[base])
		name := c.claimName(owner, base)

		n, err := c.loadRowSet(ctx, name, rs)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return loaded, err
			}
			c.log.Warn("table load failed",
				zap.String("stage", "load"),
				zap.String("file", path),
				zap.String("table", name),
				zap.Error(err),
			)
			continue
		}
		loaded[name] = n
	}

	c.metrics.ObserveHistogram(metrics.LoadDuration, time.Since(start).Seconds(), nil)
	c.log.Info("file loaded",
		zap.String("stage", "load"),
		zap.String("file", path),
		zap.Int("tables", len(loaded)),
		zap.Duration("duration", time.Since(start)),
	)
	return loaded, nil
}

// claimName returns the table owned by owner, or reserves base for it,
// adding _1, _2, ... while base belongs to another source.
func (c *Catalog) claimName(owner, base string) string {
	if name, ok := c.owners[owner]; ok {
		return name
	}
	name := base
	for i := 1; c.tableOwner[name] != ""; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	c.owners[owner] = name
	c.tableOwner[name] = owner
	return name
}

// loadRowSet replaces table name with the contents of rs and describes it.
func (c *Catalog) loadRowSet(ctx context.Context, name string, rs handlers.RowSet) (int, error) {
	ts := schema.Infer(name, rs.Columns, rs.Rows, schema.Options{})
	tr := schema.TransformWith(ts, rs.Rows, schema.TransformOptions{KeepText: c.store.Dialect().LooseTyping()})
	for _, ce := range tr.Errors {
		c.log.Debug("cell degraded", zap.String("table", name), zap.Error(ce))
	}

	if err := c.store.ReplaceTable(ctx, ts); err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}
	res, err := c.store.InsertRows(ctx, name, tr.Columns, tr.Rows)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", name, err)
	}

	kind, _ := rs.Metadata["handler"].(string)
	c.metrics.IncCounter(metrics.TablesLoadedTotal, 1, nil)
	c.metrics.IncCounter(metrics.RowsLoadedTotal, float64(res.Inserted), metrics.Labels{"table_kind": kind})
	c.metrics.IncCounter(metrics.RowsFailedTotal, float64(res.Failed), nil)

	sample := rs.Rows
	if len(sample) > adoptSampleRows {
		sample = sample[:adoptSampleRows]
	}
	sem := c.registry.Register(semantic.TableInput{
		Name:     name,
		Metadata: rs.Metadata,
		Columns:  rs.Columns,
		Sample:   sample,
		RowCount: res.Inserted,
	})
	c.mapper.RemoveTable(name)
	c.mapper.AnalyzeTable(name, rs.Columns, rs.Rows)

	c.log.Info("table loaded",
		zap.String("stage", "load"),
		zap.String("table", name),
		zap.String("semantic_type", sem.SemanticType),
		zap.Int("rows", res.Inserted),
		zap.Int("failed_rows", res.Failed),
		zap.Int("coerced_cells", tr.Failures),
	)
	return res.Inserted, nil
}

// adoptExisting describes live tables the registry does not know, so a
// persistent store is queryable without reloading its sources. Tables no
// load owns are marked adopted.
func (c *Catalog) adoptExisting(ctx context.Context) error {
	tables, err := c.store.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	d := c.store.Dialect()
	for _, t := range tables {
		if _, ok := c.registry.Get(t.Name); ok {
			continue
		}
		res, err := c.store.Query(ctx, d.Limit("SELECT * FROM "+d.QuoteIdent(t.Name), adoptSampleRows))
		if err != nil {
			c.log.Warn("cannot sample table", zap.String("table", t.Name), zap.Error(err))
			continue
		}
		c.registry.Register(semantic.TableInput{
			Name:     t.Name,
			Columns:  res.Columns,
			Sample:   res.Rows,
			RowCount: int(t.RowCount),
		})
		c.mapper.RemoveTable(t.Name)
		c.mapper.AnalyzeTable(t.Name, res.Columns, res.Rows)
		if _, owned := c.tableOwner[t.Name]; !owned {
			c.tableOwner[t.Name] = ""
		}
		c.log.Debug("adopted table", zap.String("table", t.Name), zap.Int64("rows", t.RowCount))
	}
	return nil
}
