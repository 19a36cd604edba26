// Package watch reloads the catalog when files in its data directories
// change. Bursts of events are collapsed into one reload.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"askdata/internal/handlers"
)

// DefaultDebounce is the quiet period before a reload.
const DefaultDebounce = 2 * time.Second

// Reloader is satisfied by *catalog.Catalog.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Options struct {
	Dirs      []string
	Recursive bool
	// Extensions limits which files trigger a reload; empty means any file.
	Extensions []string
	Debounce   time.Duration
	Logger     *zap.Logger
}

// Watcher watches directories and calls Reload after changes settle.
type Watcher struct {
	w        *fsnotify.Watcher
	target   Reloader
	exts     map[string]bool
	debounce time.Duration
	log      *zap.Logger
}

// New adds every directory (and, when recursive, its subdirectories) to a
// new fsnotify watcher.
func New(target Reloader, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		w:        fw,
		target:   target,
		exts:     map[string]bool{},
		debounce: opts.Debounce,
		log:      opts.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	for _, e := range opts.Extensions {
		w.exts[strings.ToLower(e)] = true
	}

	for _, dir := range opts.Dirs {
		if err := w.add(dir, opts.Recursive); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) add(dir string, recursive bool) error {
	if !recursive {
		if err := w.w.Add(dir); err != nil {
			return fmt.Errorf("watch: add %s: %w", dir, err)
		}
		return nil
	}
	return filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.IsDir() {
			return nil
		}
		if err := w.w.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if handlers.IsSkippable(ev.Name) {
		return false
	}
	return len(w.exts) == 0 || w.exts[strings.ToLower(filepath.Ext(ev.Name))]
}

// Run blocks until ctx is done, reloading once per burst of changes. It
// closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.w.Close()

	// fire is nil while no change is pending.
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("data file changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			fire = time.After(w.debounce)
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			start := time.Now()
			if err := w.target.Reload(ctx); err != nil {
				w.log.Error("reload failed", zap.String("stage", "reload"), zap.Error(err))
				continue
			}
			w.log.Info("reloaded", zap.String("stage", "reload"), zap.Duration("duration", time.Since(start)))
		}
	}
}
