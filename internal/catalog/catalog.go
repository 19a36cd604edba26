// Package catalog owns every loaded table and answers questions about them.
//
// A Catalog ties the pieces together: handlers extract row sets, schema
// inference types them, the store keeps them, and the semantic registry,
// column mapper and data context describe them. Queries run the generator,
// execute its SQL and format the rows.
//
// Loading and reloading take a write lock; queries share a read lock.
// Initialization is lazy and a failure sticks until Reload.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"askdata/internal/columnmap"
	"askdata/internal/datacontext"
	"askdata/internal/formatter"
	"askdata/internal/handlers"
	"askdata/internal/llm"
	"askdata/internal/metrics"
	"askdata/internal/querygen"
	"askdata/internal/semantic"
	"askdata/internal/storage"
)

var (
	// ErrNotReady wraps the cause of a failed initialization.
	ErrNotReady = errors.New("catalog: service not ready")
	// ErrNoTables is returned by Query when nothing is loaded.
	ErrNoTables = errors.New("catalog: no tables loaded")
	// ErrUnknownTable is returned for a table the store does not have.
	ErrUnknownTable = errors.New("catalog: unknown table")
)

// ExecutionError is a generated statement the store rejected.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("catalog: execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// DataDir is a directory loaded by Initialize.
type DataDir struct {
	Path      string
	Recursive bool
	// Patterns are base-name globs; empty accepts every supported file.
	Patterns []string
}

// DefaultMaxTables caps the candidate tables shown to the generator.
const DefaultMaxTables = 5

// Catalog is the top-level owner of the loaded corpus.
type Catalog struct {
	store    storage.Store
	handlers *handlers.Registry
	registry *semantic.Registry
	mapper   *columnmap.Mapper
	gen      *querygen.Generator
	format   *formatter.Formatter
	metrics  metrics.Backend
	log      *zap.Logger

	client     llm.Client
	embedder   semantic.Embedder
	mode       formatter.Mode
	dirs       []DataDir
	ctxOpts    datacontext.Options
	allowJoins bool
	maxTables  int

	// mu serializes loads against queries.
	mu      sync.RWMutex
	dataCtx *datacontext.Context
	// owners maps a source key (file and row set) to its table; tableOwner
	// is the reverse. Tables found in the store at startup have an empty
	// owner and may be claimed by the next load.
	owners     map[string]string
	tableOwner map[string]string

	initMu  sync.Mutex
	ready   atomic.Bool
	initErr error
}

// Option configures a Catalog.
type Option func(*Catalog)

func WithLogger(l *zap.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLLM sets the model used for SQL generation and response rendering.
func WithLLM(client llm.Client) Option {
	return func(c *Catalog) { c.client = client }
}

// WithEmbedder enables embedding rerank in table selection.
func WithEmbedder(e llm.Embedder) Option {
	return func(c *Catalog) {
		if e != nil {
			c.embedder = e
		}
	}
}

func WithMetrics(m metrics.Backend) Option {
	return func(c *Catalog) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithMode sets the default formatter mode.
func WithMode(m formatter.Mode) Option {
	return func(c *Catalog) { c.mode = m }
}

// WithDataDirs sets the directories Initialize loads.
func WithDataDirs(dirs ...DataDir) Option {
	return func(c *Catalog) { c.dirs = append(c.dirs, dirs...) }
}

// WithContextOptions sets the data context limits.
func WithContextOptions(o datacontext.Options) Option {
	return func(c *Catalog) { c.ctxOpts = o }
}

// WithJoins controls whether generated SQL may join tables.
func WithJoins(allow bool) Option {
	return func(c *Catalog) { c.allowJoins = allow }
}

// WithMaxTables caps the candidate tables per question.
func WithMaxTables(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.maxTables = n
		}
	}
}

// New returns a Catalog over store. Nothing is loaded until Initialize,
// LoadFile or LoadDirectory runs.
func New(store storage.Store, opts ...Option) *Catalog {
	c := &Catalog{
		store:      store,
		metrics:    metrics.Nop{},
		log:        zap.NewNop(),
		client:     llm.Disabled{},
		mode:       formatter.Standard,
		allowJoins: true,
		maxTables:  DefaultMaxTables,
		owners:     map[string]string{},
		tableOwner: map[string]string{},
	}
	for _, o := range opts {
		o(c)
	}
	c.ctxOpts.Logger = c.log

	regOpts := []semantic.Option{semantic.WithLogger(c.log)}
	if c.embedder != nil {
		regOpts = append(regOpts, semantic.WithEmbedder(c.embedder))
	}
	c.handlers = handlers.NewRegistry(c.log)
	c.registry = semantic.NewRegistry(regOpts...)
	c.mapper = columnmap.New(c.log)
	c.gen = querygen.New(c.instrument(c.client, "sql"), store.Dialect(),
		querygen.WithLogger(c.log),
		querygen.WithMapper(c.mapper),
		querygen.WithJoins(c.allowJoins),
	)
	c.format = formatter.New(c.instrument(c.client, "format"),
		formatter.WithLogger(c.log),
		formatter.WithMode(c.mode),
	)
	return c
}

// Initialize loads the configured data directories, adopts the other tables
// already in the store and builds the data context. Running it again reloads.
func (c *Catalog) Initialize(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Catalog) initializeLocked(ctx context.Context) error {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.loadAll(ctx)
	if err != nil {
		c.initErr = fmt.Errorf("%w: %v", ErrNotReady, err)
		c.ready.Store(false)
		c.log.Error("initialization failed", zap.String("stage", "init"), zap.Error(err))
		return c.initErr
	}
	c.initErr = nil
	c.ready.Store(true)
	c.log.Info("initialized",
		zap.String("stage", "init"),
		zap.Int("tables", len(c.tableOwner)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// loadAll loads the data directories, then describes every other live
// table, including ones loaded from single files before a reload.
func (c *Catalog) loadAll(ctx context.Context) error {
	for _, d := range c.dirs {
		if _, err := c.loadDirectoryLocked(ctx, d); err != nil {
			return err
		}
	}
	if err := c.adoptExisting(ctx); err != nil {
		return err
	}
	c.rebuildContext(ctx)
	return nil
}

// EnsureInitialized runs Initialize once. Later calls return nil, or the
// recorded failure without retrying.
func (c *Catalog) EnsureInitialized(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.ready.Load() {
		return nil
	}
	if c.initErr != nil {
		return c.initErr
	}
	return c.initializeLocked(ctx)
}

// Reload forgets every table description, then initializes again. It is
// the only way to clear a recorded initialization failure.
func (c *Catalog) Reload(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.Lock()
	c.registry.Reset()
	c.mapper.Reset()
	c.dataCtx = nil
	c.initErr = nil
	c.ready.Store(false)
	for name, owner := range c.tableOwner {
		if owner == "" {
			delete(c.tableOwner, name)
		}
	}
	c.mu.Unlock()

	return c.initializeLocked(ctx)
}

// DataDirs returns the configured data directories.
func (c *Catalog) DataDirs() []DataDir {
	return append([]DataDir(nil), c.dirs...)
}

// Context returns the current data context snapshot, or nil.
func (c *Catalog) Context() *datacontext.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataCtx
}

func (c *Catalog) rebuildContext(ctx context.Context) {
	start := time.Now()
	dc, err := datacontext.Build(ctx, c.store, c.ctxOpts)
	if err != nil {
		c.log.Warn("data context rebuild failed", zap.String("stage", "context"), zap.Error(err))
		return
	}
	c.dataCtx = dc
	c.log.Info("data context built",
		zap.String("stage", "context"),
		zap.Int("tables", len(dc.Tables)),
		zap.Int64("rows", dc.TotalRows),
		zap.Duration("duration", time.Since(start)),
	)
}

// instrument counts and times calls made through client for purpose. A
// disabled client is returned as is so callers can still detect it.
func (c *Catalog) instrument(client llm.Client, purpose string) llm.Client {
	if !llm.IsEnabled(client) {
		return llm.Disabled{}
	}
	return &instrumentedClient{inner: client, purpose: purpose, metrics: c.metrics}
}

type instrumentedClient struct {
	inner   llm.Client
	purpose string
	metrics metrics.Backend
}

func (i *instrumentedClient) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := i.inner.Generate(ctx, prompt)
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.metrics.IncCounter(metrics.LLMCallsTotal, 1, metrics.Labels{"purpose": i.purpose, "status": status})
	i.metrics.ObserveHistogram(metrics.LLMDuration, time.Since(start).Seconds(), metrics.Labels{"purpose": i.purpose})
	return out, err
}
