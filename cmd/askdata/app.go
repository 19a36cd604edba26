package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/config"
	"askdata/internal/datacontext"
	"askdata/internal/formatter"
	"askdata/internal/llm"
	"askdata/internal/logging"
	"askdata/internal/metrics"
	"askdata/internal/metrics/datadog"
	"askdata/internal/storage"
)

// app is everything one command invocation needs.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	store   storage.Store
	metrics metrics.Backend
	cat     *catalog.Catalog
}

// setup loads config, applies flag overrides, validates, and opens the
// store, model client, metrics backend and catalog.
func setup(ctx context.Context, f *flags, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Log.Level, f.logLevel)
	override(&cfg.Store.Kind, f.storeKind)
	override(&cfg.Store.DSN, f.dsn)
	override(&cfg.LLM.Provider, f.provider)
	override(&cfg.LLM.Model, f.model)

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return nil, fmt.Errorf("configuration is invalid")
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	client, embedder, err := llm.New(llm.Config{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		Endpoint:       cfg.LLM.Endpoint,
		APIKey:         cfg.LLM.APIKey,
		Timeout:        cfg.LLM.Timeout,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	})
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	st, err := storage.Open(ctx, storage.Config{Kind: cfg.Store.Kind, DSN: cfg.Store.DSN})
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	m := newMetrics(ctx, cfg.Metrics, log)
	mode, _ := formatter.ParseMode(cfg.Formatter.Mode)

	var dirs []catalog.DataDir
	for _, d := range cfg.Data.Dirs {
		dirs = append(dirs, catalog.DataDir{Path: d, Recursive: cfg.Data.Recursive, Patterns: cfg.Data.Patterns})
	}

	cat := catalog.New(st,
		catalog.WithLogger(log),
		catalog.WithLLM(client),
		catalog.WithEmbedder(embedder),
		catalog.WithMetrics(m),
		catalog.WithMode(mode),
		catalog.WithDataDirs(dirs...),
		catalog.WithContextOptions(datacontext.Options{
			MaxDistinct: cfg.Context.MaxDistinct,
			SampleRows:  cfg.Context.SampleRows,
			MaxChars:    cfg.Context.MaxChars,
		}),
	)

	log.Debug("askdata ready",
		zap.String("store", cfg.Store.Kind),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("metrics", cfg.Metrics.Backend),
		zap.Int("data_dirs", len(dirs)),
	)
	return &app{cfg: cfg, log: log, store: st, metrics: m, cat: cat}, nil
}

// newMetrics picks the metrics backend. A Datadog backend submits what it
// buffered when the app closes.
func newMetrics(ctx context.Context, mc config.MetricsConfig, log *zap.Logger) metrics.Backend {
	switch mc.Backend {
	case "datadog":
		tags := append([]string(nil), mc.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		log.Info("metrics enabled", zap.String("backend", "datadog"), zap.Strings("tags", tags))
		return datadog.NewBackend(ctx, datadog.Options{JobName: "askdata", Tags: tags})
	case "", "none":
		return metrics.Nop{}
	default:
		log.Warn("unknown metrics backend; metrics disabled", zap.String("backend", mc.Backend))
		return metrics.Nop{}
	}
}

func (a *app) close() {
	if err := a.metrics.Close(); err != nil {
		a.log.Warn("metrics close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", zap.Error(err))
	}
	_ = a.log.Sync()
}
