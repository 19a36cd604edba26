package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"askdata/internal/formatter"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path names the offending key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

var (
	storeKinds  = map[string]bool{"sqlite": true, "postgres": true, "mssql": true}
	providers   = map[string]bool{"none": true, "gemini": true, "ollama": true}
	metricKinds = map[string]bool{"none": true, "datadog": true}
	logFormats  = map[string]bool{"console": true, "json": true}
	logLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate reports every problem in cfg. Warnings do not stop startup.
func Validate(cfg *Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !storeKinds[cfg.Store.Kind] {
		add(SeverityError, "store.kind", "unsupported kind %q (want sqlite, postgres or mssql)", cfg.Store.Kind)
	}
	if cfg.Store.DSN == "" {
		add(SeverityError, "store.dsn", "must not be empty")
	}

	provider := strings.ToLower(cfg.LLM.Provider)
	switch {
	case provider == "":
	case !providers[provider]:
		add(SeverityError, "llm.provider", "unsupported provider %q (want none, gemini or ollama)", cfg.LLM.Provider)
	case provider == "gemini" && cfg.LLM.APIKey == "":
		add(SeverityError, "llm.api_key", "required for gemini (or set GEMINI_API_KEY)")
	}
	if cfg.LLM.Timeout < 0 {
		add(SeverityError, "llm.timeout", "must not be negative")
	}

	if cfg.Context.MaxDistinct < 0 {
		add(SeverityError, "context.max_distinct", "must not be negative")
	}
	if cfg.Context.SampleRows < 0 {
		add(SeverityError, "context.sample_rows", "must not be negative")
	}
	if cfg.Context.MaxChars < 0 {
		add(SeverityError, "context.max_chars", "must not be negative")
	}

	if _, ok := formatter.ParseMode(cfg.Formatter.Mode); !ok {
		add(SeverityWarning, "formatter.mode", "unknown mode %q, using standard", cfg.Formatter.Mode)
	}
	if !metricKinds[cfg.Metrics.Backend] {
		add(SeverityWarning, "metrics.backend", "unknown backend %q, metrics disabled", cfg.Metrics.Backend)
	}
	if !logLevels[strings.ToLower(cfg.Log.Level)] {
		add(SeverityWarning, "log.level", "unknown level %q, using info", cfg.Log.Level)
	}
	if !logFormats[cfg.Log.Format] {
		add(SeverityWarning, "log.format", "unknown format %q, using console", cfg.Log.Format)
	}

	for i, p := range cfg.Data.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			add(SeverityError, fmt.Sprintf("data.patterns[%d]", i), "bad pattern %q: %v", p, err)
		}
	}
	for i, d := range cfg.Data.Dirs {
		if strings.TrimSpace(d) == "" {
			add(SeverityError, fmt.Sprintf("data.dirs[%d]", i), "must not be empty")
		}
	}
	if len(cfg.Data.Dirs) > 0 && cfg.Store.Kind == "sqlite" && cfg.Store.DSN == ":memory:" {
		add(SeverityWarning, "store.dsn", "in-memory store: data is reloaded on every start")
	}
	return out
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
