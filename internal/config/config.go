// Package config loads askdata settings from YAML and the environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Data      DataConfig      `yaml:"data"`
	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	Context   ContextConfig   `yaml:"context"`
	Formatter FormatterConfig `yaml:"formatter"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type DataConfig struct {
	Dirs      []string `yaml:"dirs"`
	Recursive bool     `yaml:"recursive"`
	Patterns  []string `yaml:"patterns"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	EmbeddingModel string        `yaml:"embedding_model"`
}

type ContextConfig struct {
	MaxDistinct int `yaml:"max_distinct"`
	SampleRows  int `yaml:"sample_rows"`
	MaxChars    int `yaml:"max_chars"`
}

type FormatterConfig struct {
	Mode string `yaml:"mode"`
}

type MetricsConfig struct {
	// Backend is "none" or "datadog".
	Backend string   `yaml:"backend"`
	Tags    []string `yaml:"tags"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// Default returns the built-in settings: an in-memory SQLite store, no
// model, standard formatting and info-level console logs.
func Default() *Config {
	return &Config{
		Store:     StoreConfig{Kind: "sqlite", DSN: ":memory:"},
		LLM:       LLMConfig{Provider: "none", Timeout: 60 * time.Second},
		Context:   ContextConfig{MaxDistinct: 50, SampleRows: 10, MaxChars: 50000},
		Formatter: FormatterConfig{Mode: "standard"},
		Metrics:   MetricsConfig{Backend: "none"},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from ASKDATA_* variables, GEMINI_API_KEY and
// OLLAMA_HOST. A Gemini key with no provider configured selects Gemini.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = SplitList(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	list("ASKDATA_DATA_DIRS", &cfg.Data.Dirs)
	list("ASKDATA_DATA_PATTERNS", &cfg.Data.Patterns)
	if v, ok := lookup("ASKDATA_DATA_RECURSIVE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: ASKDATA_DATA_RECURSIVE: %w", err))
		} else {
			cfg.Data.Recursive = b
		}
	}
	str("ASKDATA_STORE_KIND", &cfg.Store.Kind)
	str("ASKDATA_STORE_DSN", &cfg.Store.DSN)

	if cfg.LLM.APIKey == "" {
		str("GEMINI_API_KEY", &cfg.LLM.APIKey)
		if cfg.LLM.APIKey != "" && (cfg.LLM.Provider == "" || cfg.LLM.Provider == "none") {
			cfg.LLM.Provider = "gemini"
		}
	}
	str("ASKDATA_LLM_PROVIDER", &cfg.LLM.Provider)
	str("ASKDATA_LLM_MODEL", &cfg.LLM.Model)
	str("ASKDATA_LLM_API_KEY", &cfg.LLM.APIKey)
	str("ASKDATA_LLM_EMBEDDING_MODEL", &cfg.LLM.EmbeddingModel)
	if cfg.LLM.Endpoint == "" && strings.EqualFold(cfg.LLM.Provider, "ollama") {
		str("OLLAMA_HOST", &cfg.LLM.Endpoint)
	}
	str("ASKDATA_LLM_ENDPOINT", &cfg.LLM.Endpoint)
	if v, ok := lookup("ASKDATA_LLM_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: ASKDATA_LLM_TIMEOUT: %w", err))
		} else {
			cfg.LLM.Timeout = d
		}
	}

	num("ASKDATA_CONTEXT_MAX_DISTINCT", &cfg.Context.MaxDistinct)
	num("ASKDATA_CONTEXT_SAMPLE_ROWS", &cfg.Context.SampleRows)
	num("ASKDATA_CONTEXT_MAX_CHARS", &cfg.Context.MaxChars)
	str("ASKDATA_FORMATTER_MODE", &cfg.Formatter.Mode)
	str("ASKDATA_METRICS_BACKEND", &cfg.Metrics.Backend)
	list("ASKDATA_METRICS_TAGS", &cfg.Metrics.Tags)
	str("ASKDATA_LOG_LEVEL", &cfg.Log.Level)
	str("ASKDATA_LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
