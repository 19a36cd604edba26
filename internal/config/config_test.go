package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "askdata.yaml")
	body := `
data:
  dirs: [./data, ./more]
  recursive: true
  patterns: ["*.xlsx"]
store:
  kind: sqlite
  dsn: askdata.db
llm:
  provider: ollama
  model: llama3
  timeout: 30s
context:
  max_chars: 20000
formatter:
  mode: executive
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadWith(p, envMap(nil))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}

	if !reflect.DeepEqual(cfg.Data.Dirs, []string{"./data", "./more"}) || !cfg.Data.Recursive {
		t.Fatalf("data = %+v", cfg.Data)
	}
	if cfg.Store.DSN != "askdata.db" || cfg.LLM.Provider != "ollama" || cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Context.MaxChars != 20000 || cfg.Context.MaxDistinct != 50 {
		t.Fatalf("context = %+v, want max_chars override and default max_distinct", cfg.Context)
	}
	if cfg.Formatter.Mode != "executive" {
		t.Fatalf("mode = %q", cfg.Formatter.Mode)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := LoadWith(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil)); err == nil {
		t.Fatalf("Load(missing) succeeded, want error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		env   map[string]string
		check func(*Config) bool
	}{
		{
			name:  "gemini key selects gemini",
			env:   map[string]string{"GEMINI_API_KEY": "k"},
			check: func(c *Config) bool { return c.LLM.Provider == "gemini" && c.LLM.APIKey == "k" },
		},
		{
			name:  "explicit provider wins over key",
			env:   map[string]string{"GEMINI_API_KEY": "k", "ASKDATA_LLM_PROVIDER": "none"},
			check: func(c *Config) bool { return c.LLM.Provider == "none" },
		},
		{
			name:  "ollama host",
			env:   map[string]string{"ASKDATA_LLM_PROVIDER": "ollama", "OLLAMA_HOST": "http://gpu:11434"},
			check: func(c *Config) bool { return c.LLM.Endpoint == "http://gpu:11434" },
		},
		{
			name: "lists and numbers",
			env: map[string]string{
				"ASKDATA_DATA_DIRS":            "a, b,,c",
				"ASKDATA_CONTEXT_MAX_DISTINCT": "20",
				"ASKDATA_DATA_RECURSIVE":       "true",
				"ASKDATA_LLM_TIMEOUT":          "5s",
			},
			check: func(c *Config) bool {
				return reflect.DeepEqual(c.Data.Dirs, []string{"a", "b", "c"}) &&
					c.Context.MaxDistinct == 20 && c.Data.Recursive && c.LLM.Timeout == 5*time.Second
			},
		},
		{
			name:  "blank values ignored",
			env:   map[string]string{"ASKDATA_STORE_DSN": "  "},
			check: func(c *Config) bool { return c.Store.DSN == ":memory:" },
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			if err := ApplyEnv(cfg, envMap(tt.env)); err != nil {
				t.Fatalf("ApplyEnv: %v", err)
			}
			if !tt.check(cfg) {
				t.Fatalf("ApplyEnv(%v) = %+v", tt.env, cfg)
			}
		})
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	t.Parallel()
	err := ApplyEnv(Default(), envMap(map[string]string{"ASKDATA_CONTEXT_MAX_CHARS": "lots"}))
	if err == nil {
		t.Fatalf("ApplyEnv(bad number) = nil, want error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mutate     func(*Config)
		wantPath   string
		wantErrors bool
	}{
		{"defaults", func(*Config) {}, "", false},
		{"bad store", func(c *Config) { c.Store.Kind = "oracle" }, "store.kind", true},
		{"gemini without key", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.api_key", true},
		{"bad pattern", func(c *Config) { c.Data.Patterns = []string{"["} }, "data.patterns[0]", true},
		{"unknown mode warns", func(c *Config) { c.Formatter.Mode = "poetic" }, "formatter.mode", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			issues := Validate(cfg)
			if got := HasErrors(issues); got != tt.wantErrors {
				t.Fatalf("HasErrors = %v, want %v (%v)", got, tt.wantErrors, issues)
			}
			if tt.wantPath == "" {
				if len(issues) != 0 {
					t.Fatalf("issues = %v, want none", issues)
				}
				return
			}
			found := false
			for _, i := range issues {
				found = found || i.Path == tt.wantPath
			}
			if !found {
				t.Fatalf("issues = %v, want one at %s", issues, tt.wantPath)
			}
		})
	}
}
