// Package llm holds the text-completion and embedding contracts used by
// query generation and response rendering, with Gemini and Ollama adapters.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDisabled is returned by Disabled and by New when no provider is set.
var ErrDisabled = errors.New("llm: disabled")

// Client completes a prompt. Calls are single blocking round trips with no
// retry; callers decide what to do on failure.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Disabled is a Client that always fails with ErrDisabled, which sends every
// caller down its deterministic fallback path.
type Disabled struct{}

func (Disabled) Generate(context.Context, string) (string, error) { return "", ErrDisabled }

// IsEnabled reports whether c can produce text at all.
func IsEnabled(c Client) bool {
	if c == nil {
		return false
	}
	_, off := c.(Disabled)
	return !off
}

// Providers.
const (
	ProviderNone   = "none"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Config selects and configures a provider.
type Config struct {
	Provider       string
	Model          string
	Endpoint       string
	APIKey         string
	Timeout        time.Duration
	EmbeddingModel string
}

// New builds the client and, when an embedding model is configured, the
// embedder for cfg.Provider. Provider "none" (or empty) yields Disabled and
// a nil Embedder.
func New(cfg Config) (Client, Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderNone:
		return Disabled{}, nil, nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, nil, fmt.Errorf("llm: gemini requires an api key")
		}
		g := NewGemini(cfg)
		if cfg.EmbeddingModel == "" {
			return g, nil, nil
		}
		return g, g, nil
	case ProviderOllama:
		o := NewOllama(cfg)
		if cfg.EmbeddingModel == "" {
			return o, nil, nil
		}
		return o, o, nil
	default:
		return nil, nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
