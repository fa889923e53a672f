// Package embedding turns search text into vectors comparable with the asset
// embeddings stored alongside each asset.
package embedding

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-people/internal/config"
)

// Embedder computes a text embedding in the asset embedding space.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// ModelName identifies the model, used to scope cached vectors
	ModelName() string
}

// Provider names accepted by New.
const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// New builds the configured provider wrapped in the circuit breaker and, when
// cfg.CacheSize > 0, the LRU cache.
func New(ctx context.Context, cfg config.EmbeddingConfig, openaiCfg config.OpenAIConfig, geminiCfg config.GeminiConfig) (Embedder, error) {
	var (
		base Embedder
		err  error
	)
	switch cfg.Provider {
	case "", ProviderHTTP:
		base = NewHTTPEmbedder(cfg.URL, cfg.Model, cfg.Dim)
	case ProviderOpenAI:
		base, err = NewOpenAIEmbedder(openaiCfg.Token, cfg.Model, cfg.Dim)
	case ProviderGemini:
		base, err = NewGeminiEmbedder(ctx, geminiCfg.APIKey, cfg.Model, cfg.Dim)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (use http, openai or gemini)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	var e Embedder = NewBreakerEmbedder(base, cfg.Breaker)
	if cfg.CacheSize > 0 {
		if e, err = NewCachedEmbedder(e, cfg.CacheSize); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// checkDim rejects vectors that cannot be compared with the stored embeddings.
func checkDim(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding returned")
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), dim)
	}
	return nil
}
