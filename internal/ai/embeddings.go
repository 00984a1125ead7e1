package ai

import (
	"context"
	"errors"
	"fmt"

	"clinical-search-api/internal/config"
	"clinical-search-api/internal/telemetry"
)

// ErrEmbeddingProvider marks every failure reported by an embedding backend.
var ErrEmbeddingProvider = errors.New("embedding provider error")

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// NewEmbedder returns the provider selected by EMBEDDINGS_PROVIDER.
// Default provider is Google Generative AI (text-embedding-004).
func NewEmbedder(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (Embedder, func() error, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "gemini", "":
		if cfg.GeminiAPIKey == "" {
			return nil, nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
		}
		e, err := NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey:        cfg.GeminiAPIKey,
			Model:         cfg.GoogleEmbeddingsModel,
			RatePerSecond: cfg.EmbedRatePerSecond,
			Burst:         cfg.EmbedBurst,
			Metrics:       metrics,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil

	case "openai":
		e := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIEmbeddingsModel,
			Dimensions: cfg.VectorDimensions,
		})
		return e, func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}
