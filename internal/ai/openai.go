package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinical-search-api/internal/telemetry"

	openai "github.com/sashabaranov/go-openai"
)

const providerOpenAI = "openai"

// OpenAIConfig holds the settings of an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIEmbedder is the alternative provider, selected with EMBEDDINGS_PROVIDER=openai.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}
}

func (e *OpenAIEmbedder) Model() string { return string(e.model) }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		telemetry.EmbeddingRequestsTotal.WithLabelValues(providerOpenAI, string(e.model), "error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		telemetry.EmbeddingRequestsTotal.WithLabelValues(providerOpenAI, string(e.model), "error").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", ErrEmbeddingProvider)
	}

	telemetry.EmbeddingRequestsTotal.WithLabelValues(providerOpenAI, string(e.model), "success").Inc()
	telemetry.EmbeddingRequestDuration.WithLabelValues(providerOpenAI, string(e.model)).Observe(time.Since(start).Seconds())
	return resp.Data[0].Embedding, nil
}

// parseAPIError extracts a readable message and wraps ErrEmbeddingProvider.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		var body struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(reqErr.Body, &body) == nil && body.Detail != "" {
			return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, body.Detail, ErrEmbeddingProvider)
		}
		return fmt.Errorf("embedding API error %d: %w", reqErr.HTTPStatusCode, ErrEmbeddingProvider)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, ErrEmbeddingProvider)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, ErrEmbeddingProvider)
}
