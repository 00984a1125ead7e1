package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiEmbedder_Success(t *testing.T) {
	var seen []string
	g := newGeminiEmbedder(GeminiConfig{Model: "text-embedding-004", RatePerSecond: 1000, Burst: 10},
		func(_ context.Context, text string) ([]float32, error) {
			seen = append(seen, text)
			return []float32{0.5, 0.25}, nil
		})

	vec, err := g.Embed(context.Background(), "aspirin")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
	assert.Equal(t, []string{"aspirin"}, seen)
	assert.Equal(t, "text-embedding-004", g.Model())
}

func TestGeminiEmbedder_BreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	g := newGeminiEmbedder(GeminiConfig{Model: "m", RatePerSecond: 1000, Burst: 10},
		func(context.Context, string) ([]float32, error) {
			calls++
			return nil, errors.New("quota exceeded")
		})

	for i := 0; i < 3; i++ {
		_, err := g.Embed(context.Background(), "x")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmbeddingProvider))
	}
	assert.Equal(t, 3, calls)

	_, err := g.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingProvider))
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, 3, calls, "open breaker must not reach the provider")
}

func TestGeminiEmbedder_CanceledContext(t *testing.T) {
	g := newGeminiEmbedder(GeminiConfig{Model: "m", RatePerSecond: 0.001, Burst: 1},
		func(context.Context, string) ([]float32, error) { return []float32{1}, nil })

	_, err := g.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Embed(ctx, "second")
	assert.True(t, errors.Is(err, ErrEmbeddingProvider))
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, float64(3), body["dimensions"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-model",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "test-model", Dimensions: 3})
	vec, err := e.Embed(context.Background(), "ibuprofen")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: server.URL, Model: "m"})
	_, err := e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingProvider))
}
