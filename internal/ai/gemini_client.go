package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinical-search-api/internal/logger"
	"clinical-search-api/internal/telemetry"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

const providerGoogle = "google"

// GeminiConfig holds the Google embedding settings.
type GeminiConfig struct {
	APIKey        string
	Model         string
	RatePerSecond float64
	Burst         int
	// Metrics receives breaker state changes; may be nil.
	Metrics *telemetry.Metrics
}

type embedFunc func(ctx context.Context, text string) ([]float32, error)

// GeminiEmbedder calls the Gemini embedding model behind a rate limiter and a
// circuit breaker. Calls are single-shot: an open breaker fails fast.
type GeminiEmbedder struct {
	client      *genai.Client
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	call        embedFunc
}

func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}

	em := client.EmbeddingModel(cfg.Model)
	call := func(ctx context.Context, text string) ([]float32, error) {
		resp, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil {
			return nil, fmt.Errorf("no embedding returned")
		}
		// genai SDK returns []float32 for Embedding.Values
		return resp.Embedding.Values, nil
	}

	g := newGeminiEmbedder(cfg, call)
	g.client = client
	return g, nil
}

func newGeminiEmbedder(cfg GeminiConfig, call embedFunc) *GeminiEmbedder {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 25
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiEmbeddings",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			cfg.Metrics.RecordCircuitBreakerState(name, to.String())
		},
	})

	return &GeminiEmbedder{
		model:       cfg.Model,
		breaker:     breaker,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), burst),
		call:        call,
	}
}

func (g *GeminiEmbedder) Model() string { return g.model }

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_content")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int("gemini.input_chars", len(text)),
	)

	if err := g.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbeddingProvider, err)
	}

	start := time.Now()
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.call(ctx, text)
	})
	elapsed := time.Since(start)

	if err != nil {
		telemetry.EmbeddingRequestsTotal.WithLabelValues(providerGoogle, g.model, "error").Inc()
		span.SetAttributes(attribute.Bool("gemini.error", true))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return nil, fmt.Errorf("%w: circuit breaker open: %w", ErrEmbeddingProvider, err)
		}
		span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingProvider, err)
	}

	telemetry.EmbeddingRequestsTotal.WithLabelValues(providerGoogle, g.model, "success").Inc()
	telemetry.EmbeddingRequestDuration.WithLabelValues(providerGoogle, g.model).Observe(elapsed.Seconds())

	vec := result.([]float32)
	span.SetAttributes(attribute.Int("gemini.dimensions", len(vec)))
	return vec, nil
}

// Close the client
func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
