// Package embcache memoizes query embeddings so each distinct query text is sent
// to the embedding provider at most once.
package embcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"clinical-search-api/models"
	"clinical-search-api/utils"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// ErrMiss is returned by a Store when no entry exists for the text.
var ErrMiss = errors.New("embedding cache miss")

// Provider computes embeddings on a miss.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store persists normalized text to vector entries.
type Store interface {
	Lookup(ctx context.Context, text string) ([]float32, error)
	Insert(ctx context.Context, text string, vec []float32) error
}

// Stats is implemented by stores that can report their size.
type Stats interface {
	Count(ctx context.Context) (int64, error)
	Backend() string
}

// Cache is a read-through embedding cache. Concurrent misses on the same text
// within one process share a single provider call.
type Cache struct {
	provider   Provider
	store      Store
	group      singleflight.Group
	cacheTotal *prometheus.CounterVec
	logger     *slog.Logger
}

// New creates the cache. cacheTotal is a counter vec with label "result"
// ("hit"/"miss") and may be nil.
func New(provider Provider, store Store, cacheTotal *prometheus.CounterVec, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		provider:   provider,
		store:      store,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Normalize is the cache key form of a query text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// GetEmbedding returns the vector for text, consulting the store first.
func (c *Cache) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := Normalize(text)

	ctx, span := otel.Tracer("embcache").Start(ctx, "embcache.get")
	defer span.End()

	if vec, ok := c.lookup(ctx, key); ok {
		c.inc("hit")
		span.SetAttributes(attribute.Bool("embcache.hit", true))
		return vec, nil
	}

	res, shared, err := c.flight(ctx, key)
	span.SetAttributes(attribute.Bool("embcache.shared", shared))
	if err != nil {
		c.inc("miss")
		return nil, err
	}
	if res.computed {
		c.inc("miss")
	} else {
		c.inc("hit")
	}
	span.SetAttributes(attribute.Bool("embcache.hit", !res.computed))
	return res.vec, nil
}

type flightResult struct {
	vec      []float32
	computed bool
}

// flight resolves key once per process for all concurrent callers. The shared
// work ignores the starting caller's cancellation and is bounded by
// utils.DefaultTimeout instead.
func (c *Cache) flight(ctx context.Context, key string) (flightResult, bool, error) {
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), utils.DefaultTimeout)
		defer cancel()

		// A flight that finished after the caller's lookup may already have stored it.
		if vec, ok := c.lookup(fctx, key); ok {
			return flightResult{vec: vec}, nil
		}

		vec, err := c.provider.Embed(fctx, key)
		if err != nil {
			return nil, fmt.Errorf("embed text: %w", err)
		}
		if err := c.store.Insert(fctx, key, vec); err != nil {
			c.logger.Warn("Failed to cache embedding", "error", err, "text_len", len(key))
		}
		return flightResult{vec: vec, computed: true}, nil
	})
	if err != nil {
		return flightResult{}, shared, err
	}
	return v.(flightResult), shared, nil
}

// Warm computes and stores embeddings for texts that are not cached yet. It
// returns the number of texts that required a provider call.
func (c *Cache) Warm(ctx context.Context, texts []string) (int, error) {
	computed := 0
	for _, t := range texts {
		key := Normalize(t)
		if key == "" {
			continue
		}
		res, _, err := c.flight(ctx, key)
		if err != nil {
			return computed, err
		}
		if res.computed {
			computed++
		}
	}
	return computed, nil
}

// Stats reports the backing store's entry count.
func (c *Cache) Stats(ctx context.Context) (models.EmbeddingCacheStats, error) {
	st, ok := c.store.(Stats)
	if !ok {
		return models.EmbeddingCacheStats{}, errors.New("embedding cache store does not report stats")
	}
	n, err := st.Count(ctx)
	if err != nil {
		return models.EmbeddingCacheStats{}, err
	}
	return models.EmbeddingCacheStats{Backend: st.Backend(), Entries: n}, nil
}

func (c *Cache) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, err := c.store.Lookup(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Failed to read cached embedding", "error", err)
		}
		return nil, false
	}
	if len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
