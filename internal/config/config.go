package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Request handling
	RequestTimeout  time.Duration
	MaxRequestBytes int64
	RateLimitReqs   int
	RateLimitWindow int
	CompressMinSize int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default), "openai"
	GeminiAPIKey          string
	GoogleEmbeddingsModel string // e.g., "text-embedding-004"
	OpenAIAPIKey          string
	OpenAIEmbeddingsModel string
	VectorDimensions      int
	EmbedRatePerSecond    float64
	EmbedBurst            int

	// Embedding cache
	EmbeddingCacheBackend string // "mongo" (default), "redis"

	// Admin surface
	AdminEnabled  bool
	AdminSecret   string
	AdminTokenTTL time.Duration

	// Background jobs
	WorkerConcurrency  int
	CacheStatsInterval time.Duration

	// Telemetry
	OTLPEndpoint string
	ServiceName  string
}

// LoadConfig reads the environment (and .env when present) and validates it.
func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the process environment without validating it.
func FromEnv() *Config {
	return &Config{
		MongoURI:    getEnv("MONGO_URI", ""),
		DBName:      getEnv("DB_NAME", "clinical_search"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "release"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestBytes: getEnvInt64("MAX_REQUEST_BYTES", 1<<20),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),
		CompressMinSize: getEnvInt("COMPRESS_MIN_SIZE", 1000),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Embeddings
		EmbeddingsProvider:    strings.ToLower(getEnv("EMBEDDINGS_PROVIDER", "google")),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		VectorDimensions:      getEnvInt("VECTOR_DIM", 768),
		EmbedRatePerSecond:    getEnvFloat64("EMBED_RATE_PER_SECOND", 25),
		EmbedBurst:            getEnvInt("EMBED_BURST", 5),

		EmbeddingCacheBackend: strings.ToLower(getEnv("EMBEDDING_CACHE_BACKEND", "mongo")),

		AdminEnabled:  getEnvBool("ADMIN_ENABLED", false),
		AdminSecret:   getEnv("ADMIN_SECRET", ""),
		AdminTokenTTL: getEnvDuration("ADMIN_TOKEN_TTL", time.Hour),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 5),
		CacheStatsInterval: getEnvDuration("CACHE_STATS_INTERVAL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "clinical-search-api"),
	}
}

// Validate checks required keys.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required - set it in .env file")
	}

	switch c.EmbeddingsProvider {
	case "google", "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EMBEDDINGS_PROVIDER=%s", c.EmbeddingsProvider)
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDINGS_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unsupported EMBEDDINGS_PROVIDER %q", c.EmbeddingsProvider)
	}

	switch c.EmbeddingCacheBackend {
	case "mongo", "redis":
	default:
		return fmt.Errorf("unsupported EMBEDDING_CACHE_BACKEND %q", c.EmbeddingCacheBackend)
	}

	if c.AdminEnabled && len(c.AdminSecret) < 32 {
		return fmt.Errorf("ADMIN_SECRET must be at least 32 characters when ADMIN_ENABLED=true")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
