package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinical-search-api/internal/ai"
	"clinical-search-api/internal/auth"
	"clinical-search-api/internal/config"
	"clinical-search-api/internal/embcache"
	"clinical-search-api/internal/logger"
	"clinical-search-api/internal/queue"
	"clinical-search-api/internal/scheduler"
	"clinical-search-api/internal/search"
	"clinical-search-api/internal/telemetry"
	"clinical-search-api/middleware"
	"clinical-search-api/routes"
	"clinical-search-api/services"
	"clinical-search-api/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracer:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}
	telemetry.RegisterPrometheus()

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Redis backs rate limiting, admin token revocation and the task queue.
	// Without it those features are disabled rather than fatal.
	var rdb redis.UniversalClient
	if client, err := config.NewRedisClient(cfg); err != nil {
		logger.Warn("Redis unavailable, running without rate limiting and background jobs", "error", err)
	} else {
		rdb = client
		defer client.Close()
	}

	embedder, closeEmbedder, err := ai.NewEmbedder(context.Background(), cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize embeddings provider:", err)
	}
	defer closeEmbedder()

	store, err := embcache.NewStore(cfg.EmbeddingCacheBackend, db, rdb, embedder.Model())
	if err != nil {
		log.Fatal("Failed to initialize embedding cache:", err)
	}
	cache := embcache.New(embedder, store, telemetry.EmbeddingCacheTotal, logger.L())

	searchService := services.NewSearchService(
		search.NewCompiler(cache),
		services.NewMongoExecutor(db, metrics),
		metrics,
	)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(cfg.ServiceName))
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.Compression(cfg.CompressMinSize))
	router.Use(middleware.RequestSizeLimit(cfg.MaxRequestBytes))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitReqs, time.Duration(cfg.RateLimitWindow)*time.Second))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()

		if err := mongoClient.Ping(ctx, nil); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.SetupSearchRoutes(router, searchService, cfg.RequestTimeout)

	if cfg.AdminEnabled {
		var tokenStore auth.TokenStore
		var enqueuer routes.TaskEnqueuer
		if rdb != nil {
			tokenStore = auth.NewRedisTokenStore(rdb)

			redisOpt, err := config.RedisOptions(cfg)
			if err != nil {
				log.Fatal("Failed to parse Redis options:", err)
			}
			queueClient := asynq.NewClient(queue.RedisClientOpt(redisOpt))
			defer queueClient.Close()
			enqueuer = queueClient
		}

		issuer, err := auth.NewTokenIssuer(cfg.AdminSecret, cfg.AdminTokenTTL, tokenStore)
		if err != nil {
			log.Fatal("Failed to initialize admin tokens:", err)
		}
		routes.SetupAdminRoutes(router, issuer, cache, enqueuer)
	}

	jobs := scheduler.NewScheduler()
	if err := jobs.ScheduleInterval("embedding-cache-gauge", cfg.CacheStatsInterval,
		scheduler.CacheGaugeJob(cache, telemetry.EmbeddingCacheEntries, utils.DefaultTimeout)); err != nil {
		log.Fatal("Failed to schedule cache gauge:", err)
	}
	jobs.Start()
	defer jobs.Stop()

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "provider", cfg.EmbeddingsProvider, "cache", cfg.EmbeddingCacheBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
