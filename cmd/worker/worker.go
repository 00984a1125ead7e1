package main

import (
	"context"
	"log"

	"clinical-search-api/internal/ai"
	"clinical-search-api/internal/config"
	"clinical-search-api/internal/embcache"
	"clinical-search-api/internal/logger"
	"clinical-search-api/internal/queue"
	"clinical-search-api/internal/telemetry"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)
	telemetry.RegisterPrometheus()

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())

	redisOpt, err := config.RedisOptions(cfg)
	if err != nil {
		log.Fatal("Failed to parse Redis options:", err)
	}

	var rdb redis.UniversalClient
	if cfg.EmbeddingCacheBackend == "redis" {
		client := redis.NewClient(redisOpt)
		defer client.Close()
		rdb = client
	}

	embedder, closeEmbedder, err := ai.NewEmbedder(context.Background(), cfg, nil)
	if err != nil {
		log.Fatal("Failed to initialize embeddings provider:", err)
	}
	defer closeEmbedder()

	store, err := embcache.NewStore(cfg.EmbeddingCacheBackend, mongoClient.Database(cfg.DBName), rdb, embedder.Model())
	if err != nil {
		log.Fatal("Failed to initialize embedding cache:", err)
	}
	cache := embcache.New(embedder, store, telemetry.EmbeddingCacheTotal, logger.L())

	server := asynq.NewServer(
		queue.RedisClientOpt(redisOpt),
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueDefault: 3,
				queue.QueueLow:     1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(cache, logger.L())
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting Asynq worker",
		"concurrency", cfg.WorkerConcurrency,
		"redis", redisOpt.Addr,
		"cache", cfg.EmbeddingCacheBackend)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
