package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Nested documents decode as maps so search results serialize as plain JSON objects.
	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	// Create indexes
	err = createIndexes(ctx, client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return client, nil
}

func createIndexes(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Lookups are by exact normalized text. Not unique: concurrent replicas may
	// both insert the same text and either copy is valid.
	cacheIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "text", Value: 1}}},
	}
	if _, err := db.Collection("embedding_cache").Indexes().CreateMany(ctx, cacheIndexes); err != nil {
		return err
	}

	// Get-by-id lookups
	trialIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "nct_id", Value: 1}}},
	}
	if _, err := db.Collection("trials").Indexes().CreateMany(ctx, trialIndexes); err != nil {
		return err
	}

	drugIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}},
	}
	if _, err := db.Collection("drug_data").Indexes().CreateMany(ctx, drugIndexes); err != nil {
		return err
	}

	return nil
}
