package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"clinical-search-api/internal/config"
	"clinical-search-api/internal/search"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  create-search-indexes  - Create the Atlas Search and Vector Search indexes")
		fmt.Println("  list-search-indexes    - Show the search indexes of each collection")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.DBName)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch command {
	case "create-search-indexes":
		if err := createSearchIndexes(ctx, db, cfg.VectorDimensions); err != nil {
			log.Fatalf("Index creation failed: %v", err)
		}
		fmt.Println("Search index creation submitted; Atlas builds them asynchronously.")

	case "list-search-indexes":
		if err := listSearchIndexes(ctx, db); err != nil {
			log.Fatalf("Listing failed: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func createSearchIndexes(ctx context.Context, db *mongo.Database, dimensions int) error {
	for _, d := range search.Domains {
		view := db.Collection(d.Collection).SearchIndexes()
		for _, def := range d.IndexDefinitions(dimensions) {
			name, err := view.CreateOne(ctx, mongo.SearchIndexModel{
				Definition: def.Definition,
				Options:    options.SearchIndexes().SetName(def.Name).SetType(def.Type),
			})
			var cmdErr mongo.CommandError
			if errors.As(err, &cmdErr) && cmdErr.Name == "IndexAlreadyExists" {
				fmt.Printf("  %s.%s already exists, skipping\n", d.Collection, def.Name)
				continue
			}
			if err != nil {
				return fmt.Errorf("create %s on %s: %w", def.Name, d.Collection, err)
			}
			fmt.Printf("  created %s index %s on %s\n", def.Type, name, d.Collection)
		}
	}
	return nil
}

func listSearchIndexes(ctx context.Context, db *mongo.Database) error {
	for _, d := range search.Domains {
		cursor, err := db.Collection(d.Collection).SearchIndexes().List(ctx, nil)
		if err != nil {
			return fmt.Errorf("list indexes on %s: %w", d.Collection, err)
		}
		var indexes []bson.M
		if err := cursor.All(ctx, &indexes); err != nil {
			return err
		}
		fmt.Printf("%s:\n", d.Collection)
		for _, idx := range indexes {
			fmt.Printf("  %v (%v) status=%v\n", idx["name"], idx["type"], idx["status"])
		}
	}
	return nil
}
