package embcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinical-search-api/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoStore keeps entries in the embedding_cache collection. Entries are
// append-only; duplicates for the same text are harmless and the first match wins.
type MongoStore struct {
	coll  *mongo.Collection
	model string
	now   func() time.Time
}

func NewMongoStore(coll *mongo.Collection, model string) *MongoStore {
	return &MongoStore{coll: coll, model: model, now: time.Now}
}

func (s *MongoStore) Lookup(ctx context.Context, text string) ([]float32, error) {
	var entry models.EmbeddingCacheEntry
	err := s.coll.FindOne(ctx, bson.M{"text": text}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("find cached embedding: %w", err)
	}
	return entry.Vector, nil
}

func (s *MongoStore) Insert(ctx context.Context, text string, vec []float32) error {
	entry := models.EmbeddingCacheEntry{
		Text:      text,
		Vector:    vec,
		Model:     s.model,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert cached embedding: %w", err)
	}
	return nil
}

// Count returns the approximate number of stored entries.
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count cached embeddings: %w", err)
	}
	return n, nil
}

func (s *MongoStore) Backend() string { return "mongo" }
