package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EmbeddingCacheEntry is a memoized query embedding. Text is the normalized
// (lower-cased) query; entries are never updated.
type EmbeddingCacheEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Text      string             `bson:"text" json:"text"`
	Vector    []float32          `bson:"vector" json:"vector"`
	Model     string             `bson:"model,omitempty" json:"model,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// EmbeddingWarmRequest asks the worker to precompute embeddings.
type EmbeddingWarmRequest struct {
	Texts []string `json:"texts" binding:"required,min=1,max=500,dive,required,max=1000"`
}

// EmbeddingCacheStats summarizes the cache collection.
type EmbeddingCacheStats struct {
	Backend string `json:"backend"`
	Entries int64  `json:"entries"`
}
