package embcache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection holds memoized query embeddings in the mongo backend.
const Collection = "embedding_cache"

// NewStore picks the cache backend by name ("mongo" or "redis").
func NewStore(backend string, db *mongo.Database, rdb redis.UniversalClient, model string) (Store, error) {
	switch backend {
	case "", "mongo":
		if db == nil {
			return nil, fmt.Errorf("mongo embedding cache needs a database")
		}
		return NewMongoStore(db.Collection(Collection), model), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis embedding cache needs a Redis connection")
		}
		return NewRedisStore(rdb), nil
	default:
		return nil, fmt.Errorf("unknown embedding cache backend %q", backend)
	}
}
