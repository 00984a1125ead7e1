package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "emb:"
	redisCountKey  = "emb_count"
)

// RedisStore keeps vectors as little-endian float32 bytes under emb:<sha256(text)>.
// Keys never expire.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Lookup(ctx context.Context, text string) ([]float32, error) {
	data, err := s.rdb.Get(ctx, redisKey(text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get cached embedding: %w", err)
	}
	return bytesToVector(data)
}

// Insert stores vec unless the key already exists.
func (s *RedisStore) Insert(ctx context.Context, text string, vec []float32) error {
	created, err := s.rdb.SetNX(ctx, redisKey(text), vectorToBytes(vec), 0).Result()
	if err != nil {
		return fmt.Errorf("set cached embedding: %w", err)
	}
	if created {
		if err := s.rdb.Incr(ctx, redisCountKey).Err(); err != nil {
			return fmt.Errorf("count cached embedding: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := s.rdb.Get(ctx, redisCountKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count cached embeddings: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Backend() string { return "redis" }

func redisKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return redisKeyPrefix + hex.EncodeToString(h[:])
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
