package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/ragchat/rag"
)

// RedisOptions configures a Redis connection.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	Prefix     string // Key prefix, default "ragchat:"
	Collection string // Default "vector_store"
}

// RedisStore keeps chunks as JSON strings under one key per chunk plus a set
// of IDs per collection. Searches load the collection and rank in process.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	collection string
}

var _ rag.VectorStore = (*RedisStore)(nil)

type redisRecord struct {
	Chunk  rag.Chunk `json:"chunk"`
	Vector []float32 `json:"vector"`
}

// NewRedisStore creates a store with its own client.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreWithClient(client, opts.Prefix, opts.Collection)
}

// NewRedisStoreWithClient creates a store over an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix, collection string) *RedisStore {
	if prefix == "" {
		prefix = "ragchat:"
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &RedisStore{client: client, prefix: prefix, collection: collection}
}

func (s *RedisStore) chunkKey(id string) string {
	return fmt.Sprintf("%s%s:chunk:%s", s.prefix, s.collection, id)
}

func (s *RedisStore) idsKey() string {
	return fmt.Sprintf("%s%s:ids", s.prefix, s.collection)
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// CreateCollection checks the connection; collections need no setup.
func (s *RedisStore) CreateCollection(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

// DeleteCollection removes every chunk key and the ID set.
func (s *RedisStore) DeleteCollection(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list collection %s: %w", s.collection, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.chunkKey(id))
	}
	keys = append(keys, s.idsKey())

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert writes every chunk in a single pipeline.
func (s *RedisStore) Upsert(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if err := validateUpsert(chunks, vectors); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for i, c := range chunks {
		c.ID = chunkID(c)
		c.Score = 0
		data, err := json.Marshal(redisRecord{Chunk: c, Vector: vectors[i]})
		if err != nil {
			return fmt.Errorf("failed to marshal chunk: %w", err)
		}
		pipe.Set(ctx, s.chunkKey(c.ID), data, 0)
		pipe.SAdd(ctx, s.idsKey(), c.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert chunks to redis: %w", err)
	}
	return nil
}

// SimilaritySearch loads the collection and ranks it against vector.
func (s *RedisStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]rag.Chunk, error) {
	if err := validateK(k); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", s.collection, err)
	}
	if len(ids) == 0 {
		return []rag.Chunk{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.chunkKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks from redis: %w", err)
	}

	entries := make([]entry, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec redisRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk: %w", err)
		}
		entries = append(entries, entry{chunk: rec.Chunk, vector: rec.Vector})
	}

	return rank(entries, vector, k, filter), nil
}
