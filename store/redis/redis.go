package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/ragchat/store"
)

// RedisHistoryStore implements store.HistoryStore using Redis
type RedisHistoryStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ store.HistoryStore = (*RedisHistoryStore)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "ragchat:"
	TTL      time.Duration // Expiration for exchanges, default 0 (no expiration)
}

// NewRedisHistoryStore creates a new Redis history store
func NewRedisHistoryStore(opts RedisOptions) *RedisHistoryStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisHistoryStoreWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisHistoryStoreWithClient creates a history store on an existing client
func NewRedisHistoryStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisHistoryStore {
	if prefix == "" {
		prefix = "ragchat:"
	}
	return &RedisHistoryStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the client
func (s *RedisHistoryStore) Close() error {
	return s.client.Close()
}

func (s *RedisHistoryStore) exchangeKey(id string) string {
	return fmt.Sprintf("%sexchange:%s", s.prefix, id)
}

func (s *RedisHistoryStore) indexKey() string {
	return s.prefix + "exchanges"
}

// Save stores an exchange
func (s *RedisHistoryStore) Save(ctx context.Context, exchange *store.Exchange) error {
	data, err := json.Marshal(exchange)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.exchangeKey(exchange.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(exchange.CreatedAt.UnixNano()),
		Member: exchange.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save exchange to redis: %w", err)
	}
	return nil
}

// Load retrieves an exchange by ID
func (s *RedisHistoryStore) Load(ctx context.Context, id string) (*store.Exchange, error) {
	data, err := s.client.Get(ctx, s.exchangeKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load exchange from redis: %w", err)
	}

	var exchange store.Exchange
	if err := json.Unmarshal(data, &exchange); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exchange: %w", err)
	}
	return &exchange, nil
}

// List returns the newest exchanges first. Index entries whose exchange
// has expired are skipped.
func (s *RedisHistoryStore) List(ctx context.Context, limit int) ([]*store.Exchange, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(store.Limit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}

	exchanges := []*store.Exchange{}
	if len(ids) == 0 {
		return exchanges, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.exchangeKey(id)
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchanges: %w", err)
	}

	for _, result := range results {
		data, ok := result.(string)
		if !ok {
			continue
		}
		var exchange store.Exchange
		if err := json.Unmarshal([]byte(data), &exchange); err != nil {
			return nil, fmt.Errorf("failed to unmarshal exchange: %w", err)
		}
		exchanges = append(exchanges, &exchange)
	}
	return exchanges, nil
}

// Delete removes an exchange
func (s *RedisHistoryStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.exchangeKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete exchange: %w", err)
	}
	return nil
}

// Clear removes every exchange
func (s *RedisHistoryStore) Clear(ctx context.Context) error {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get exchanges for clearing: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.exchangeKey(id))
	}
	pipe.Del(ctx, s.indexKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear exchanges: %w", err)
	}
	return nil
}
