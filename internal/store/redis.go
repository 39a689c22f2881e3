package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"coindash-bot/internal/config"
	"coindash-bot/internal/model"
)

// RedisStore is a Redis-backed ScoreStore. Each context maps to one hash
// keyed by player id; a record is one JSON field value, so an HSet replaces
// it in a single step and readers never see a torn record.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// contextKey returns the Redis key holding a context's records.
func (s *RedisStore) contextKey(contextID string) string {
	return fmt.Sprintf("scores:%s", contextID)
}

// Get returns the record for the key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, contextID string, playerID int64) (*model.PlayerRecord, error) {
	data, err := s.client.HGet(ctx, s.contextKey(contextID), strconv.FormatInt(playerID, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get player record: %w", err)
	}

	var rec model.PlayerRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode player record: %w", err)
	}
	return &rec, nil
}

// Upsert inserts or replaces the record for its key.
func (s *RedisStore) Upsert(ctx context.Context, rec *model.PlayerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode player record: %w", err)
	}

	field := strconv.FormatInt(rec.PlayerID, 10)
	if err := s.client.HSet(ctx, s.contextKey(rec.ContextID), field, data).Err(); err != nil {
		return fmt.Errorf("failed to store player record: %w", err)
	}
	return nil
}

// ListByContext returns all records in a context.
func (s *RedisStore) ListByContext(ctx context.Context, contextID string) ([]*model.PlayerRecord, error) {
	values, err := s.client.HGetAll(ctx, s.contextKey(contextID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list player records: %w", err)
	}

	records := make([]*model.PlayerRecord, 0, len(values))
	for _, data := range values {
		var rec model.PlayerRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode player record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}
