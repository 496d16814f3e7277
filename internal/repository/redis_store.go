package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"concierge-agent/internal/domain"
)

const redisKeyPrefix = "concierge:memory:"

// RedisStore keeps each conversation as a Redis list of JSON-encoded entries.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisClient opens a client and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("repository: redis ping failed: %w", err)
	}
	return rdb, nil
}

// NewRedisStore creates a Redis-backed memory store. Lists expire ttl after
// their last append; a zero ttl keeps them forever.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	if ttl < 0 {
		return nil, errors.New("repository: ttl must not be negative")
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func redisKey(conversationID string) string {
	return redisKeyPrefix + conversationID
}

func (s *RedisStore) History(ctx context.Context, conversationID string, window int) ([]domain.MemoryEntry, error) {
	start := int64(0)
	if window > 0 {
		start = -int64(window)
	}
	raw, err := s.rdb.LRange(ctx, redisKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: History lrange: %w", err)
	}
	entries := make([]domain.MemoryEntry, 0, len(raw))
	for i, r := range raw {
		var e domain.MemoryEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("repository: History decode entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Append(ctx context.Context, conversationID string, entry domain.MemoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("repository: Append encode: %w", err)
	}
	key := redisKey(conversationID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("repository: Append rpush: %w", err)
	}
	return nil
}
