package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"concierge-agent/internal/domain"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNewRedisStore_Validates(t *testing.T) {
	_, err := NewRedisStore(nil, 0)
	require.Error(t, err)

	_, rdb := setupRedis(t)
	_, err = NewRedisStore(rdb, -time.Second)
	require.Error(t, err)
}

func TestRedisStore_AppendAndHistory(t *testing.T) {
	_, rdb := setupRedis(t)
	s, err := NewRedisStore(rdb, 0)
	require.NoError(t, err)
	ctx := context.Background()

	entries := []domain.MemoryEntry{
		{UserText: "Tell me about Inception", Summary: "plot of Inception"},
		{UserText: "Who is in it?", Summary: "cast of Inception"},
		{UserText: "Any awards?", Summary: "awards of Inception"},
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, "c1", e))
	}
	require.NoError(t, s.Append(ctx, "c2", domain.MemoryEntry{UserText: "other", Summary: "other"}))

	got, err := s.History(ctx, "c1", 0)
	require.NoError(t, err)
	require.Equal(t, entries, got)

	got, err = s.History(ctx, "c1", 2)
	require.NoError(t, err)
	require.Equal(t, entries[1:], got)

	got, err = s.History(ctx, "c1", 10)
	require.NoError(t, err)
	require.Equal(t, entries, got)

	got, err = s.History(ctx, "missing", 0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRedisStore_AppendSetsTTL(t *testing.T) {
	mr, rdb := setupRedis(t)
	s, err := NewRedisStore(rdb, time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), "c1", domain.MemoryEntry{UserText: "q", Summary: "s"}))
	require.Equal(t, time.Hour, mr.TTL(redisKey("c1")))

	mr.FastForward(2 * time.Hour)
	got, err := s.History(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	mr, rdb := setupRedis(t)
	s, err := NewRedisStore(rdb, 0)
	require.NoError(t, err)

	_, err = mr.RPush(redisKey("c1"), "not-json")
	require.NoError(t, err)

	_, err = s.History(context.Background(), "c1", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode entry 0")
}

func TestRedisStore_ConnectionFailure(t *testing.T) {
	mr, rdb := setupRedis(t)
	s, err := NewRedisStore(rdb, 0)
	require.NoError(t, err)
	mr.Close()

	_, err = s.History(context.Background(), "c1", 0)
	require.Error(t, err)
	err = s.Append(context.Background(), "c1", domain.MemoryEntry{UserText: "q"})
	require.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr, _ := setupRedis(t)

	rdb, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	require.NoError(t, rdb.Close())

	_, err = NewRedisClient(context.Background(), "127.0.0.1:1", "", 0)
	require.Error(t, err)
}
