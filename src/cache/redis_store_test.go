package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/config"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := &config.RedisConfig{
		Address:  mr.Addr(),
		Password: "",
		DB:       0,
	}

	store, err := NewRedisStore(cfg)
	require.NoError(t, err)

	return store, mr
}

func TestRedisStore_SetAndGet(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	err := store.Set(ctx, "some-key", []byte(`{"response":"Test"}`), time.Hour)
	assert.NoError(t, err)

	val, err := store.Get(ctx, "some-key")
	assert.NoError(t, err)
	assert.Equal(t, []byte(`{"response":"Test"}`), val)
}

func TestRedisStore_GetNonExistent(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	val, err := store.Get(context.Background(), "nonexistent-key")

	assert.NoError(t, err)
	assert.Nil(t, val, "a miss is (nil, nil), not an error")
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	store.Set(ctx, "to-delete", []byte("x"), time.Hour)
	err := store.Delete(ctx, "to-delete")
	assert.NoError(t, err)

	val, _ := store.Get(ctx, "to-delete")
	assert.Nil(t, val)
}

func TestRedisStore_Expiration(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	store.Set(ctx, "expiring", []byte("x"), time.Second)
	mr.FastForward(2 * time.Second)

	val, _ := store.Get(ctx, "expiring")
	assert.Nil(t, val, "key should be expired")
}

// Two cache instances sharing a Redis tier see each other's entries as
// exact hits, the replica-sharing behavior the distributed tier exists for.
func TestTieredCache_RemoteTierSharesEntries(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	cfg := &config.CacheConfig{
		SimilarityThreshold: 0.8,
		MaxSize:             100,
		TTL:                 time.Hour,
	}
	cacheA := NewTieredCache(cfg, nil, store)
	cacheB := NewTieredCache(cfg, nil, store)

	ctx := context.Background()

	require.NoError(t, cacheA.Set(ctx, "What is the capital of France?", "m1", "", response("Paris"), time.Hour))

	result, err := cacheB.Get(ctx, "what is the capital of france?", "m1", "", 0.8)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, TierRemote, result.Tier)
	assert.Equal(t, "Paris", result.Response.Response)
	assert.Equal(t, 1.0, result.Similarity)

	// Promoted into B's memory: the next lookup is a local exact hit.
	result, err = cacheB.Get(ctx, "what is the capital of france?", "m1", "", 0.8)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, TierExact, result.Tier)
}

func BenchmarkRedisStore_Set(b *testing.B) {
	mr, _ := miniredis.Run()
	defer mr.Close()

	store, _ := NewRedisStore(&config.RedisConfig{Address: mr.Addr()})
	defer store.Close()

	ctx := context.Background()
	payload := []byte(`{"response":"Benchmark"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Set(ctx, "bench-key", payload, time.Hour)
	}
}
