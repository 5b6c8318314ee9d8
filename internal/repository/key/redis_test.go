package key

import (
	"context"
	"testing"
	"time"

	"privly_chat/internal/cryptographic/box"
	"privly_chat/internal/model"
	"privly_chat/internal/service/directory"
	redisSvc "privly_chat/internal/service/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyCache(t *testing.T, ttl time.Duration) (*KeyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	svc := redisSvc.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { svc.Close() })
	require.NoError(t, svc.Ping(context.Background()))

	return NewKeyCache(svc, ttl), mr
}

func TestKeyCacheMissIsNil(t *testing.T) {
	cache, _ := newKeyCache(t, 0)

	rec, err := cache.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestKeyCachePutGet(t *testing.T) {
	ctx := context.Background()
	cache, mr := newKeyCache(t, 0)

	kp, err := box.GenerateKeyPair()
	require.NoError(t, err)

	require.NoError(t, cache.Put(ctx, &model.KeyRecord{Identity: "team/alice", PublicKey: kp.PublicKey[:]}))
	assert.True(t, mr.Exists(cacheKey("team/alice")))
	assert.Equal(t, time.Duration(0), mr.TTL(cacheKey("team/alice")))

	rec, err := cache.Get(ctx, "team/alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "team/alice", rec.Identity)
	assert.Equal(t, kp.PublicKey[:], rec.PublicKey)
}

func TestKeyCacheExpires(t *testing.T) {
	ctx := context.Background()
	cache, mr := newKeyCache(t, time.Minute)

	kp, err := box.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, cache.Put(ctx, &model.KeyRecord{Identity: "alice", PublicKey: kp.PublicKey[:]}))
	assert.Equal(t, time.Minute, mr.TTL(cacheKey("alice")))

	mr.FastForward(2 * time.Minute)

	rec, err := cache.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDirectoryOverKeyCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := newKeyCache(t, 0)
	d := directory.New(cache)

	first, err := box.GenerateKeyPair()
	require.NoError(t, err)
	second, err := box.GenerateKeyPair()
	require.NoError(t, err)

	require.NoError(t, d.Register(ctx, "alice", first.PublicKey[:]))
	require.NoError(t, d.Register(ctx, "alice", second.PublicKey[:]))

	got, err := d.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, second.PublicKey[:], got)

	_, err = d.Lookup(ctx, "bob")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	mr.Close()
	_, err = d.Lookup(ctx, "alice")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, directory.ErrNotFound)
}
