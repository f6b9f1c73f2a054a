package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemeral-paste/internal/storage"
	"ephemeral-paste/internal/storage/storagetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(client, "")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStoreContract(t *testing.T) {
	storagetest.RunContract(t, func(t *testing.T) storage.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestCreateWritesFlatHash(t *testing.T) {
	s, mr := newTestStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := storagetest.NewPaste("abc", "Hello World", now, storagetest.Int64(60), storagetest.Int64(2))
	require.NoError(t, s.Create(context.Background(), p))

	key := DefaultKeyPrefix + "abc"
	assert.Equal(t, "abc", mr.HGet(key, "id"))
	assert.Equal(t, "Hello World", mr.HGet(key, "content"))
	assert.Equal(t, "0", mr.HGet(key, "viewsCount"))
	assert.Equal(t, "60", mr.HGet(key, "ttlSeconds"))
	assert.Equal(t, "2", mr.HGet(key, "maxViews"))
	assert.Equal(t, "2025-03-01T12:00:00Z", mr.HGet(key, "createdAt"))
	assert.Equal(t, "2025-03-01T12:01:00Z", mr.HGet(key, "expiresAt"))
	assert.Equal(t, 60*time.Second, mr.TTL(key))
}

func TestCreateWithoutTTLHasNoExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	p := storagetest.NewPaste("plain", "x", time.Now(), nil, nil)
	require.NoError(t, s.Create(context.Background(), p))

	key := DefaultKeyPrefix + "plain"
	assert.Equal(t, time.Duration(0), mr.TTL(key))
	assert.Equal(t, "", mr.HGet(key, "ttlSeconds"))
}

func TestPhysicalExpiryPurgesRecord(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	p := storagetest.NewPaste("ttl", "x", time.Now(), storagetest.Int64(60), nil)
	require.NoError(t, s.Create(ctx, p))

	mr.FastForward(61 * time.Second)

	_, err := s.Get(ctx, "ttl")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.IncrementViews(ctx, "ttl")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, mr.Exists(DefaultKeyPrefix+"ttl"), "increment must not resurrect a purged key")
}

func TestKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "custom:")
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Create(context.Background(), storagetest.NewPaste("k", "x", time.Now(), nil, nil)))
	assert.True(t, mr.Exists("custom:k"))
	assert.False(t, mr.Exists(DefaultKeyPrefix+"k"))
}

func TestCorruptHashIsAnError(t *testing.T) {
	s, mr := newTestStore(t)
	mr.HSet(DefaultKeyPrefix+"bad", "viewsCount", "3")

	_, err := s.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestPingFailsWhenServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	s := New(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), "")
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, s.Ping(ctx))
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg = DefaultConfig()
	cfg.URL = "redis://" + mr.Addr() + "/0"
	s, err = Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "url only", mutate: func(c *Config) { c.Addr = ""; c.URL = "redis://localhost:6379" }},
		{name: "no address", mutate: func(c *Config) { c.Addr = "" }, wantErr: true},
		{name: "negative db", mutate: func(c *Config) { c.DB = -1 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.ReadTimeout = -time.Second }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
