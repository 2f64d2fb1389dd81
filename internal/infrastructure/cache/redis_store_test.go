package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farmpay/backend/internal/infrastructure/config"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisIdempotencyStore(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisIdempotencyStore(client, "")
	ctx := context.Background()

	t.Run("mark uses SETNX with ttl", func(t *testing.T) {
		mock.ExpectSetNX("farmpay:request:req-1", "1", time.Hour).SetVal(true)
		mock.ExpectSetNX("farmpay:request:req-1", "1", time.Hour).SetVal(false)

		fresh, err := store.MarkProcessed(ctx, "req-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, fresh)

		fresh, err = store.MarkProcessed(ctx, "req-1", time.Hour)
		require.NoError(t, err)
		assert.False(t, fresh)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("is processed checks existence", func(t *testing.T) {
		mock.ExpectExists("farmpay:request:req-2").SetVal(1)
		mock.ExpectExists("farmpay:request:req-3").SetVal(0)

		seen, err := store.IsProcessed(ctx, "req-2")
		require.NoError(t, err)
		assert.True(t, seen)

		seen, err = store.IsProcessed(ctx, "req-3")
		require.NoError(t, err)
		assert.False(t, seen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("release deletes the key", func(t *testing.T) {
		mock.ExpectSetNX("farmpay:request:req-5", "1", time.Hour).SetVal(true)
		mock.ExpectDel("farmpay:request:req-5").SetVal(1)
		mock.ExpectSetNX("farmpay:request:req-5", "1", time.Hour).SetVal(true)

		fresh, err := store.MarkProcessed(ctx, "req-5", time.Hour)
		require.NoError(t, err)
		require.True(t, fresh)
		require.NoError(t, store.Release(ctx, "req-5"))
		fresh, err = store.MarkProcessed(ctx, "req-5", time.Hour)
		require.NoError(t, err)
		assert.True(t, fresh)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis errors are wrapped", func(t *testing.T) {
		mock.ExpectSetNX("farmpay:request:req-4", "1", time.Minute).SetErr(errors.New("connection refused"))
		mock.ExpectDel("farmpay:request:req-4").SetErr(errors.New("connection refused"))

		_, err := store.MarkProcessed(ctx, "req-4", time.Minute)
		assert.ErrorContains(t, err, "connection refused")
		assert.ErrorContains(t, store.Release(ctx, "req-4"), "release req-4")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNewIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("redis disabled uses memory", func(t *testing.T) {
		store, err := NewIdempotencyStore(ctx, config.RedisConfig{Enabled: false}, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		store, err := NewIdempotencyStore(ctx, cfg, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("unreachable redis without fallback fails", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		_, err := NewIdempotencyStore(ctx, cfg, zap.NewNop(), WithInMemoryFallback(false))
		assert.Error(t, err)
	})
}
