package cache

import (
	"context"
	"fmt"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StoreOption configures NewIdempotencyStore
type StoreOption func(*storeOptions)

type storeOptions struct {
	allowFallback bool
	keyPrefix     string
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-memory store. Fallback is on by default.
func WithInMemoryFallback(allow bool) StoreOption {
	return func(o *storeOptions) {
		o.allowFallback = allow
	}
}

// WithRedisKeyPrefix overrides DefaultKeyPrefix
func WithRedisKeyPrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		o.keyPrefix = prefix
	}
}

// NewIdempotencyStore returns the Redis store when Redis is enabled and
// reachable, the in-memory store otherwise
func NewIdempotencyStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger, opts ...StoreOption) (shared.IdempotencyStore, error) {
	o := storeOptions{allowFallback: true}
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled {
		logger.Info("using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(DefaultSweepInterval), nil
	}

	client, err := NewRedisClient(ctx, cfg)
	if err == nil {
		logger.Info("using Redis idempotency store", zap.String("addr", cfg.Addr()))
		return NewRedisIdempotencyStore(client, o.keyPrefix), nil
	}
	if !o.allowFallback {
		return nil, fmt.Errorf("redis idempotency store unavailable: %w", err)
	}

	logger.Warn("Redis unavailable, falling back to in-memory idempotency store; replays are only detected per instance",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(DefaultSweepInterval), nil
}
