package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupePrefix = "dayplan:dedupe:"

// RedisDeduper suppresses repeated prefetch requests with SETNX
type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisDeduper creates a deduper. A ttl <= 0 disables deduplication.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisDeduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl, logger: logger}
}

// Claim reports whether key was not claimed within the TTL. When redis is
// unavailable the claim succeeds; a duplicate job is harmless because
// materialization is idempotent.
func (d *RedisDeduper) Claim(ctx context.Context, key string) bool {
	if d.rdb == nil || d.ttl <= 0 {
		return true
	}

	ok, err := d.rdb.SetNX(ctx, dedupePrefix+key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("dedupe_check_failed",
			zap.String("dedupe_key", key),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		d.logger.Debug("duplicate_prefetch_skipped", zap.String("dedupe_key", key))
	}
	return ok
}
