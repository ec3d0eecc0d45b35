package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"engagement-engine/internal/config"
	"engagement-engine/internal/constants"
	"engagement-engine/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RankingCache holds the full, position-ordered entry list of a bucket keyed
// by constants.RankingBucketKey. Set is for the writer that just swapped the
// bucket; readers use Fill, which never replaces an existing entry, so a
// reader holding an older version cannot overwrite a newer one.
type RankingCache interface {
	Get(ctx context.Context, key string) ([]domain.RankingEntry, bool, error)
	Set(ctx context.Context, key string, entries []domain.RankingEntry) error
	Fill(ctx context.Context, key string, entries []domain.RankingEntry) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

// NewRedisClient connects to REDIS_ADDR. It returns nil without error when
// Redis is not configured so callers fall back to in-process variants.
func NewRedisClient(cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("redis not configured, using in-process cache and locks")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: constants.RedisPingTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), constants.RedisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("redis connected")
	return rdb, nil
}

type RedisRankingCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisRankingCache(rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisRankingCache {
	return &RedisRankingCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *RedisRankingCache) Get(ctx context.Context, key string) ([]domain.RankingEntry, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entries []domain.RankingEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		// a bad payload is a miss; the next recompute overwrites it
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable ranking cache entry")
		return nil, false, nil
	}
	return entries, true, nil
}

func (c *RedisRankingCache) Set(ctx context.Context, key string, entries []domain.RankingEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

func (c *RedisRankingCache) Fill(ctx context.Context, key string, entries []domain.RankingEntry) (bool, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return false, err
	}
	return c.rdb.SetNX(ctx, key, raw, c.ttl).Result()
}

func (c *RedisRankingCache) Invalidate(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Noop never hits; reads go straight to the database.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]domain.RankingEntry, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []domain.RankingEntry) error         { return nil }
func (Noop) Fill(context.Context, string, []domain.RankingEntry) (bool, error) { return false, nil }
func (Noop) Invalidate(context.Context, string) error                         { return nil }

// NewRankingCache picks the Redis cache when a client is available.
func NewRankingCache(rdb *redis.Client, cfg *config.Config, logger zerolog.Logger) RankingCache {
	if rdb == nil {
		return Noop{}
	}
	return NewRedisRankingCache(rdb, cfg.RankingCacheTTL, logger.With().Str("component", "ranking_cache").Logger())
}
