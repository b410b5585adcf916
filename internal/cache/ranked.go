// Package cache keeps recently computed volume rankings in Redis so that
// back-to-back runs do not rescan the OHLCV collection.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pairbot/config"
	"pairbot/logger"
)

const keyPrefix = "pairbot:ranked:"

// RankCache satisfies processor.RankCache. Every Redis failure is logged
// and reported as a miss.
type RankCache struct {
	client redis.Cmdable
	ttl    time.Duration
	scope  string
	log    *logger.Log
}

// Dial connects to the configured Redis and verifies it with a ping.
// scope names the volume source the cached rankings come from.
func Dial(ctx context.Context, cfg config.RedisConfig, scope string) (*RankCache, *redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(client, cfg.TTL, scope), client, nil
}

func New(client redis.Cmdable, ttl time.Duration, scope string) *RankCache {
	return &RankCache{client: client, ttl: ttl, scope: scope, log: logger.GetLogger()}
}

// Key is the Redis key for the rankings of one source at one cap. Sources
// never share entries.
func Key(scope string, maxCount int) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, scope, maxCount)
}

func (c *RankCache) Get(ctx context.Context, maxCount int) ([]string, bool) {
	key := Key(c.scope, maxCount)
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.WithComponent("rank_cache").WithError(err).WithFields(logger.Fields{"key": key}).Warn("redis get failed; reading source")
		return nil, false
	}

	var pairs []string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		c.log.WithComponent("rank_cache").WithError(err).WithFields(logger.Fields{"key": key}).Warn("discarding malformed cache entry")
		return nil, false
	}
	if pairs == nil {
		pairs = []string{}
	}
	return pairs, true
}

func (c *RankCache) Set(ctx context.Context, maxCount int, pairs []string) {
	key := Key(c.scope, maxCount)
	raw, err := json.Marshal(pairs)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.WithComponent("rank_cache").WithError(err).WithFields(logger.Fields{"key": key}).Warn("redis set failed")
	}
}
