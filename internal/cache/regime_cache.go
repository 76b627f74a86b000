// Package cache holds small Redis-backed read models for the API layer.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/models"
)

// RegimeEntry is the cached classification for one symbol.
type RegimeEntry struct {
	Symbol       string        `json:"symbol"`
	Regime       models.Regime `json:"regime"`
	ClassifiedAt time.Time     `json:"classified_at"`
}

// RegimeCacheStats tracks cache performance.
type RegimeCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.Mutex
}

// RedisRegimeCache stores the most recent regime per symbol so the API can
// answer regime queries without touching the engine.
type RedisRegimeCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *RegimeCacheStats
	prefix string
	logger *logrus.Logger
}

func NewRedisRegimeCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisRegimeCache {
	return &RedisRegimeCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &RegimeCacheStats{},
		prefix: "regime_cache:",
		logger: logger,
	}
}

// Get returns the cached regime for a symbol, or false on a miss.
func (c *RedisRegimeCache) Get(ctx context.Context, symbol string) (*RegimeEntry, bool) {
	data, err := c.redis.Get(ctx, c.prefix+symbol).Result()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Redis error reading cached regime")
		c.miss()
		return nil, false
	}

	var entry RegimeEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Malformed cached regime entry")
		c.miss()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	return &entry, true
}

// Set stores the latest classification for a symbol.
func (c *RedisRegimeCache) Set(ctx context.Context, symbol string, regime models.Regime, classifiedAt time.Time) error {
	entry := RegimeEntry{
		Symbol:       symbol,
		Regime:       regime,
		ClassifiedAt: classifiedAt,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize regime entry for %s: %w", symbol, err)
	}
	if err := c.redis.Set(ctx, c.prefix+symbol, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache regime for %s: %w", symbol, err)
	}
	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
	return nil
}

// Stats returns a snapshot of the hit/miss counters.
func (c *RedisRegimeCache) Stats() RegimeCacheStats {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	return RegimeCacheStats{Hits: c.stats.Hits, Misses: c.stats.Misses, Sets: c.stats.Sets}
}

func (c *RedisRegimeCache) miss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
