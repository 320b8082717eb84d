package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shawkridge/athena-sub002/internal/metrics"
	"github.com/shawkridge/athena-sub002/internal/models"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 15 * time.Minute

// DefaultMaxEntries bounds the local cache when no capacity is configured.
const DefaultMaxEntries = 1000

type entry struct {
	topic    string
	findings []models.AggregatedFinding
	storedAt time.Time
	ttl      time.Duration
	hitCount int
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// QueryCache caches aggregated findings per normalized topic so repeated
// research on near-identical queries short-circuits the agent fan-out.
// The in-process tier is authoritative; an optional Redis mirror survives
// restarts and is shared across replicas. Redis failures degrade to
// local-only with a logged warning.
type QueryCache struct {
	logger     *zap.Logger
	maxEntries int
	rdb        *redis.Client

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a local-only query cache.
func New(maxEntries int, logger *zap.Logger) *QueryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &QueryCache{
		logger:     logger,
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

// NewWithRedis creates a query cache mirrored to Redis.
func NewWithRedis(maxEntries int, rdb *redis.Client, logger *zap.Logger) *QueryCache {
	c := New(maxEntries, logger)
	c.rdb = rdb
	return c
}

// Get returns the cached findings for topic, if present and fresh. Expired
// entries are removed lazily and count as a miss.
func (c *QueryCache) Get(ctx context.Context, topic string) ([]models.AggregatedFinding, bool) {
	key := Key(topic)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.expired(now) {
			delete(c.entries, key)
			metrics.CacheSize.Set(float64(len(c.entries)))
			c.mu.Unlock()
			metrics.CacheMisses.Inc()
			return nil, false
		}
		e.hitCount++
		findings := e.findings
		c.mu.Unlock()
		metrics.CacheHits.Inc()
		return findings, true
	}
	c.mu.Unlock()

	// Local miss: consult the mirror before giving up.
	if findings, ttl, ok := c.getRedis(ctx, key); ok {
		c.mu.Lock()
		c.insertLocked(key, topic, findings, ttl, now)
		c.mu.Unlock()
		metrics.CacheHits.Inc()
		return findings, true
	}

	metrics.CacheMisses.Inc()
	return nil, false
}

// Set stores findings for topic with the given ttl, evicting the least
// useful entry when the cache is full.
func (c *QueryCache) Set(ctx context.Context, topic string, findings []models.AggregatedFinding, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := Key(topic)

	c.mu.Lock()
	c.insertLocked(key, topic, findings, ttl, time.Now())
	c.mu.Unlock()

	c.setRedis(ctx, key, findings, ttl)
}

// Len returns the current number of local entries.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// insertLocked stores an entry and applies capacity eviction. Caller holds c.mu.
func (c *QueryCache) insertLocked(key, topic string, findings []models.AggregatedFinding, ttl time.Duration, now time.Time) {
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = &entry{
		topic:    topic,
		findings: findings,
		storedAt: now,
		ttl:      ttl,
	}
	metrics.CacheSize.Set(float64(len(c.entries)))
}

// evictLocked removes the entry with the lowest hit count, breaking ties by
// age, so entries proven useful survive. Caller holds c.mu.
func (c *QueryCache) evictLocked() {
	var victim string
	var victimEntry *entry
	for key, e := range c.entries {
		if victimEntry == nil ||
			e.hitCount < victimEntry.hitCount ||
			(e.hitCount == victimEntry.hitCount && e.storedAt.Before(victimEntry.storedAt)) {
			victim = key
			victimEntry = e
		}
	}
	if victimEntry == nil {
		return
	}
	delete(c.entries, victim)
	metrics.CacheEvictions.Inc()
	c.logger.Debug("Evicted cache entry",
		zap.String("topic", victimEntry.topic),
		zap.Int("hit_count", victimEntry.hitCount),
	)
}

func (c *QueryCache) getRedis(ctx context.Context, key string) ([]models.AggregatedFinding, time.Duration, bool) {
	if c.rdb == nil {
		return nil, 0, false
	}

	data, err := c.rdb.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, 0, false
	} else if err != nil {
		c.logger.Warn("Query cache mirror read failed", zap.Error(err))
		return nil, 0, false
	}

	var findings []models.AggregatedFinding
	if err := json.Unmarshal(data, &findings); err != nil {
		c.logger.Warn("Query cache mirror entry corrupt", zap.Error(err))
		return nil, 0, false
	}

	ttl, err := c.rdb.TTL(ctx, redisKey(key)).Result()
	if err != nil || ttl <= 0 {
		ttl = DefaultTTL
	}
	return findings, ttl, true
}

func (c *QueryCache) setRedis(ctx context.Context, key string, findings []models.AggregatedFinding, ttl time.Duration) {
	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(findings)
	if err != nil {
		c.logger.Warn("Failed to marshal cache entry for mirror", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, redisKey(key), data, ttl).Err(); err != nil {
		c.logger.Warn("Query cache mirror write failed", zap.Error(err))
	}
}

// Key normalizes a topic (case-folded, whitespace-collapsed) and hashes it so
// near-identical queries share one cache slot.
func Key(topic string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(topic), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func redisKey(key string) string {
	return fmt.Sprintf("research:cache:%s", key)
}
