package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/redis"
)

const keyPrefix = "detect:"

// KV is the subset of the Redis client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cache stores symptom detection results by keyword set. A match depends
// only on the keywords, the catalogue and the scoring settings, so variant
// should change whenever the settings do; catalogue changes call
// Invalidate.
type Cache struct {
	client  KV
	ttl     time.Duration
	variant string
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewCache(client KV, ttl time.Duration, variant string, m *metrics.Metrics) *Cache {
	return &Cache{
		client:  client,
		ttl:     ttl,
		variant: variant,
		metrics: m,
		logger:  slog.Default().With("component", "detection-cache"),
	}
}

// Variant builds the settings fingerprint for NewCache.
func Variant(severityWeighting bool, threshold float64) string {
	return "sev=" + strconv.FormatBool(severityWeighting) + ",thr=" + strconv.FormatFloat(threshold, 'f', -1, 64)
}

func (c *Cache) Get(ctx context.Context, kw keywords.Set) (*Result, bool) {
	key := c.buildKey(kw)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *Cache) Set(ctx context.Context, kw keywords.Set, result *Result) {
	if !cacheable(result) {
		return
	}
	key := c.buildKey(kw)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for kw or computes it once for all
// concurrent callers. Each caller gets its own copy.
func (c *Cache) GetOrCompute(ctx context.Context, kw keywords.Set, computeFn func() (*Result, error)) (*Result, bool, error) {
	if result, ok := c.Get(ctx, kw); ok {
		return result, true, nil
	}
	key := c.buildKey(kw)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, kw, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	result := *val.(*Result)
	return &result, false, nil
}

// Invalidate drops every cached detection.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating detection cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey hashes the sorted keyword set so word order in the description
// does not matter.
func (c *Cache) buildKey(kw keywords.Set) string {
	terms := append([]string(nil), kw...)
	sort.Strings(terms)
	raw := c.variant + "|" + strings.Join(terms, "\x1f")
	return fmt.Sprintf("%s%016x", keyPrefix, xxhash.Sum64String(raw))
}

// cacheable keeps results that would change once the catalogue is filled
// out of the cache.
func cacheable(r *Result) bool {
	return r != nil && r.Reason != matcher.ReasonEmptyCatalogue
}
