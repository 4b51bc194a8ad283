package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

var (
	// ErrCacheMiss is returned by Get when neither tier holds the key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidKey is returned for empty or reserved keys.
	ErrInvalidKey = errors.New("invalid cache key")
)

const (
	tierL1 = "l1"
	tierL2 = "l2"

	// generationKey holds the cache generation under the prefix.
	generationKey = "_generation"
)

// Options configures a Tiered cache.
type Options struct {
	// Prefix namespaces every Redis key.
	Prefix string
	// Size bounds the in-process tier. Values below 1 use 128.
	Size int
	TTL  time.Duration
	// Redis is the shared tier. Nil keeps the cache process-local.
	Redis   *redis.Client
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// Tiered is a read-through cache with an in-process expiring LRU in front
// of an optional Redis tier. Values are stored in Redis as JSON.
//
// Every entry is stamped with the cache generation current when its value
// was loaded. Delete and Purge advance the generation (in Redis when it is
// configured, so all processes see it), and entries from an older generation
// are discarded on read. A fill that raced with an invalidation, or a copy
// held in another process's local tier, is never served.
type Tiered[V any] struct {
	l1       *lru.LRU[string, stamped[V]]
	redis    *redis.Client
	prefix   string
	ttl      time.Duration
	localGen atomic.Int64
	metrics  *observability.Metrics
	logger   *observability.Logger
}

type stamped[V any] struct {
	Gen   int64 `json:"gen"`
	Value V     `json:"value"`
}

// NewTiered creates a Tiered cache.
func NewTiered[V any](opts Options) *Tiered[V] {
	size := opts.Size
	if size < 1 {
		size = 128
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Tiered[V]{
		l1:      lru.NewLRU[string, stamped[V]](size, nil, ttl),
		redis:   opts.Redis,
		prefix:  opts.Prefix,
		ttl:     ttl,
		metrics: opts.Metrics,
		logger:  logger.WithField("component", "cache"),
	}
}

func (c *Tiered[V]) redisKey(key string) string {
	return c.prefix + key
}

func validKey(key string) bool {
	return key != "" && key != generationKey
}

// generation returns the current cache generation. With Redis configured it
// is read from Redis on every call.
func (c *Tiered[V]) generation(ctx context.Context) (int64, error) {
	if c.redis == nil {
		return c.localGen.Load(), nil
	}
	gen, err := c.redis.Get(ctx, c.redisKey(generationKey)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// Get returns the value for key, promoting Redis hits into the local tier.
// Redis failures are logged and reported as misses.
func (c *Tiered[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	if !validKey(key) {
		return zero, ErrInvalidKey
	}
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("redis generation read failed")
		c.miss(tierL1)
		return zero, ErrCacheMiss
	}
	if v, ok := c.lookup(ctx, key, gen); ok {
		return v, nil
	}
	return zero, ErrCacheMiss
}

// Fetch returns the cached value for key or calls load and caches its
// result. The result is stamped with the generation read before load ran,
// so an invalidation during load leaves nothing stale behind. When the
// generation cannot be read the cache is bypassed.
func (c *Tiered[V]) Fetch(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if !validKey(key) {
		var zero V
		return zero, ErrInvalidKey
	}

	gen, genErr := c.generation(ctx)
	if genErr != nil {
		c.logger.WithError(genErr).Warn("redis generation read failed, bypassing cache")
	} else if v, ok := c.lookup(ctx, key, gen); ok {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil || genErr != nil {
		return v, err
	}
	if err := c.store(ctx, key, v, gen); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache fill failed")
	}
	return v, nil
}

func (c *Tiered[V]) lookup(ctx context.Context, key string, gen int64) (V, bool) {
	var zero V
	if e, ok := c.l1.Get(key); ok {
		if e.Gen == gen {
			c.hit(tierL1)
			return e.Value, true
		}
		c.l1.Remove(key)
	}
	c.miss(tierL1)

	if c.redis == nil {
		return zero, false
	}

	data, err := c.redis.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("redis get failed")
		}
		c.miss(tierL2)
		return zero, false
	}

	var e stamped[V]
	if err := json.Unmarshal(data, &e); err != nil {
		c.redis.Del(ctx, c.redisKey(key))
		c.miss(tierL2)
		return zero, false
	}
	if e.Gen != gen {
		c.miss(tierL2)
		return zero, false
	}

	c.hit(tierL2)
	c.l1.Add(key, e)
	return e.Value, true
}

// Set stores value in both tiers at the current generation.
func (c *Tiered[V]) Set(ctx context.Context, key string, value V) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	gen, err := c.generation(ctx)
	if err != nil {
		return fmt.Errorf("redis generation read failed: %w", err)
	}
	return c.store(ctx, key, value, gen)
}

func (c *Tiered[V]) store(ctx context.Context, key string, value V, gen int64) error {
	e := stamped[V]{Gen: gen, Value: value}
	c.l1.Add(key, e)
	if c.redis == nil {
		return nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := c.redis.Set(ctx, c.redisKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes keys from both tiers and advances the generation, which
// also retires every other entry of this cache in every process.
func (c *Tiered[V]) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	redisKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		c.l1.Remove(key)
		redisKeys = append(redisKeys, c.redisKey(key))
	}
	c.localGen.Add(1)

	if c.redis == nil {
		return nil
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKeys...)
		pipe.Incr(ctx, c.redisKey(generationKey))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Purge advances the generation and clears the local tier and every Redis
// value under the prefix.
func (c *Tiered[V]) Purge(ctx context.Context) error {
	c.l1.Purge()
	c.localGen.Add(1)
	if c.redis == nil {
		return nil
	}

	genKey := c.redisKey(generationKey)
	if err := c.redis.Incr(ctx, genKey).Err(); err != nil {
		return fmt.Errorf("failed to advance cache generation: %w", err)
	}
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if iter.Val() == genKey {
			continue
		}
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for prefix %s: %w", c.prefix, err)
	}
	return nil
}

// Len returns the number of entries in the local tier.
func (c *Tiered[V]) Len() int {
	return c.l1.Len()
}

func (c *Tiered[V]) hit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (c *Tiered[V]) miss(tier string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}
