package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/xsect/alphabench/internal/metrics"
	"github.com/xsect/alphabench/internal/panel"
)

// Cache is a byte cache with TTL semantics.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type memoryCache struct {
	mu sync.Mutex
	m  map[string]memoryEntry
}

type memoryEntry struct {
	b   []byte
	exp time.Time
}

// NewMemoryCache returns an in-process cache.
func NewMemoryCache() Cache { return &memoryCache{m: make(map[string]memoryEntry)} }

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct {
	r *redis.Client
}

// NewRedisCache returns a redis-backed cache for the given address.
func NewRedisCache(addr string) Cache {
	return &redisCache{r: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewAutoCache picks redis when an address is configured, memory otherwise.
func NewAutoCache(redisAddr string) Cache {
	if redisAddr != "" {
		return NewRedisCache(redisAddr)
	}
	return NewMemoryCache()
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	v, err := c.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := c.r.Set(ctx, key, val, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("panel cache write failed")
	}
}

// CachedProvider decorates a Provider with a panel cache. A hit skips the
// underlying provider entirely; the panel is immutable once loaded, so
// cached JSON round-trips are safe.
type CachedProvider struct {
	Inner   Provider
	Cache   Cache
	TTL     time.Duration
	Metrics *metrics.Registry
}

func (p *CachedProvider) Prices(ctx context.Context, universe []string, start, end time.Time) (panel.Table, error) {
	key := panelKey(universe, start, end)

	if b, ok := p.Cache.Get(ctx, key); ok {
		var table panel.Table
		if err := json.Unmarshal(b, &table); err == nil {
			p.hit()
			return table, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable panel cache entry")
	}
	p.miss()

	table, err := p.Inner.Prices(ctx, universe, start, end)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(table); err == nil {
		p.Cache.Set(ctx, key, b, p.TTL)
	}
	return table, nil
}

func (p *CachedProvider) hit() {
	if p.Metrics != nil {
		p.Metrics.CacheHits.WithLabelValues("panel").Inc()
	}
}

func (p *CachedProvider) miss() {
	if p.Metrics != nil {
		p.Metrics.CacheMisses.WithLabelValues("panel").Inc()
	}
}

// panelKey derives a stable cache key from the request parameters.
func panelKey(universe []string, start, end time.Time) string {
	h := sha256.Sum256([]byte(strings.Join(universe, ",") + "|" + start.Format("2006-01-02") + "|" + end.Format("2006-01-02")))
	return "alphabench:panel:" + hex.EncodeToString(h[:8])
}
