package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/scmguard/scmguard/pkg/authz"
	"github.com/scmguard/scmguard/pkg/observability"
)

const (
	defaultCacheTTL     = time.Minute
	defaultCacheEntries = 4096
)

// CacheConfig holds tuning for the policy row cache
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// CachedSource wraps an authz.Source with a two-level policy row cache:
// an in-process expirable LRU in front of an optional shared Redis layer.
// The policy fetch is read-only and idempotent, so stale-within-TTL reads
// are safe; cache failures fall through to the wrapped source.
type CachedSource struct {
	source  authz.Source
	local   *lru.LRU[string, []authz.PolicyRow]
	redis   *redis.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// CachedSourceOption configures a CachedSource
type CachedSourceOption func(*CachedSource)

// WithCacheLogger sets the logger for cache-layer failures
func WithCacheLogger(logger *observability.Logger) CachedSourceOption {
	return func(c *CachedSource) {
		c.logger = logger
	}
}

// WithCacheMetrics enables hit/miss accounting
func WithCacheMetrics(m *observability.Metrics) CachedSourceOption {
	return func(c *CachedSource) {
		c.metrics = m
	}
}

// NewCachedSource wraps source with the row cache. rdb may be nil for a
// purely in-process cache.
func NewCachedSource(source authz.Source, cfg CacheConfig, rdb *redis.Client, opts ...CachedSourceOption) *CachedSource {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultCacheEntries
	}

	c := &CachedSource{
		source: source,
		local:  lru.NewLRU[string, []authz.PolicyRow](cfg.MaxEntries, nil, cfg.TTL),
		redis:  rdb,
		ttl:    cfg.TTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rowsKey builds a deterministic cache key. The resolver always sends
// roles and resources in a fixed order, so no sorting is needed.
func rowsKey(plan authz.PlanCode, roles []authz.Role, resources []authz.Resource, action authz.Action) string {
	parts := make([]string, 0, len(roles)+len(resources)+2)
	parts = append(parts, string(plan), string(action))
	for _, r := range resources {
		parts = append(parts, string(r))
	}
	for _, r := range roles {
		parts = append(parts, string(r))
	}
	return "policy:rows:" + strings.Join(parts, ":")
}

// FetchRows serves policy rows from the cache layers, falling back to the
// wrapped source on a full miss.
func (c *CachedSource) FetchRows(ctx context.Context, plan authz.PlanCode, roles []authz.Role, resources []authz.Resource, action authz.Action) ([]authz.PolicyRow, error) {
	key := rowsKey(plan, roles, resources, action)

	if rows, ok := c.local.Get(key); ok {
		c.recordHit("local")
		return rows, nil
	}
	c.recordMiss("local")

	if rows, ok := c.redisGet(ctx, key); ok {
		c.recordHit("redis")
		c.local.Add(key, rows)
		return rows, nil
	}
	if c.redis != nil {
		c.recordMiss("redis")
	}

	start := time.Now()
	rows, err := c.source.FetchRows(ctx, plan, roles, resources, action)
	c.recordFetch(time.Since(start), err)
	if err != nil {
		return nil, err
	}

	c.local.Add(key, rows)
	c.redisSet(ctx, key, rows)
	return rows, nil
}

// FetchAccount passes through uncached: root-account lookups feed plan
// resolution and must reflect subscription changes immediately.
func (c *CachedSource) FetchAccount(ctx context.Context, id int64) (*authz.Account, error) {
	return c.source.FetchAccount(ctx, id)
}

func (c *CachedSource) redisGet(ctx context.Context, key string) ([]authz.PolicyRow, bool) {
	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logDegraded("redis get failed", err)
		return nil, false
	}

	var rows []authz.PolicyRow
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		// Corrupt payloads are removed so they cannot shadow the source.
		c.redis.Del(ctx, key)
		c.logDegraded("corrupt cache payload", err)
		return nil, false
	}
	return rows, true
}

func (c *CachedSource) redisSet(ctx context.Context, key string, rows []authz.PolicyRow) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(rows)
	if err != nil {
		c.logDegraded("failed to marshal rows for cache", err)
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logDegraded("redis set failed", err)
	}
}

func (c *CachedSource) logDegraded(msg string, err error) {
	if c.logger != nil {
		c.logger.WithError(err).Warn(fmt.Sprintf("policy cache degraded: %s", msg))
	}
}

func (c *CachedSource) recordHit(layer string) {
	if c.metrics != nil {
		c.metrics.PolicyCacheHitsTotal.WithLabelValues(layer).Inc()
	}
}

func (c *CachedSource) recordMiss(layer string) {
	if c.metrics != nil {
		c.metrics.PolicyCacheMissesTotal.WithLabelValues(layer).Inc()
	}
}

func (c *CachedSource) recordFetch(elapsed time.Duration, err error) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metrics.PolicyFetchesTotal.WithLabelValues(result).Inc()
	c.metrics.PolicyFetchDuration.Observe(elapsed.Seconds())
}
