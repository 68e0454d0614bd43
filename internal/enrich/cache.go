package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// cacheStore is the slice of the store the cache needs.
type cacheStore interface {
	GetCachedEnrichment(ctx context.Context, key string) (*model.EnrichmentResult, error)
	SetCachedEnrichment(ctx context.Context, key string, res *model.EnrichmentResult, ttl time.Duration) error
	DeleteExpiredEnrichments(ctx context.Context) (int, error)
}

// Cache fronts the store's enrichment cache with the policy TTL. Failed
// results are cached too, so a known-dead domain is not re-billed until
// the entry expires.
type Cache struct {
	store cacheStore
	ttl   time.Duration
}

// NewCache creates a Cache with the given entry lifetime.
func NewCache(store cacheStore, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

// Get returns the cached result for a key, or nil on a miss. Store
// errors are logged and treated as misses; a broken cache must not
// block enrichment.
func (c *Cache) Get(ctx context.Context, key string) *model.EnrichmentResult {
	if key == "" {
		return nil
	}
	res, err := c.store.GetCachedEnrichment(ctx, key)
	if err != nil {
		zap.L().Warn("enrichment cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	return res
}

// Put stores a result under the key for the cache TTL.
func (c *Cache) Put(ctx context.Context, key string, res *model.EnrichmentResult) {
	if key == "" || res == nil {
		return
	}
	if err := c.store.SetCachedEnrichment(ctx, key, res, c.ttl); err != nil {
		zap.L().Warn("enrichment cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Prune deletes expired entries and returns how many were removed.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	return c.store.DeleteExpiredEnrichments(ctx)
}
