package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"go.uber.org/zap"
)

const catalogKeyPrefix = "stockhold:catalog:"

// catalogEntry is what the catalog said about one product
type catalogEntry struct {
	exists    bool
	active    bool
	expiresAt time.Time
}

// CachedCatalog fronts a stock.Catalog with a short-lived cache: an
// in-process L1 and, when configured, a shared Redis L2. Cart validation
// asks about the same products over and over; the catalog only needs to
// answer once per TTL.
type CachedCatalog struct {
	next    stock.Catalog
	ttl     time.Duration
	entries sync.Map // productID -> *catalogEntry
	redis   redis.UniversalClient
	logger  *zap.Logger
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedCatalog wraps next. A non-positive ttl disables caching.
func NewCachedCatalog(next stock.Catalog, ttl time.Duration, logger *zap.Logger, opts ...CachedCatalogOption) *CachedCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CachedCatalog{
		next:   next,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CachedCatalogOption configures a CachedCatalog
type CachedCatalogOption func(*CachedCatalog)

// WithRedisL2 shares lookups between instances through Redis
func WithRedisL2(client redis.UniversalClient) CachedCatalogOption {
	return func(c *CachedCatalog) {
		c.redis = client
	}
}

// ProductExists implements stock.Catalog
func (c *CachedCatalog) ProductExists(ctx context.Context, productID string) (bool, error) {
	entry, err := c.lookup(ctx, productID)
	if err != nil {
		return false, err
	}
	return entry.exists, nil
}

// IsActive implements stock.Catalog
func (c *CachedCatalog) IsActive(ctx context.Context, productID string) (bool, error) {
	entry, err := c.lookup(ctx, productID)
	if err != nil {
		return false, err
	}
	return entry.active, nil
}

// Invalidate drops a product from both tiers so the next lookup goes to the catalog
func (c *CachedCatalog) Invalidate(ctx context.Context, productID string) {
	c.entries.Delete(productID)
	if c.redis != nil {
		if err := c.redis.Del(ctx, catalogKeyPrefix+productID).Err(); err != nil {
			c.logger.Warn("failed to invalidate catalog entry in Redis",
				zap.String("product_id", productID), zap.Error(err))
		}
	}
}

// Stats returns cache hit and miss counts
func (c *CachedCatalog) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedCatalog) lookup(ctx context.Context, productID string) (*catalogEntry, error) {
	now := c.now()
	if value, ok := c.entries.Load(productID); ok {
		entry := value.(*catalogEntry)
		if now.Before(entry.expiresAt) {
			c.hits.Add(1)
			return entry, nil
		}
		c.entries.Delete(productID)
	}
	c.misses.Add(1)

	if entry, ok := c.getL2(ctx, productID, now); ok {
		c.entries.Store(productID, entry)
		return entry, nil
	}

	exists, err := c.next.ProductExists(ctx, productID)
	if err != nil {
		return nil, err
	}
	active := false
	if exists {
		if active, err = c.next.IsActive(ctx, productID); err != nil {
			return nil, err
		}
	}

	entry := &catalogEntry{exists: exists, active: active, expiresAt: now.Add(c.ttl)}
	if c.ttl > 0 {
		c.entries.Store(productID, entry)
		c.setL2(ctx, productID, entry)
	}
	c.logger.Debug("catalog lookup",
		zap.String("product_id", productID),
		zap.Bool("exists", exists),
		zap.Bool("active", active),
	)
	return entry, nil
}

// L2 values are two characters: exists then active, each '0' or '1'
func (c *CachedCatalog) getL2(ctx context.Context, productID string, now time.Time) (*catalogEntry, bool) {
	if c.redis == nil || c.ttl <= 0 {
		return nil, false
	}
	value, err := c.redis.Get(ctx, catalogKeyPrefix+productID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("catalog L2 read failed", zap.String("product_id", productID), zap.Error(err))
		}
		return nil, false
	}
	if len(value) != 2 {
		return nil, false
	}
	return &catalogEntry{
		exists:    value[0] == '1',
		active:    value[1] == '1',
		expiresAt: now.Add(c.ttl),
	}, true
}

func (c *CachedCatalog) setL2(ctx context.Context, productID string, entry *catalogEntry) {
	if c.redis == nil {
		return
	}
	value := []byte("00")
	if entry.exists {
		value[0] = '1'
	}
	if entry.active {
		value[1] = '1'
	}
	if err := c.redis.Set(ctx, catalogKeyPrefix+productID, string(value), c.ttl).Err(); err != nil {
		c.logger.Warn("catalog L2 write failed", zap.String("product_id", productID), zap.Error(err))
	}
}

var _ stock.Catalog = (*CachedCatalog)(nil)
