package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"product-association-service/internal/models"
)

// Cache TTL constants
const (
	ProductCacheTTL = 5 * time.Minute
	cacheKeyPrefix  = "association:products:"
)

// ProductCache is a read-through cache for internal products.
// A nil client disables caching; Redis failures degrade to misses.
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

// NewProductCache creates a product cache on top of an existing Redis client
func NewProductCache(client *redis.Client, logger *logrus.Logger) *ProductCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProductCache{
		client: client,
		ttl:    ProductCacheTTL,
		logger: logger.WithField("component", "product-cache"),
	}
}

func (c *ProductCache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *ProductCache) key(internalID string) string {
	return fmt.Sprintf("%sproduct:%s", cacheKeyPrefix, internalID)
}

// Get returns the cached product or nil on miss
func (c *ProductCache) Get(ctx context.Context, internalID string) *models.InternalProduct {
	if !c.enabled() {
		return nil
	}

	data, err := c.client.Get(ctx, c.key(internalID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("internalId", internalID).Debug("Product cache read failed")
		}
		return nil
	}

	var product models.InternalProduct
	if err := json.Unmarshal(data, &product); err != nil {
		return nil
	}
	return &product
}

// Set stores the product
func (c *ProductCache) Set(ctx context.Context, product *models.InternalProduct) {
	if !c.enabled() || product == nil {
		return
	}

	data, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(product.InternalID), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("internalId", product.InternalID).Debug("Product cache write failed")
	}
}

// Invalidate removes the given products from the cache
func (c *ProductCache) Invalidate(ctx context.Context, internalIDs ...string) {
	if !c.enabled() || len(internalIDs) == 0 {
		return
	}

	keys := make([]string, 0, len(internalIDs))
	for _, id := range internalIDs {
		keys = append(keys, c.key(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithError(err).WithField("count", len(keys)).Warn("Product cache invalidation failed")
	}
}
