package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"product-association-service/internal/models"
)

func setupTestCache(t *testing.T) (*ProductCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewProductCache(client, logger), mr
}

func TestProductCache_SetGet(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupTestCache(t)

	assert.Nil(t, cache.Get(ctx, "P1"))

	product := &models.InternalProduct{InternalID: "P1", GlobalTradeIdentifier: strPtr("111")}
	product.AddAttribute("Category", "Books")
	cache.Set(ctx, product)

	assert.True(t, mr.Exists("association:products:product:P1"))
	assert.Equal(t, ProductCacheTTL, mr.TTL("association:products:product:P1"))

	cached := cache.Get(ctx, "P1")
	require.NotNil(t, cached)
	assert.Equal(t, "111", cached.GTIN())
	assert.True(t, cached.HasAttribute("Category", "Books"))

	cache.Invalidate(ctx, "P1", "P2")
	assert.False(t, mr.Exists("association:products:product:P1"))
	assert.Nil(t, cache.Get(ctx, "P1"))
}

func TestProductCache_RedisFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupTestCache(t)
	cache.Set(ctx, &models.InternalProduct{InternalID: "P1"})

	mr.Close()

	assert.Nil(t, cache.Get(ctx, "P1"))
	cache.Set(ctx, &models.InternalProduct{InternalID: "P2"})
	cache.Invalidate(ctx, "P1")
}

func TestCatalogRepository_GetByIDReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupTestCache(t)
	store := NewStore(setupTestDB(t), cache)
	seedProduct(t, store.Catalog(), "P1", strPtr("111"), models.Attribute{Name: "Category", Value: "Books"})

	assert.False(t, mr.Exists("association:products:product:P1"))

	_, err := store.Catalog().GetByID(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("association:products:product:P1"))

	// a hit is served without touching the database
	require.NoError(t, store.DB().Exec("DELETE FROM internal_product_attributes").Error)
	cached, err := store.Catalog().GetByID(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, cached.HasAttribute("Category", "Books"))
}

func TestStore_WithTransactionEvictsOnCommit(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupTestCache(t)
	store := NewStore(setupTestDB(t), cache)
	seedProduct(t, store.Catalog(), "P1", strPtr("111"))

	_, err := store.Catalog().GetByID(ctx, "P1")
	require.NoError(t, err)
	require.True(t, mr.Exists("association:products:product:P1"))

	err = store.WithTransaction(ctx, func(tx UnitOfWork) error {
		product, err := tx.Catalog().GetByID(ctx, "P1")
		if err != nil {
			return err
		}
		product.AddAttribute("Category", "Books")
		return tx.Catalog().Upsert(ctx, product)
	})
	require.NoError(t, err)

	assert.False(t, mr.Exists("association:products:product:P1"))

	product, err := store.Catalog().GetByID(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, product.HasAttribute("Category", "Books"))
	assert.True(t, mr.Exists("association:products:product:P1"))
}

func TestStore_WithTransactionKeepsCacheOnRollback(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupTestCache(t)
	store := NewStore(setupTestDB(t), cache)
	seedProduct(t, store.Catalog(), "P1", strPtr("111"))

	_, err := store.Catalog().GetByID(ctx, "P1")
	require.NoError(t, err)
	before, err := mr.Get("association:products:product:P1")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTransaction(ctx, func(tx UnitOfWork) error {
		product, err := tx.Catalog().GetByID(ctx, "P1")
		if err != nil {
			return err
		}
		product.AddAttribute("Category", "Books")
		if err := tx.Catalog().Upsert(ctx, product); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := mr.Get("association:products:product:P1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	product, err := store.Catalog().GetByID(ctx, "P1")
	require.NoError(t, err)
	assert.False(t, product.HasAttribute("Category", "Books"))
}
