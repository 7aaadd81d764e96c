package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"product-association-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAmbiguousMatch = errors.New("ambiguous match")
)

// CatalogRepository is the store of internal products
type CatalogRepository interface {
	GetByID(ctx context.Context, internalID string) (*models.InternalProduct, error)
	FindByGlobalTradeIdentifier(ctx context.Context, gtin string) (*models.InternalProduct, error)
	List(ctx context.Context) ([]models.InternalProduct, error)
	Search(ctx context.Context, term string) ([]models.InternalProduct, error)
	FindByAttribute(ctx context.Context, name, value string) ([]models.InternalProduct, error)
	Upsert(ctx context.Context, product *models.InternalProduct) error
}

type catalogRepository struct {
	db    *gorm.DB
	cache *ProductCache

	// set when bound to a transaction; cache eviction is deferred to commit
	touched *[]string
}

// NewCatalogRepository creates a catalog repository. cache may be nil.
func NewCatalogRepository(db *gorm.DB, cache *ProductCache) CatalogRepository {
	return &catalogRepository{db: db, cache: cache}
}

// GetByID retrieves a product with its attributes, read-through cached outside transactions
func (r *catalogRepository) GetByID(ctx context.Context, internalID string) (*models.InternalProduct, error) {
	if r.touched == nil {
		if product := r.cache.Get(ctx, internalID); product != nil {
			return product, nil
		}
	}

	var product models.InternalProduct
	err := r.db.WithContext(ctx).
		Preload("Attributes", orderAttributes).
		Where("internal_id = ?", internalID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if r.touched == nil {
		r.cache.Set(ctx, &product)
	}
	return &product, nil
}

// FindByGlobalTradeIdentifier matches the GTIN exactly. More than one hit is ErrAmbiguousMatch.
func (r *catalogRepository) FindByGlobalTradeIdentifier(ctx context.Context, gtin string) (*models.InternalProduct, error) {
	var products []models.InternalProduct
	err := r.db.WithContext(ctx).
		Preload("Attributes", orderAttributes).
		Where("global_trade_identifier = ?", gtin).
		Order("internal_id").
		Limit(2).
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	switch len(products) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &products[0], nil
	default:
		return nil, fmt.Errorf("%w: several products share globalTradeIdentifier %q", ErrAmbiguousMatch, gtin)
	}
}

// List returns the whole catalog
func (r *catalogRepository) List(ctx context.Context) ([]models.InternalProduct, error) {
	var products []models.InternalProduct
	err := r.db.WithContext(ctx).
		Preload("Attributes", orderAttributes).
		Order("internal_id").
		Find(&products).Error
	return products, err
}

// Search matches the term case-insensitively against internalId or globalTradeIdentifier
func (r *catalogRepository) Search(ctx context.Context, term string) ([]models.InternalProduct, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"

	var products []models.InternalProduct
	err := r.db.WithContext(ctx).
		Preload("Attributes", orderAttributes).
		Where("LOWER(internal_id) LIKE ? OR LOWER(global_trade_identifier) LIKE ?", pattern, pattern).
		Order("internal_id").
		Find(&products).Error
	return products, err
}

// FindByAttribute returns products carrying the exact (name, value) pair
func (r *catalogRepository) FindByAttribute(ctx context.Context, name, value string) ([]models.InternalProduct, error) {
	var products []models.InternalProduct
	err := r.db.WithContext(ctx).
		Preload("Attributes", orderAttributes).
		Joins("JOIN internal_product_attributes a ON a.product_id = internal_products.internal_id").
		Where("a.name = ? AND a.value = ?", name, value).
		Order("internal_products.internal_id").
		Find(&products).Error
	return products, err
}

// Upsert writes the product row and replaces its attribute set atomically
func (r *catalogRepository) Upsert(ctx context.Context, product *models.InternalProduct) error {
	if product.InternalID == "" {
		return errors.New("internal product requires an internalId")
	}

	write := func(tx *gorm.DB) error {
		now := time.Now()
		if product.CreatedAt.IsZero() {
			product.CreatedAt = now
		}
		product.UpdatedAt = now

		err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "internal_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"global_trade_identifier", "updated_at"}),
			}).
			Create(product).Error
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", product.InternalID, err)
		}

		if err := tx.Where("product_id = ?", product.InternalID).Delete(&models.InternalProductAttribute{}).Error; err != nil {
			return fmt.Errorf("failed to clear attributes of product %s: %w", product.InternalID, err)
		}

		attrs := dedupeProductAttributes(product)
		if len(attrs) > 0 {
			if err := tx.Create(&attrs).Error; err != nil {
				return fmt.Errorf("failed to write attributes of product %s: %w", product.InternalID, err)
			}
		}
		product.Attributes = attrs
		return nil
	}

	if r.touched != nil {
		if err := write(r.db.WithContext(ctx)); err != nil {
			return err
		}
		*r.touched = append(*r.touched, product.InternalID)
		return nil
	}

	if err := r.db.WithContext(ctx).Transaction(write); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, product.InternalID)
	return nil
}

func dedupeProductAttributes(product *models.InternalProduct) []models.InternalProductAttribute {
	seen := make(map[models.Attribute]struct{}, len(product.Attributes))
	attrs := make([]models.InternalProductAttribute, 0, len(product.Attributes))
	for _, a := range product.Attributes {
		key := models.Attribute{Name: a.Name, Value: a.Value}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		attrs = append(attrs, models.InternalProductAttribute{
			ProductID: product.InternalID,
			Name:      a.Name,
			Value:     a.Value,
		})
	}
	return attrs
}

func orderAttributes(db *gorm.DB) *gorm.DB {
	return db.Order("name, value")
}
